package gorilla

import (
	"net/http"

	"github.com/lobby-ws/lobby"

	gorilla "github.com/gorilla/websocket"
)

// DefaultUpgrader is a gorilla/websocket upgrader with all fields set to the default values.
var DefaultUpgrader = Upgrader(gorilla.Upgrader{})

// Upgrader is a `lobby.Upgrader` type for the gorilla/websocket subprotocol implementation.
// Should be used on `New` to construct the lobby server.
func Upgrader(upgrader gorilla.Upgrader) lobby.Upgrader {
	return func(w http.ResponseWriter, r *http.Request) (lobby.Socket, error) {
		underline, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			return nil, err
		}

		return newSocket(underline, r, false), nil
	}
}
