package gobwas

import (
	"net/http"

	"github.com/lobby-ws/lobby"

	gobwas "github.com/gobwas/ws"
)

// DefaultUpgrader is a gobwas/ws upgrader with all fields set to the default values.
var DefaultUpgrader = Upgrader(gobwas.HTTPUpgrader{})

// Upgrader is a `lobby.Upgrader` type for the gobwas/ws subprotocol implementation.
// Should be used on `New` to construct the lobby server.
func Upgrader(upgrader gobwas.HTTPUpgrader) lobby.Upgrader {
	return func(w http.ResponseWriter, r *http.Request) (lobby.Socket, error) {
		underline, _, _, err := upgrader.Upgrade(r, w)
		if err != nil {
			return nil, err
		}

		return newSocket(underline, r, false), nil
	}
}
