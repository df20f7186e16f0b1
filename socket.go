package lobby

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Socket is the interface that an underlying protocol implementation
// should complete in order to be used as a lobby transport.
// The `gorilla` and `gobwas` subpackages provide ready implementations.
//
// A Socket must deliver whole text messages, in order, per connection.
type Socket interface {
	// NetConn returns the underline net connection.
	NetConn() net.Conn
	// Request returns the http request value of the handshake,
	// it is nil on client-side connections.
	Request() *http.Request
	// ReadText should read a whole text message from the connection,
	// a "timeout" of zero means no deadline.
	ReadText(timeout time.Duration) ([]byte, error)
	// WriteText should write a whole text message to the connection,
	// a "timeout" of zero means no deadline.
	WriteText(body []byte, timeout time.Duration) error
}

// Upgrader is the definition type of a protocol upgrader, gorilla or gobwas or custom.
// It is the first parameter of the `New` function which constructs a lobby server.
type Upgrader func(w http.ResponseWriter, r *http.Request) (Socket, error)

// Dialer is the definition type of a dialer, gorilla or gobwas or custom.
// It is the second parameter of the `Dial` function which constructs a lobby client.
type Dialer func(ctx context.Context, url string) (Socket, error)
