package lobby

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Conn is a server-side connection. Its namespace and room membership
// record lives directly on it, keyed registries reference the connection
// only through its opaque id.
type Conn struct {
	id     string
	socket Socket
	server *Server

	// the membership record, guarded by server.mu.
	// A non-empty roomID implies a non-empty namespace.
	namespace string
	roomID    string

	readTimeout  time.Duration
	writeTimeout time.Duration

	logger zerolog.Logger

	closeCh chan struct{}
	closed  uint32
}

func newConn(socket Socket, id string, s *Server) *Conn {
	return &Conn{
		id:           id,
		socket:       socket,
		server:       s,
		readTimeout:  s.readTimeout,
		writeTimeout: s.writeTimeout,
		logger:       s.logger.With().Str("conn", id).Logger(),
		closeCh:      make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// String completes the fmt.Stringer interface, it returns the ID.
func (c *Conn) String() string { return c.id }

// Socket returns the underline socket implementation.
func (c *Conn) Socket() Socket { return c.socket }

// Server returns the lobby server this connection belongs to.
func (c *Conn) Server() *Server { return c.server }

// IsClosed reports whether this connection was torn down.
func (c *Conn) IsClosed() bool {
	return atomic.LoadUint32(&c.closed) > 0
}

// Close tears the connection down once: it runs the cleanup cascade
// (room leave, then namespace leave, then record removal) to completion
// before the connection's resources are released.
func (c *Conn) Close() {
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return
	}

	close(c.closeCh)
	c.socket.NetConn().Close()
	c.server.removeConn(c)
}

// startReader consumes the socket until it dies. A malformed frame is
// dropped, it never terminates the loop by itself.
func (c *Conn) startReader() {
	defer c.Close()

	for {
		b, err := c.socket.ReadText(c.readTimeout)
		if err != nil {
			if !IsDisconnectError(err) {
				c.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}

		msg := deserializeMessage(b)
		if msg.isInvalid {
			c.logger.Debug().Msg("dropped an invalid message")
			continue
		}

		c.server.dispatch(c, msg)
	}
}

func (c *Conn) write(msg Message) bool {
	return c.writeRaw(serializeMessage(msg))
}

func (c *Conn) writeRaw(payload []byte) bool {
	if c.IsClosed() {
		return false
	}

	if err := c.socket.WriteText(payload, c.writeTimeout); err != nil {
		if IsDisconnectError(err) {
			c.Close()
		} else {
			c.logger.Debug().Err(err).Msg("write failed")
		}
		return false
	}

	return true
}
