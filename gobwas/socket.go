package gobwas

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Socket completes the `lobby.Socket` interface,
// it describes the underline websocket connection.
type Socket struct {
	UnderlyingConn net.Conn
	request        *http.Request

	reader         *wsutil.Reader
	controlHandler wsutil.FrameHandlerFunc
	state          gobwas.State

	// when idleTime is set (see `KeepAliveDialer`) the socket pings the
	// remote side after that much silence, scheduled on "tw".
	idleTime time.Duration
	tw       *timingwheel.TimingWheel

	mu sync.Mutex
}

const defaultOp = gobwas.OpText

func newSocket(underline net.Conn, request *http.Request, client bool) *Socket {
	state := gobwas.StateServerSide
	if client {
		state = gobwas.StateClientSide
	}

	controlHandler := wsutil.ControlFrameHandler(underline, state)

	reader := &wsutil.Reader{
		Source:          underline,
		State:           state,
		CheckUTF8:       true,
		SkipHeaderCheck: false,
		// "intermediate" frames, that possibly could
		// be received between text/binary continuation frames.
		// Read `gobwas/wsutil/reader#NextReader`.
		OnIntermediate: controlHandler,
	}

	return &Socket{
		UnderlyingConn: underline,
		request:        request,
		state:          state,
		reader:         reader,
		controlHandler: controlHandler,
	}
}

// NetConn returns the underline net connection.
func (s *Socket) NetConn() net.Conn {
	return s.UnderlyingConn
}

// Request returns the http request value of the handshake,
// nil on client-side connections.
func (s *Socket) Request() *http.Request {
	return s.request
}

// ReadText reads the next text message from the remote connection.
// Returns io.ErrUnexpectedEOF on remote close.
func (s *Socket) ReadText(timeout time.Duration) ([]byte, error) {
	for {
		if timeout > 0 {
			s.UnderlyingConn.SetReadDeadline(time.Now().Add(timeout))
		}

		var pinger *timingwheel.Timer
		if s.idleTime > 0 && s.tw != nil {
			pinger = s.tw.AfterFunc(s.idleTime, s.ping)
		}

		hdr, err := s.reader.NextFrame()

		if pinger != nil {
			pinger.Stop()
		}

		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF // for io.ReadAll to return an error if connection remotely closed.
			}
			return nil, err
		}

		if hdr.OpCode == gobwas.OpClose {
			return nil, io.ErrUnexpectedEOF
		}

		if hdr.OpCode.IsControl() {
			if err = s.controlHandler(hdr, s.reader); err != nil {
				return nil, err
			}
			continue
		}

		if hdr.OpCode&defaultOp == 0 {
			if err = s.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}

		return io.ReadAll(s.reader)
	}
}

// WriteText sends a text message to the remote connection.
func (s *Socket) WriteText(body []byte, timeout time.Duration) error {
	return s.write(body, defaultOp, timeout)
}

func (s *Socket) write(body []byte, op gobwas.OpCode, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timeout > 0 {
		s.UnderlyingConn.SetWriteDeadline(time.Now().Add(timeout))
		// set it back, otherwise a long-idle connection gets EOF.
		defer s.UnderlyingConn.SetWriteDeadline(time.Time{})
	}

	return wsutil.WriteMessage(s.UnderlyingConn, s.state, op, body)
}
