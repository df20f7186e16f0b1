package lobby

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
)

// Business-rule errors. All of them are caught once, at the request
// dispatcher boundary, and travel to the requester as a failed
// acknowledgement carrying the text below; none of them is fatal
// to the server process.
var (
	// ErrAlreadyInNamespace may return from a `namespace:join` request
	// when the connection has a namespace already.
	ErrAlreadyInNamespace = errors.New("already in a namespace")
	// ErrInvalidNamespace may return from a `namespace:join` request
	// when the target name was not configured on the server.
	ErrInvalidNamespace = errors.New("invalid namespace")
	// ErrNotInNamespace may return from any room request fired
	// before a successful `namespace:join`.
	ErrNotInNamespace = errors.New("not in a namespace")
	// ErrAlreadyInRoom may return from `room:create` and `room:join`
	// while the connection is a member of another room.
	ErrAlreadyInRoom = errors.New("already in a room")
	// ErrNotInRoom may return from `room:leave` and `room:event`
	// when the connection is not a member of any room.
	ErrNotInRoom = errors.New("not in a room")
	// ErrRoomIDTaken may return from `room:create` when the id is
	// held by an active room of the same namespace.
	ErrRoomIDTaken = errors.New("room id is already taken")
	// ErrRoomNotFound may return from `room:join` when no active room
	// of the connection's namespace has that id.
	ErrRoomNotFound = errors.New("room does not exist")
	// ErrRoomFull may return from `room:join` when the room reached
	// its configured maxConnections.
	ErrRoomFull = errors.New("room is full")

	// ErrClientRecordMissing reports an internal consistency failure:
	// a registry operation referenced a connection with no membership record.
	ErrClientRecordMissing = errors.New("client record does not exist")

	// ErrDuplicateListener may return from a Client's `On`
	// when the identical callback is registered twice for one event.
	ErrDuplicateListener = errors.New("listener is already registered")
	// ErrUnknownListener may return from a Client's `Off`
	// when the callback was never registered for that event.
	ErrUnknownListener = errors.New("listener does not exist")

	// ErrUnknown replaces any failure that carries no message text,
	// a failed acknowledgement is never silent.
	ErrUnknown = errors.New("unknown error")

	// ErrClosed may return from any client request issued after the
	// underlying connection was torn down.
	ErrClosed = errors.New("connection closed")
)

var knownErrors = []error{
	ErrAlreadyInNamespace,
	ErrInvalidNamespace,
	ErrNotInNamespace,
	ErrAlreadyInRoom,
	ErrNotInRoom,
	ErrRoomIDTaken,
	ErrRoomNotFound,
	ErrRoomFull,
	ErrClientRecordMissing,
	ErrUnknown,
}

// errorText maps a received failure message back to its sentinel when it
// matches one, so callers can compare with `errors.Is` across the wire.
func errorText(text string) error {
	for _, err := range knownErrors {
		if err.Error() == text {
			return err
		}
	}

	return errors.New(text)
}

// CloseError can be given to a connection's `Close` to send
// a close frame with a reason before tearing the socket down.
type CloseError struct {
	error
	Code int
}

// IsDisconnectError reports whether the "err" is a timeout or a closed connection error.
func IsDisconnectError(err error) bool {
	if err == nil {
		return false
	}

	return IsCloseError(err) || IsTimeoutError(err)
}

// IsCloseError reports whether the "err" is a "closed by the remote host" network connection error.
func IsCloseError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(CloseError); ok {
		return true
	}

	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return true
	}

	if netErr, ok := err.(*net.OpError); ok {
		if netErr.Err == nil {
			return false
		}

		if sysErr, ok := netErr.Err.(*os.SyscallError); ok {
			return sysErr.Err != nil
		}

		return strings.HasSuffix(err.Error(), "use of closed network connection")
	}

	return false
}

// IsTimeoutError reports whether the "err" is caused by a defined timeout.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(*net.OpError); ok {
		return netErr.Timeout()
	}

	return false
}
