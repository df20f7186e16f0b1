package lobby

import (
	"errors"
	"testing"
)

// lastReply returns the last acknowledgement written to the socket.
func lastReply(t *testing.T, socket *fakeSocket) Message {
	t.Helper()

	msgs := socket.pushed()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].isAckReply() {
			return msgs[i]
		}
	}

	t.Fatal("expected an acknowledgement")
	return Message{}
}

func TestDispatchAcksExactlyOnce(t *testing.T) {
	s := newTestServer(t, "demo")
	c, socket := addTestConn(s, "X")

	s.dispatch(c, Message{ack: "$1", Event: EventNamespaceJoin, Body: []byte(`{"namespace":"demo"}`)})

	if got := len(socket.frames); got != 1 {
		t.Fatalf("expected exactly one acknowledgement but got %d frames", got)
	}

	reply := lastReply(t, socket)
	if reply.isError {
		t.Fatalf("expected success but got: %v", reply.Err)
	}
	if reply.ack != "#$1" {
		t.Fatalf("expected the confirmation token but got: %q", reply.ack)
	}
}

func TestDispatchTranslatesFailures(t *testing.T) {
	s := newTestServer(t, "demo")
	c, socket := addTestConn(s, "X")

	// a state-machine refusal and a malformed request travel the same
	// way: one failed acknowledgement with a message.
	s.dispatch(c, Message{ack: "$1", Event: EventRoomLeave})
	reply := lastReply(t, socket)
	if !reply.isError || !errors.Is(reply.Err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom but got: %+v", reply)
	}

	s.dispatch(c, Message{ack: "$2", Event: EventRoomCreate, Body: []byte(`{broken`)})
	reply = lastReply(t, socket)
	if !reply.isError || reply.Err.Error() == "" {
		t.Fatalf("expected a failure with a message but got: %+v", reply)
	}
}

func TestDispatchUnknownRequest(t *testing.T) {
	s := newTestServer(t, "demo")
	c, socket := addTestConn(s, "X")

	s.dispatch(c, Message{ack: "$1", Event: "room:paint"})

	reply := lastReply(t, socket)
	if !reply.isError {
		t.Fatal("expected a failure for an unknown request")
	}
}

func TestDispatchIgnoresTokenlessMessages(t *testing.T) {
	s := newTestServer(t, "demo")
	c, socket := addTestConn(s, "X")

	s.dispatch(c, Message{Event: EventRoomLeave})
	s.dispatch(c, Message{ack: "#$1", Event: EventRoomLeave})

	if len(socket.frames) != 0 {
		t.Fatalf("expected no reply to tokenless messages but got %d frames", len(socket.frames))
	}
}

func TestDispatchFullFlow(t *testing.T) {
	s := newTestServer(t, "demo")
	c, socket := addTestConn(s, "X")

	steps := []struct {
		ack   string
		event string
		body  string
		fails bool
	}{
		{"$1", EventNamespaceJoin, `{"namespace":"demo"}`, false},
		{"$2", EventRoomCreate, `{"id":"abc12","options":{"maxConnections":2,"public":true}}`, false},
		{"$3", EventGetPublicRooms, ``, false},
		{"$4", EventRoomEvent, `{"event":"chat","data":"hi"}`, false},
		{"$5", EventRoomLeave, ``, false},
		{"$6", EventRoomLeave, ``, true},
	}

	for _, step := range steps {
		s.dispatch(c, Message{ack: step.ack, Event: step.event, Body: []byte(step.body)})

		reply := lastReply(t, socket)
		if reply.ack != genAckConfirmation(step.ack) {
			t.Fatalf("step %s: out-of-order acknowledgement %q", step.ack, reply.ack)
		}
		if reply.isError != step.fails {
			t.Fatalf("step %s: expected fails=%v but got: %+v", step.ack, step.fails, reply)
		}
	}
}
