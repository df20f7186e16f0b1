package lobby

import (
	"errors"
)

// requestHandler serves one request and returns the acknowledgement's
// success body, or an error which becomes the acknowledgement's failure.
type requestHandler func(c *Conn, msg Message) ([]byte, error)

// requestHandlers builds the request table. Every entry is wrapped by
// `dispatch`, which is the single point translating validation and
// state-machine failures into a failed acknowledgement.
func (s *Server) requestHandlers() map[string]requestHandler {
	return map[string]requestHandler{
		EventNamespaceJoin: func(c *Conn, msg Message) ([]byte, error) {
			var body namespaceJoinBody
			if err := json.Unmarshal(msg.Body, &body); err != nil {
				return nil, err
			}

			return nil, s.joinNamespace(c, body.Namespace)
		},

		EventGetPublicRooms: func(c *Conn, msg Message) ([]byte, error) {
			infos, err := s.publicRooms(c)
			if err != nil {
				return nil, err
			}

			return json.Marshal(infos)
		},

		EventRoomCreate: func(c *Conn, msg Message) ([]byte, error) {
			var body roomCreateBody
			if err := json.Unmarshal(msg.Body, &body); err != nil {
				return nil, err
			}

			info, err := s.createRoom(c, body.ID, body.Options)
			if err != nil {
				return nil, err
			}

			return json.Marshal(info)
		},

		EventRoomJoin: func(c *Conn, msg Message) ([]byte, error) {
			var body roomJoinBody
			if err := json.Unmarshal(msg.Body, &body); err != nil {
				return nil, err
			}

			info, err := s.joinRoomByID(c, body.ID)
			if err != nil {
				return nil, err
			}

			return json.Marshal(info)
		},

		EventRoomLeave: func(c *Conn, msg Message) ([]byte, error) {
			return nil, s.leaveRoom(c)
		},

		EventRoomEvent: func(c *Conn, msg Message) ([]byte, error) {
			var body roomEventBody
			if err := json.Unmarshal(msg.Body, &body); err != nil {
				return nil, err
			}

			return nil, s.broadcastEvent(c, body.Event, body.Data)
		},
	}
}

var errUnknownRequest = errors.New("unknown request")

// dispatch routes one inbound request to its handler and writes the
// acknowledgement exactly once, success or failure. The requester cannot
// tell a malformed request from a refused one except by message text.
func (s *Server) dispatch(c *Conn, msg Message) {
	if msg.ack == "" || msg.isAckReply() {
		// the server acknowledges, it never asks.
		c.logger.Debug().Str("event", msg.Event).Msg("dropped a message with no request token")
		return
	}

	reply := Message{
		ack:   genAckConfirmation(msg.ack),
		Event: msg.Event,
	}

	if h, ok := s.requests[msg.Event]; ok {
		body, err := h(c, msg)
		if err != nil {
			if err.Error() == "" {
				err = ErrUnknown
			}
			reply.Err = err
		} else {
			reply.Body = body
		}
	} else {
		reply.Err = errUnknownRequest
	}

	if !c.write(reply) {
		// the requester is gone, its acknowledgement simply is not delivered.
		c.logger.Debug().Str("event", msg.Event).Msg("acknowledgement dropped")
	}
}
