package lobby

import (
	stdjson "encoding/json"
	"time"
)

// RoomOptions describes the tunables of a single room.
// All fields are optional on `room:create`, a missing `maxConnections`
// defaults to the server's ceiling and `public` defaults to false.
// `Meta` is an opaque record passed through as-is.
type RoomOptions struct {
	MaxConnections int                    `json:"maxConnections,omitempty"`
	Public         bool                   `json:"public"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
}

// RoomInfo is the immutable, identifier-only projection of a room,
// it is the payload of `room:create`/`room:join` acknowledgements and of
// every `room:update` push. It never carries live references.
type RoomInfo struct {
	ID      string      `json:"id"`
	Host    string      `json:"host"`
	Members []string    `json:"members"`
	Opts    RoomOptions `json:"opts"`
}

// room is the server-side live state. Members hold connection ids in
// join order, never live references; the first surviving member becomes
// host when the current host departs. Guarded by the owning server's mu.
type room struct {
	id        string
	namespace string
	host      string
	members   []string
	opts      RoomOptions
}

func (r *room) info() RoomInfo {
	members := make([]string, len(r.members))
	copy(members, r.members)

	return RoomInfo{
		ID:      r.id,
		Host:    r.host,
		Members: members,
		Opts:    r.opts,
	}
}

func (r *room) removeMember(id string) bool {
	for i, member := range r.members {
		if member == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}

	return false
}

// Wire bodies of the room requests and pushes.

type roomCreateBody struct {
	ID      string             `json:"id"`
	Options stdjson.RawMessage `json:"options,omitempty"`
}

type roomJoinBody struct {
	ID string `json:"id"`
}

type roomEventBody struct {
	Event string             `json:"event"`
	Data  stdjson.RawMessage `json:"data,omitempty"`
}

type roomUpdateBody struct {
	Room       RoomInfo `json:"room"`
	ServerTime int64    `json:"serverTime"`
}

type roomEventPushBody struct {
	Event      string             `json:"event"`
	Data       stdjson.RawMessage `json:"data,omitempty"`
	Sender     string             `json:"sender"`
	ServerTime int64              `json:"serverTime"`
}

// createRoom inserts a new room into the caller's namespace and joins the
// creator to it, making it the sole member and host. The raw options are
// validated and defaulted before the room exists.
func (s *Server) createRoom(c *Conn, id string, rawOpts stdjson.RawMessage) (RoomInfo, error) {
	s.mu.Lock()

	if c.namespace == "" {
		s.mu.Unlock()
		return RoomInfo{}, ErrNotInNamespace
	}

	if c.roomID != "" {
		s.mu.Unlock()
		return RoomInfo{}, ErrAlreadyInRoom
	}

	// format check runs before any registry lookup.
	if err := s.validator.RoomID(id); err != nil {
		s.mu.Unlock()
		return RoomInfo{}, err
	}

	rooms := s.rooms[c.namespace]
	if _, exists := rooms[id]; exists {
		s.mu.Unlock()
		return RoomInfo{}, ErrRoomIDTaken
	}

	opts, err := s.validator.RoomOptions(rawOpts)
	if err != nil {
		s.mu.Unlock()
		return RoomInfo{}, err
	}

	r := &room{
		id:        id,
		namespace: c.namespace,
		opts:      opts,
	}
	rooms[id] = r

	info, targets, payload, err := s.joinRoomLocked(c, r)
	if err != nil {
		// the creator always fits an empty room, but do not leave a
		// memberless room behind if that ever changes.
		delete(rooms, id)
		s.mu.Unlock()
		return RoomInfo{}, err
	}

	s.mu.Unlock()

	s.push(targets, payload)
	return info, nil
}

// joinRoomByID joins the connection to an existing room of its namespace.
func (s *Server) joinRoomByID(c *Conn, id string) (RoomInfo, error) {
	s.mu.Lock()

	if c.namespace == "" {
		s.mu.Unlock()
		return RoomInfo{}, ErrNotInNamespace
	}

	if c.roomID != "" {
		s.mu.Unlock()
		return RoomInfo{}, ErrAlreadyInRoom
	}

	if err := s.validator.RoomID(id); err != nil {
		s.mu.Unlock()
		return RoomInfo{}, err
	}

	r, exists := s.rooms[c.namespace][id]
	if !exists {
		s.mu.Unlock()
		return RoomInfo{}, ErrRoomNotFound
	}

	info, targets, payload, err := s.joinRoomLocked(c, r)
	if err != nil {
		s.mu.Unlock()
		return RoomInfo{}, err
	}

	s.mu.Unlock()

	s.push(targets, payload)
	return info, nil
}

// joinRoomLocked appends the connection to the room's member sequence,
// makes it host when it is the first member and prepares the room:update
// push for the post-join member set. Callers hold s.mu and deliver the
// returned payload after unlocking.
func (s *Server) joinRoomLocked(c *Conn, r *room) (RoomInfo, []*Conn, []byte, error) {
	if len(r.members) >= r.opts.MaxConnections {
		return RoomInfo{}, nil, nil, ErrRoomFull
	}

	r.members = append(r.members, c.id)
	if len(r.members) == 1 {
		r.host = c.id
	}

	c.roomID = r.id

	targets, payload := s.roomUpdateLocked(r)
	return r.info(), targets, payload, nil
}

// leaveRoom removes the connection from its current room, reassigns the
// host to the earliest remaining member when the host departs and
// destroys the room once its member sequence is empty.
func (s *Server) leaveRoom(c *Conn) error {
	s.mu.Lock()

	if c.roomID == "" {
		s.mu.Unlock()
		return ErrNotInRoom
	}

	r, exists := s.rooms[c.namespace][c.roomID]
	if !exists {
		c.roomID = ""
		s.mu.Unlock()
		return ErrClientRecordMissing
	}

	if !r.removeMember(c.id) {
		c.roomID = ""
		s.mu.Unlock()
		return ErrClientRecordMissing
	}

	c.roomID = ""

	if len(r.members) == 0 {
		// the host concept is void on an empty room, destroy it instead
		// of keeping a placeholder host around.
		delete(s.rooms[r.namespace], r.id)
		s.mu.Unlock()
		return nil
	}

	if r.host == c.id {
		r.host = r.members[0]
	}

	targets, payload := s.roomUpdateLocked(r)
	s.mu.Unlock()

	s.push(targets, payload)
	return nil
}

// publicRooms returns snapshots of the public rooms of the connection's
// namespace.
func (s *Server) publicRooms(c *Conn) ([]RoomInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.namespace == "" {
		return nil, ErrNotInNamespace
	}

	infos := []RoomInfo{}
	for _, r := range s.rooms[c.namespace] {
		if r.opts.Public {
			infos = append(infos, r.info())
		}
	}

	return infos, nil
}

// broadcastEvent fans an application event out to the room's member
// sequence as it exists right now, the sender included. The timestamp is
// read once per call, so every recipient of one broadcast observes the
// same serverTime.
func (s *Server) broadcastEvent(c *Conn, event string, data stdjson.RawMessage) error {
	s.mu.Lock()

	if c.roomID == "" {
		s.mu.Unlock()
		return ErrNotInRoom
	}

	r, exists := s.rooms[c.namespace][c.roomID]
	if !exists {
		s.mu.Unlock()
		return ErrClientRecordMissing
	}

	targets := s.resolveLocked(r.members)
	s.mu.Unlock()

	body, err := json.Marshal(roomEventPushBody{
		Event:      event,
		Data:       data,
		Sender:     c.id,
		ServerTime: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	s.push(targets, serializeMessage(Message{Event: EventRoomEvent, Body: body}))
	return nil
}

// roomUpdateLocked snapshots the room and prepares the room:update push
// for its current members. Callers hold s.mu.
func (s *Server) roomUpdateLocked(r *room) ([]*Conn, []byte) {
	body, err := json.Marshal(roomUpdateBody{
		Room:       r.info(),
		ServerTime: time.Now().UnixMilli(),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("room", r.id).Msg("room update encode failed")
		return nil, nil
	}

	return s.resolveLocked(r.members), serializeMessage(Message{Event: EventRoomUpdate, Body: body})
}

// resolveLocked maps member ids to live connections through the arena.
// Callers hold s.mu.
func (s *Server) resolveLocked(ids []string) []*Conn {
	targets := make([]*Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.conns[id]; ok {
			targets = append(targets, c)
		}
	}

	return targets
}

// push delivers one serialized payload to every target connection.
// Write failures are per-connection concerns, a dead member never blocks
// the rest of the fan-out.
func (s *Server) push(targets []*Conn, payload []byte) {
	if payload == nil {
		return
	}

	for _, c := range targets {
		c.writeRaw(payload)
	}
}
