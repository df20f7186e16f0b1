package lobby

import (
	"context"
	stdjson "encoding/json"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EventPayload is what a room event listener receives:
// the broadcast's data, the sender's connection id and the timestamp the
// server assigned once for the whole fan-out.
type EventPayload struct {
	Data       stdjson.RawMessage
	Sender     string
	ServerTime int64
}

// EventHandler is a listener for a named room event.
type EventHandler func(e EventPayload)

// WildcardHandler is a listener for every room event,
// registered through `Client.OnAny`.
type WildcardHandler func(event string, e EventPayload)

type listener struct {
	fn  EventHandler
	key uintptr
}

type wildcardListener struct {
	fn  WildcardHandler
	key uintptr
}

// ClientOption configures a Client before it connects.
type ClientOption func(c *Client)

// WithClientLogger sets the client's structured logger.
func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithClientTimeouts sets the socket read/write deadlines, zero means none.
func WithClientTimeouts(read, write time.Duration) ClientOption {
	return func(c *Client) {
		c.readTimeout = read
		c.writeTimeout = write
	}
}

// Client is the client-side mirror of a single connection's room state.
// It issues requests and consumes pushes; the server's pushed snapshot is
// authoritative and replaces the local one wholesale, last write wins.
type Client struct {
	socket    Socket
	namespace string

	pending *pendingAcks

	readTimeout  time.Duration
	writeTimeout time.Duration

	logger zerolog.Logger

	mu           sync.Mutex
	room         *RoomInfo
	listeners    map[string][]listener
	anyListeners []wildcardListener

	closeCh chan struct{}
	closed  uint32

	// OnRoomUpdate can be optionally set to observe every accepted
	// `room:update` push, after the local snapshot was replaced.
	OnRoomUpdate func(room RoomInfo, serverTime int64)
}

// Dial connects to a lobby server, waits for the transport handshake and
// then joins the requested namespace. A failure of either step surfaces
// as a single error and the underlying socket is closed before it is
// returned, so a connected-but-unjoined client can never be observed.
func Dial(ctx context.Context, dial Dialer, url, namespace string, options ...ClientOption) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	socket, err := dial(ctx, url)
	if err != nil {
		return nil, err
	}

	c := &Client{
		socket:    socket,
		namespace: namespace,
		pending:   newPendingAcks(),
		listeners: make(map[string][]listener),
		logger:    zerolog.Nop(),
		closeCh:   make(chan struct{}),
	}

	for _, opt := range options {
		opt(c)
	}

	go c.startReader()

	body, err := json.Marshal(namespaceJoinBody{Namespace: namespace})
	if err != nil {
		c.Close()
		return nil, err
	}

	if _, err = c.ask(ctx, Message{Event: EventNamespaceJoin, Body: body}); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// Namespace returns the namespace this client joined on Dial.
func (c *Client) Namespace() string { return c.namespace }

// Socket returns the underline socket implementation.
func (c *Client) Socket() Socket { return c.socket }

// Room returns the last known room snapshot and whether the client is
// currently in a room.
func (c *Client) Room() (RoomInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == nil {
		return RoomInfo{}, false
	}

	return *c.room, true
}

// IsClosed reports whether this client was torn down.
func (c *Client) IsClosed() bool {
	return atomic.LoadUint32(&c.closed) > 0
}

// Close tears the connection down and fails every in-flight request.
func (c *Client) Close() {
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return
	}

	close(c.closeCh)
	c.socket.NetConn().Close()
	c.pending.failAll(ErrClosed)
}

// CreateRoom creates a room with the given id and options and joins it,
// the caller becomes its sole member and host. An empty id is replaced by
// a generated one; the id still passes the server's format validation.
func (c *Client) CreateRoom(ctx context.Context, id string, opts RoomOptions) (RoomInfo, error) {
	if err := c.requireNoRoom(); err != nil {
		return RoomInfo{}, err
	}

	if id == "" {
		id = GenerateID(5)
	}

	rawOpts, err := json.Marshal(opts)
	if err != nil {
		return RoomInfo{}, err
	}

	body, err := json.Marshal(roomCreateBody{ID: id, Options: rawOpts})
	if err != nil {
		return RoomInfo{}, err
	}

	return c.askRoom(ctx, Message{Event: EventRoomCreate, Body: body})
}

// JoinRoom joins an existing room of the client's namespace.
func (c *Client) JoinRoom(ctx context.Context, id string) (RoomInfo, error) {
	if err := c.requireNoRoom(); err != nil {
		return RoomInfo{}, err
	}

	body, err := json.Marshal(roomJoinBody{ID: id})
	if err != nil {
		return RoomInfo{}, err
	}

	return c.askRoom(ctx, Message{Event: EventRoomJoin, Body: body})
}

// LeaveRoom leaves the current room and drops the local snapshot.
func (c *Client) LeaveRoom(ctx context.Context) error {
	if err := c.requireRoom(); err != nil {
		return err
	}

	if _, err := c.ask(ctx, Message{Event: EventRoomLeave}); err != nil {
		return err
	}

	c.mu.Lock()
	c.room = nil
	c.mu.Unlock()

	return nil
}

// Emit broadcasts an application event to every member of the current
// room, this client included.
func (c *Client) Emit(ctx context.Context, event string, data interface{}) error {
	if err := c.requireRoom(); err != nil {
		return err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	body, err := json.Marshal(roomEventBody{Event: event, Data: raw})
	if err != nil {
		return err
	}

	_, err = c.ask(ctx, Message{Event: EventRoomEvent, Body: body})
	return err
}

// PublicRooms lists the public rooms of the client's namespace.
func (c *Client) PublicRooms(ctx context.Context) ([]RoomInfo, error) {
	reply, err := c.ask(ctx, Message{Event: EventGetPublicRooms})
	if err != nil {
		return nil, err
	}

	var infos []RoomInfo
	if err := json.Unmarshal(reply.Body, &infos); err != nil {
		return nil, err
	}

	return infos, nil
}

// On registers a listener for a named room event. Registering the
// identical callback twice for one event is an error.
func (c *Client) On(event string, h EventHandler) error {
	key := reflect.ValueOf(h).Pointer()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range c.listeners[event] {
		if l.key == key {
			return ErrDuplicateListener
		}
	}

	c.listeners[event] = append(c.listeners[event], listener{fn: h, key: key})
	return nil
}

// Off removes a previously registered listener.
func (c *Client) Off(event string, h EventHandler) error {
	key := reflect.ValueOf(h).Pointer()

	c.mu.Lock()
	defer c.mu.Unlock()

	ls := c.listeners[event]
	for i, l := range ls {
		if l.key == key {
			c.listeners[event] = append(ls[:i], ls[i+1:]...)
			return nil
		}
	}

	return ErrUnknownListener
}

// OnAny registers a wildcard listener fired for every room event,
// after the event's named listeners.
func (c *Client) OnAny(h WildcardHandler) error {
	key := reflect.ValueOf(h).Pointer()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range c.anyListeners {
		if l.key == key {
			return ErrDuplicateListener
		}
	}

	c.anyListeners = append(c.anyListeners, wildcardListener{fn: h, key: key})
	return nil
}

// OffAny removes a previously registered wildcard listener.
func (c *Client) OffAny(h WildcardHandler) error {
	key := reflect.ValueOf(h).Pointer()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, l := range c.anyListeners {
		if l.key == key {
			c.anyListeners = append(c.anyListeners[:i], c.anyListeners[i+1:]...)
			return nil
		}
	}

	return ErrUnknownListener
}

// RemoveAllListeners drops every named listener of one event.
func (c *Client) RemoveAllListeners(event string) {
	c.mu.Lock()
	delete(c.listeners, event)
	c.mu.Unlock()
}

func (c *Client) requireRoom() error {
	if c.IsClosed() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room == nil {
		return ErrNotInRoom
	}

	return nil
}

func (c *Client) requireNoRoom() error {
	if c.IsClosed() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.room != nil {
		return ErrAlreadyInRoom
	}

	return nil
}

// askRoom issues a request whose success body is a room snapshot and
// adopts it as the current one.
func (c *Client) askRoom(ctx context.Context, msg Message) (RoomInfo, error) {
	reply, err := c.ask(ctx, msg)
	if err != nil {
		return RoomInfo{}, err
	}

	var info RoomInfo
	if err := json.Unmarshal(reply.Body, &info); err != nil {
		return RoomInfo{}, err
	}

	c.mu.Lock()
	c.room = &info
	c.mu.Unlock()

	return info, nil
}

// ask sends one request and blocks until its acknowledgement, the
// context's deadline or the connection teardown, whichever comes first.
func (c *Client) ask(ctx context.Context, msg Message) (Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if c.IsClosed() {
		return Message{}, ErrClosed
	}

	msg.ack = genAck()
	ch := c.pending.add(msg.ack)
	defer c.pending.remove(msg.ack)

	if err := c.write(msg); err != nil {
		return Message{}, err
	}

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.closeCh:
		return Message{}, ErrClosed
	case reply := <-ch:
		if reply.isError {
			return Message{}, reply.Err
		}
		return reply, nil
	}
}

func (c *Client) write(msg Message) error {
	if c.IsClosed() {
		return ErrClosed
	}

	if err := c.socket.WriteText(serializeMessage(msg), c.writeTimeout); err != nil {
		if IsDisconnectError(err) {
			c.Close()
			return ErrClosed
		}
		return err
	}

	return nil
}

// startReader consumes the socket until it dies: acknowledgement replies
// resolve their pending request, everything else is a push.
func (c *Client) startReader() {
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

		if msg.isAckReply() {
			if !c.pending.resolve(msg) {
				c.logger.Debug().Str("event", msg.Event).Msg("dropped a reply with no waiter")
			}
			continue
		}

		c.handlePush(msg)
	}
}

func (c *Client) handlePush(msg Message) {
	switch msg.Event {
	case EventRoomUpdate:
		var body roomUpdateBody
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			c.logger.Debug().Err(err).Msg("dropped a malformed room update")
			return
		}

		c.mu.Lock()
		c.room = &body.Room
		onUpdate := c.OnRoomUpdate
		c.mu.Unlock()

		if onUpdate != nil {
			onUpdate(body.Room, body.ServerTime)
		}

	case EventRoomEvent:
		var body roomEventPushBody
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			c.logger.Debug().Err(err).Msg("dropped a malformed room event")
			return
		}

		c.fireEvent(body.Event, EventPayload{
			Data:       body.Data,
			Sender:     body.Sender,
			ServerTime: body.ServerTime,
		})

	default:
		c.logger.Debug().Str("event", msg.Event).Msg("dropped an unknown push")
	}
}

// fireEvent dispatches to the event's named listeners in registration
// order and then to the wildcard listeners.
func (c *Client) fireEvent(event string, e EventPayload) {
	c.mu.Lock()
	named := make([]listener, len(c.listeners[event]))
	copy(named, c.listeners[event])
	wildcard := make([]wildcardListener, len(c.anyListeners))
	copy(wildcard, c.anyListeners)
	c.mu.Unlock()

	for _, l := range named {
		l.fn(e)
	}

	for _, l := range wildcard {
		l.fn(event, e)
	}
}
