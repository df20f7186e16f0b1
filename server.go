package lobby

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/iris-contrib/go.uuid"
	"github.com/rs/zerolog"
)

// IDGenerator is the type of function that it is used
// to generate unique identifiers for new connections.
//
// See `Server.IDGenerator`.
type IDGenerator func(w http.ResponseWriter, r *http.Request) string

// DefaultIDGenerator returns a random unique for a new connection.
var DefaultIDGenerator IDGenerator = func(http.ResponseWriter, *http.Request) string {
	id, err := uuid.NewV4()
	if err != nil {
		return strconv.FormatInt(time.Now().Unix(), 10)
	}
	return id.String()
}

// Config carries the construction-time constants of a Server.
type Config struct {
	// Namespaces is the fixed set of namespace names this server owns.
	// Required, non-empty; namespaces are never added or removed at runtime.
	Namespaces []string

	// MaxRoomConnections is the ceiling of a room's `maxConnections`
	// option. Defaults to DefaultMaxRoomConnections.
	MaxRoomConnections int

	// Connection read/write timeouts, zero means none.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Logger for structured output, a nop logger when left zero-valued
	// without sampling or hooks.
	Logger *zerolog.Logger
}

// Server coordinates ephemeral rooms inside fixed namespaces. All of its
// state is in-memory and transient: nothing survives a restart and a
// single Server owns every namespace it was configured with.
//
// Use the `New` function to create a new server, it starts accepting
// connections once registered on an http endpoint via `ServeHTTP`.
type Server struct {
	upgrader    Upgrader
	IDGenerator IDGenerator

	// mu is the single-writer discipline over every registry below:
	// each namespace/room mutation and each fan-out membership snapshot
	// is one critical section, so no request can observe a
	// partially-updated room.
	mu         sync.Mutex
	conns      map[string]*Conn    // the connection arena, by opaque id.
	namespaces map[string][]string // namespace name -> conn ids, join order.
	rooms      map[string]map[string]*room

	validator *optionsValidator
	requests  map[string]requestHandler

	readTimeout  time.Duration
	writeTimeout time.Duration

	logger zerolog.Logger

	count  uint64
	closed uint32

	// OnUpgradeError can be optionally registered to catch upgrade errors.
	OnUpgradeError func(err error)
	// OnConnect can be optionally registered to be notified for any new
	// connection. A non-nil return value cancels the connection before it
	// is registered anywhere.
	OnConnect func(c *Conn) error
	// OnDisconnect can be optionally registered to be notified after a
	// connection's cleanup cascade completed.
	OnDisconnect func(c *Conn)
}

// New constructs and returns a new lobby server which owns the configured
// namespaces. It returns an error when no namespace was given.
func New(upgrader Upgrader, conf Config) (*Server, error) {
	if len(conf.Namespaces) == 0 {
		return nil, errors.New("no namespaces provided")
	}

	ceiling := conf.MaxRoomConnections
	if ceiling <= 0 {
		ceiling = DefaultMaxRoomConnections
	}

	logger := zerolog.Nop()
	if conf.Logger != nil {
		logger = *conf.Logger
	}

	s := &Server{
		upgrader:     upgrader,
		IDGenerator:  DefaultIDGenerator,
		conns:        make(map[string]*Conn),
		namespaces:   make(map[string][]string, len(conf.Namespaces)),
		rooms:        make(map[string]map[string]*room, len(conf.Namespaces)),
		validator:    newOptionsValidator(ceiling),
		readTimeout:  conf.ReadTimeout,
		writeTimeout: conf.WriteTimeout,
		logger:       logger,
	}

	for _, name := range conf.Namespaces {
		s.namespaces[name] = []string{}
		s.rooms[name] = make(map[string]*room)
	}

	s.requests = s.requestHandlers()

	return s, nil
}

var (
	errServerClosed  = errors.New("server closed")
	errInvalidMethod = errors.New("no valid request method")
)

// Upgrade handles the connection, same as `ServeHTTP` but it can accept
// a socket wrapper and it does return the connection or any errors.
func (s *Server) Upgrade(w http.ResponseWriter, r *http.Request, socketWrapper func(Socket) Socket) (*Conn, error) {
	if atomic.LoadUint32(&s.closed) > 0 {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, errServerClosed
	}

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusMethodNotAllowed)
		fmt.Fprintln(w, http.StatusText(http.StatusMethodNotAllowed))
		return nil, errInvalidMethod
	}

	socket, err := s.upgrader(w, r)
	if err != nil {
		if s.OnUpgradeError != nil {
			s.OnUpgradeError(err)
		}
		return nil, err
	}

	if socketWrapper != nil {
		socket = socketWrapper(socket)
	}

	c := newConn(socket, s.IDGenerator(w, r), s)

	if s.OnConnect != nil {
		if err = s.OnConnect(c); err != nil {
			socket.NetConn().Close()
			return nil, err
		}
	}

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	atomic.AddUint64(&s.count, 1)

	c.logger.Debug().Msg("connected")

	go c.startReader()

	return c, nil
}

// ServeHTTP completes the `http.Handler` interface, it should be passed on a http server's router
// to serve this lobby server on a specific endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Upgrade(w, r, nil)
}

// removeConn runs the disconnect cascade for "c": room leave (with host
// transfer or room destruction), then namespace leave, then arena removal.
// The whole cascade is one critical section; remaining members get their
// room:update push right after it.
func (s *Server) removeConn(c *Conn) {
	var (
		targets []*Conn
		payload []byte
	)

	s.mu.Lock()

	if c.roomID != "" {
		if r, ok := s.rooms[c.namespace][c.roomID]; ok && r.removeMember(c.id) {
			c.roomID = ""

			if len(r.members) == 0 {
				delete(s.rooms[r.namespace], r.id)
			} else {
				if r.host == c.id {
					r.host = r.members[0]
				}
				targets, payload = s.roomUpdateLocked(r)
			}
		} else {
			c.roomID = ""
		}
	}

	if c.namespace != "" {
		if err := s.leaveNamespaceLocked(c); err != nil {
			c.logger.Warn().Err(err).Msg("namespace cleanup failed")
		}
	}

	_, registered := s.conns[c.id]
	delete(s.conns, c.id)

	s.mu.Unlock()

	s.push(targets, payload)

	if registered {
		atomic.AddUint64(&s.count, ^uint64(0))
		c.logger.Debug().Msg("disconnected")

		if s.OnDisconnect != nil {
			s.OnDisconnect(c)
		}
	}
}

// GetTotalConnections returns the total amount of the connected
// connections to the server, it's fast and can be used as frequently as needed.
func (s *Server) GetTotalConnections() uint64 {
	return atomic.LoadUint64(&s.count)
}

// Do loops through all connected connections and fires the "fn".
func (s *Server) Do(fn func(*Conn)) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		fn(c)
	}
}

// Close terminates the server and all of its connections.
func (s *Server) Close() {
	if atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		s.Do(func(c *Conn) {
			c.Close()
		})
	}
}
