// Package gateway carries game traffic between WebSocket clients and the
// room manager.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/glitch-server/internal/msgcat"
	"github.com/park285/glitch-server/internal/obslog"
	"github.com/park285/glitch-server/internal/room"
	"github.com/park285/glitch-server/pkg/glitchdto"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultSendBuffer   = 64
	defaultPingInterval = 30 * time.Second
	readLimit           = 4096
)

// Server is an http.Handler that upgrades to WebSocket and speaks the
// glitchdto protocol.
type Server struct {
	rooms   *room.Manager
	catalog *msgcat.Catalog
	logger  *zap.Logger

	origins      []string
	writeTimeout time.Duration
	sendBuffer   int
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	locks roomLocks
	wg    sync.WaitGroup
}

type Option func(*Server)

// WithOrigins restricts the Origin header to the given host patterns. With no
// patterns every origin is accepted.
func WithOrigins(patterns []string) Option {
	return func(s *Server) { s.origins = append([]string(nil), patterns...) }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithSendBuffer sets the per-connection outbound queue length. A client whose
// queue fills up is disconnected.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(rooms *room.Manager, catalog *msgcat.Catalog, opts ...Option) *Server {
	if catalog == nil {
		catalog = msgcat.MustDefault()
	}
	s := &Server{
		rooms:        rooms,
		catalog:      catalog,
		logger:       obslog.L(),
		writeTimeout: defaultWriteTimeout,
		sendBuffer:   defaultSendBuffer,
		pingInterval: defaultPingInterval,
		clients:      make(map[string]*client),
		locks:        roomLocks{m: make(map[string]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type client struct {
	id   string
	ws   *websocket.Conn
	send chan glitchdto.Envelope

	// only touched by the read loop
	playerID   string
	identified bool

	kickOnce sync.Once
}

func (c *client) kick(code websocket.StatusCode, reason string) {
	c.kickOnce.Do(func() {
		go func() { _ = c.ws.Close(code, reason) }()
	})
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.origins,
		InsecureSkipVerify: len(s.origins) == 0,
		CompressionMode:    websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}
	ws.SetReadLimit(readLimit)

	c := &client{
		id:       uuid.NewString(),
		ws:       ws,
		send:     make(chan glitchdto.Envelope, s.sendBuffer),
		playerID: uuid.NewString(),
	}
	if !s.register(c) {
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.logger.Info("ws_connect", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, c)
	}()
	if s.pingInterval > 0 {
		go s.pingLoop(ctx, c)
	}

	s.readLoop(ctx, c)

	s.disconnect(c)
	cancel()
	<-writerDone
	_ = ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("ws_disconnect", zap.String("conn_id", c.id))
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		var f glitchdto.Frame
		if err := wsjson.Read(ctx, c.ws, &f); err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Debug("ws_read_failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		s.handle(ctx, c, f)
	}
}

// writeLoop is the only goroutine writing to the socket. It returns when the
// send queue is closed or a write fails.
func (s *Server) writeLoop(ctx context.Context, c *client) {
	for env := range c.send {
		wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		err := wsjson.Write(wctx, c.ws, env)
		cancel()
		if err != nil {
			s.logger.Debug("ws_write_failed", zap.String("conn_id", c.id), zap.String("type", env.Type), zap.Error(err))
			c.kick(websocket.StatusInternalError, "write failed")
			return
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, c *client) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				c.kick(websocket.StatusPolicyViolation, "ping timeout")
				return
			}
		}
	}
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	return true
}

// disconnect treats a dropped connection as leave_room, then retires the
// connection's queue.
func (s *Server) disconnect(c *client) {
	if roomID, _, ok := s.rooms.Binding(c.id); ok {
		lock := s.locks.get(roomID)
		lock.Lock()
		out, err := s.rooms.LeaveRoom(context.Background(), c.id)
		if err == nil {
			s.deliver(out)
		}
		lock.Unlock()
		if err == nil && out.Destroyed {
			s.locks.drop(roomID)
		}
	}

	s.mu.Lock()
	delete(s.clients, c.id)
	close(c.send)
	s.mu.Unlock()
}

// deliver enqueues every event for its recipients. It never blocks: a
// recipient with a full queue is disconnected.
func (s *Server) deliver(out *room.Outcome) {
	if out == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range out.Events {
		env, ok := envelope(ev)
		if !ok {
			s.logger.Warn("event_unrenderable", zap.String("kind", string(ev.Kind)))
			continue
		}
		for _, to := range ev.To {
			if c, ok := s.clients[to]; ok {
				s.enqueueLocked(c, env)
			}
		}
	}
}

// reply sends a private message to c. The caller must not hold s.mu.
func (s *Server) reply(c *client, env glitchdto.Envelope) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[c.id]; ok {
		s.enqueueLocked(c, env)
	}
}

func (s *Server) enqueueLocked(c *client, env glitchdto.Envelope) {
	select {
	case c.send <- env:
	default:
		s.logger.Warn("ws_slow_consumer", zap.String("conn_id", c.id), zap.String("type", env.Type))
		c.kick(websocket.StatusPolicyViolation, "slow consumer")
	}
}

// ConnCount reports open connections.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close stops accepting connections, closes the open ones and waits for
// their handlers to finish or ctx to expire.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, c := range s.clients {
		c.kick(websocket.StatusGoingAway, "server shutting down")
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// roomLocks serializes a room's manager call together with the fan-out of
// its events, so members see events in the order the room produced them.
type roomLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *roomLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.m[id]
	if !ok {
		mu = &sync.Mutex{}
		l.m[id] = mu
	}
	return mu
}

func (l *roomLocks) drop(id string) {
	l.mu.Lock()
	delete(l.m, id)
	l.mu.Unlock()
}
