// Package gateway serves voice-command sessions over WebSocket.
//
// Each connection owns one [assistant.Session]. The client streams
// transcript frames; matched commands are forwarded back as action frames
// which the client executes and acknowledges, so dispatch results reflect
// what actually happened on the client.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/MrWong99/motto/internal/catalog"
	"github.com/MrWong99/motto/internal/config"
	"github.com/MrWong99/motto/internal/matcher"
	"github.com/MrWong99/motto/internal/observe"
)

// Path is the route the WebSocket endpoint is registered on.
const Path = "/v1/listen"

// state is the configuration snapshot new connections start from.
type state struct {
	cfg     *config.Config
	matcher *matcher.Matcher
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAcceptOptions sets the WebSocket handshake options, e.g. allowed
// origins.
func WithAcceptOptions(o *websocket.AcceptOptions) Option {
	return func(s *Server) { s.accept = o }
}

// withSessionEnd calls fn with every connection after it was torn down.
func withSessionEnd(fn func(*conn)) Option {
	return func(s *Server) { s.ended = fn }
}

// Server accepts WebSocket connections and runs one session per connection.
type Server struct {
	catalog *catalog.Catalog
	metrics *observe.Metrics
	accept  *websocket.AcceptOptions
	ended   func(*conn)

	state  atomic.Pointer[state]
	nextID atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Server for cat configured by cfg.
func New(cat *catalog.Catalog, cfg *config.Config, opts ...Option) *Server {
	s := &Server{catalog: cat}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.Apply(cfg)
	return s
}

// Apply makes cfg the configuration for connections accepted from now on.
// Open sessions keep the configuration they started with.
func (s *Server) Apply(cfg *config.Config) {
	m := matcher.New(s.catalog, cfg.MatcherConfig(), matcher.WithMetrics(s.metrics))
	s.state.Store(&state{cfg: cfg, matcher: m})
}

// Config returns the configuration new connections use.
func (s *Server) Config() *config.Config {
	return s.state.Load().cfg
}

// Register adds the WebSocket route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET "+Path, s)
}

// ServeHTTP upgrades the request and runs a session until the connection
// closes or the server shuts down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := websocket.Accept(w, r, s.accept)
	if err != nil {
		observe.Logger(r.Context()).Warn("gateway: websocket handshake failed", "err", err)
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	id := fmt.Sprintf("ws-%d", s.nextID.Add(1))
	st := s.state.Load()
	c := newConn(ws, id, s.catalog, st, s.metrics)

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	log := observe.Logger(ctx).With("session", id)
	log.Info("gateway: session started", "remote", r.RemoteAddr)

	err = c.run(ctx)
	c.close()
	if s.ended != nil {
		s.ended(c)
	}
	switch {
	case s.ctx.Err() != nil:
		ws.Close(websocket.StatusGoingAway, "server shutting down")
	case err != nil:
		log.Warn("gateway: session ended with error", "err", err)
		ws.Close(websocket.StatusInternalError, "session error")
	default:
		ws.Close(websocket.StatusNormalClosure, "")
	}
	log.Info("gateway: session ended")
}

// Close ends every open session and waits for them to finish. New
// connections are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	slog.Debug("gateway: all sessions closed")
}
