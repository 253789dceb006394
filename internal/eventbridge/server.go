package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KaioH3/negotiation-agent/internal/catalog"
	"github.com/KaioH3/negotiation-agent/internal/config"
	"github.com/KaioH3/negotiation-agent/internal/metrics"
	"github.com/KaioH3/negotiation-agent/internal/negotiation"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

var errServerDisabled = errors.New("eventbridge: server disabled")

// Server exposes the negotiation engine over HTTP: health, the product
// catalog, a server-sent event stream per run and Prometheus metrics.
type Server struct {
	settings config.ServerConfig
	runner   Runner
	catalog  *catalog.Catalog
	router   *Router
	metrics  *metrics.Collectors
	logger   Logger
	clock    func() time.Time

	activeRuns atomic.Int64

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithRouter shares a router with other observers of the server's runs.
func WithRouter(r *Router) Option {
	return func(s *Server) {
		if r != nil {
			s.router = r
		}
	}
}

// WithMetrics serves the collectors on /metrics.
func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a server that starts runs with runner.
func NewServer(settings config.ServerConfig, runner Runner, cat *catalog.Catalog, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("eventbridge: runner is required")
	}
	if cat == nil {
		return nil, fmt.Errorf("eventbridge: catalog is required")
	}
	s := &Server{
		settings: settings,
		runner:   runner,
		catalog:  cat,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.router == nil {
		s.router = NewRouter(RouterWithLogger(s.logger))
	}
	return s, nil
}

// Handler returns the HTTP routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/products", s.handleProducts)
	mux.HandleFunc("/api/negotiate/stream", s.handleNegotiate)
	mux.HandleFunc("/api/runs/{id}/events", s.handleWatch)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("eventbridge: server is nil")
	}
	if !s.settings.On() {
		return errServerDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("eventbridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("eventbridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("eventbridge: serve error: %v", err)
		}
	}()
	s.logger.Printf("eventbridge: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	resp := healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		RouterReady:   s.router != nil,
		ActiveRuns:    s.activeRuns.Load(),
		UptimeSeconds: s.uptimeSeconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.catalog.Products())
}

// handleNegotiate starts a run and streams its events until the terminal
// one. A client disconnect cancels the run.
func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	req, err := ParseRequest(r.URL.Query())
	if err != nil {
		s.logger.Printf("eventbridge: ignoring malformed quantities: %v", err)
	}
	stream, ok := newEventStream(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	sub := newBlockingSubscriber(defaultSubscriberCapacity, s.logger)
	sink := negotiation.EmitterFunc(func(ev negotiation.Event) {
		sub.deliver(ev)
		s.router.Route(ev)
	})
	s.activeRuns.Add(1)
	go func() {
		defer s.activeRuns.Add(-1)
		defer sub.close()
		if _, err := s.runner.Run(r.Context(), req, sink); err != nil {
			s.logger.Printf("eventbridge: run failed: %v", err)
		}
	}()

	for ev := range sub.channel() {
		if err := stream.send(ev); err != nil {
			s.logger.Printf("eventbridge: client went away: %v", err)
			// Drain so the run can finish unwinding after cancellation.
			for range sub.channel() {
			}
			return
		}
	}
}

// handleWatch streams the events of a run started elsewhere, replaying what
// the router buffered before the watcher arrived.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	runID := strings.TrimSpace(r.PathValue("id"))
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}
	stream, ok := newEventStream(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	sub := s.router.Subscribe(runID)
	defer sub.Close()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			if err := stream.send(ev); err != nil || ev.Type.Terminal() {
				return
			}
		}
	}
}

// eventStream writes server-sent events: one "data: <json>" frame per event.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, false
	}
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()
	return &eventStream{w: w, rc: rc}, true
}

func (e *eventStream) send(ev negotiation.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbridge: encode %s: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return e.rc.Flush()
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", fmt.Sprintf("%s, %s", http.MethodGet, http.MethodHead))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
