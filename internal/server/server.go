package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/stayawake/stay-awake/internal/autoquit"
	"github.com/stayawake/stay-awake/internal/keepawake"
)

const (
	// DefaultRateLimit is the sustained API request rate per second.
	DefaultRateLimit = rate.Limit(20)
	// DefaultRateBurst is the API request burst size.
	DefaultRateBurst = 10

	sendBuffer      = 64
	shutdownTimeout = 2 * time.Second
)

// Snapshot is the run state reported by the status endpoint.
type Snapshot struct {
	RunID     string
	AutoQuit  *AutoQuitStatus
	KeepAwake *keepawake.Status
	Power     *keepawake.PowerSnapshot
}

// Options configures a Server.
type Options struct {
	// Addr is the TCP listen address, e.g. "127.0.0.1:47390".
	Addr    string
	Version string
	// Status returns the current run state; nil reports an empty snapshot.
	Status func() Snapshot
	// Quit stops the run early and reports whether there was a run to stop.
	Quit func() bool
	// RateLimit and RateBurst throttle API requests; zero uses the defaults.
	RateLimit rate.Limit
	RateBurst int
	Logger    *slog.Logger
}

// Server serves the local status API and the countdown event stream.
// It also implements autoquit.Display so a run can mirror its countdown to
// connected clients.
type Server struct {
	opts      Options
	upgrader  websocket.Upgrader
	limiter   *rate.Limiter
	log       *slog.Logger
	startTime time.Time

	mu       sync.RWMutex
	clients  map[*Client]bool
	listener net.Listener
	http     *http.Server
	last     []Message

	pumps sync.WaitGroup
}

// NewServer creates a server. Call Listen and then Serve.
func NewServer(opts Options) *Server {
	if opts.RateLimit == 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultRateBurst
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Requests are already restricted to loopback peers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		log:       logger.With("component", "server"),
		startTime: time.Now(),
		clients:   make(map[*Client]bool),
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/status", s.localOnly(s.throttled(NewStatusHandler(s))))
	mux.Handle("/api/quit", s.localOnly(s.throttled(NewQuitHandler(s))))
	mux.Handle("/ws", s.localOnly(http.HandlerFunc(s.handleWebSocket)))
	return mux
}

// Listen binds the listen address so that Addr reports the real port before
// Serve starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("status server listening", "addr", ln.Addr().String())
	return nil
}

// Serve handles connections until ctx is done, then flushes pending client
// messages and shuts down. It returns nil after a ctx-triggered shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.closeClients()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	<-errCh
	s.waitPumps(shutdownCtx)
	s.log.Debug("status server stopped")
	return err
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Visible reports whether any client is watching the countdown.
func (s *Server) Visible() bool {
	return s.ClientCount() > 0
}

// Uptime returns how long the server has existed.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Broadcast sends msg to every connected client. Slow clients whose send
// buffer is full miss the message.
func (s *Server) Broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remember(msg)
	for c := range s.clients {
		c.enqueue(msg)
	}
}

// remember keeps the latest ETA and keep-awake messages so late joiners get
// them right after hello.
func (s *Server) remember(msg Message) {
	if msg.Type != MessageTypeETA && msg.Type != MessageTypeKeepAwake {
		return
	}
	for i, m := range s.last {
		if m.Type == msg.Type {
			s.last[i] = msg
			return
		}
	}
	s.last = append(s.last, msg)
}

// ETAChanged implements autoquit.Display.
func (s *Server) ETAChanged(eta autoquit.ETA) {
	s.Broadcast(NewETAMessage(eta))
}

// Update implements autoquit.Display.
func (s *Server) Update(tick autoquit.Tick) {
	s.Broadcast(NewTickMessage(tick))
}

// CadenceChanged implements autoquit.Display.
func (s *Server) CadenceChanged(cadence time.Duration) {
	s.Broadcast(NewCadenceMessage(cadence))
}

// BroadcastKeepAwake mirrors a keep-awake transition to clients.
func (s *Server) BroadcastKeepAwake(st keepawake.Status) {
	s.Broadcast(NewKeepAwakeMessage(st))
}

// BroadcastTerminate tells clients the process is about to exit.
func (s *Server) BroadcastTerminate(reason autoquit.Reason) {
	s.Broadcast(NewTerminateMessage(reason))
}

func (s *Server) snapshot() Snapshot {
	if s.opts.Status == nil {
		return Snapshot{}
	}
	return s.opts.Status()
}

func (s *Server) quit() bool {
	if s.opts.Quit == nil {
		return false
	}
	return s.opts.Quit()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s, conn)

	hello := s.statusResponse()

	// Broadcast holds the lock too, so hello is always the first frame.
	s.mu.Lock()
	s.clients[c] = true
	count := len(s.clients)
	hello.ConnectedClients = count
	c.enqueue(Message{Type: MessageTypeHello, Payload: hello})
	for _, m := range s.last {
		c.enqueue(m)
	}
	s.mu.Unlock()
	s.log.Info("client connected", "remote", r.RemoteAddr, "clients", count)

	s.pumps.Add(1)
	go func() {
		defer s.pumps.Done()
		c.writePump()
	}()
	go c.readPump()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.closeSend()
	}
}

func (s *Server) waitPumps(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("gave up waiting for clients to drain")
	}
}

// localOnly rejects requests that do not come from the local machine.
func (s *Server) localOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopbackRequest(r, s.log) {
			http.Error(w, "Forbidden: stay-awake API is local-only", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// throttled answers 429 once the API rate limit is exhausted.
func (s *Server) throttled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, rateLimitedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isLoopbackRequest checks whether the request originates from a loopback
// address (127.0.0.0/8 or ::1).
func isLoopbackRequest(r *http.Request, logger *slog.Logger) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		logger.Warn("failed to parse remote address", "remote", r.RemoteAddr, "error", err)
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		logger.Warn("failed to parse remote ip", "host", host)
		return false
	}
	return ip.IsLoopback()
}
