package signaling

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ThanojKumarPantangi/videocall/internal/metrics"
	"github.com/ThanojKumarPantangi/videocall/internal/origin"
)

const wsWriteWait = 1 * time.Second

// Config wires together the runtime dependencies for the signaling surface.
type Config struct {
	Controller *Controller

	// AllowedOrigins gates browser upgrades; empty means same-host only.
	// Requests without an Origin header (non-browser clients, tests) are
	// always accepted.
	AllowedOrigins []string

	// IdleTimeout closes a connection that has produced no reads (including
	// pongs) for this long. PingInterval must be shorter than IdleTimeout.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	MaxMessageBytes int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Server is the WebSocket signaling surface: it upgrades GET /signal,
// registers each connection with the call lifecycle controller, feeds it
// inbound frames, and guarantees exactly one disconnect cleanup per
// connection however the connection dies.
type Server struct {
	controller *Controller

	allowedOrigins  []string
	idleTimeout     time.Duration
	pingInterval    time.Duration
	maxMessageBytes int64

	log     *slog.Logger
	metrics *metrics.Metrics

	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[*wsPeer]struct{}
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		controller:      cfg.Controller,
		allowedOrigins:  cfg.AllowedOrigins,
		idleTimeout:     cfg.IdleTimeout,
		pingInterval:    cfg.PingInterval,
		maxMessageBytes: cfg.MaxMessageBytes,
		log:             logger,
		metrics:         cfg.Metrics,
		peers:           make(map[*wsPeer]struct{}),
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = 60 * time.Second
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 20 * time.Second
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = 64 * 1024
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /signal", s.handleSignal)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		return true
	}
	return origin.Allowed(originHeader, r.Host, s.allowedOrigins)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	peer := &wsPeer{conn: conn}
	s.trackPeer(peer)
	defer s.untrackPeer(peer)

	id := s.controller.Connect(peer)

	// Disconnect cleanup must run exactly once whatever ends the connection:
	// normal close, network error, idle timeout, or server shutdown.
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			s.controller.Disconnect(id)
			_ = conn.Close()
		})
	}
	defer cleanup()

	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	conn.SetReadLimit(s.maxMessageBytes)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	})

	stopPings := make(chan struct{})
	defer close(stopPings)
	go s.pingLoop(peer, stopPings)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			// Reject without closing: a bad frame alone never tears down the
			// connection.
			s.metrics.Inc(metrics.MessagesRejected)
			continue
		}
		s.controller.HandleMessage(id, data)
	}
}

func (s *Server) pingLoop(peer *wsPeer, stop <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := peer.ping(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (s *Server) trackPeer(p *wsPeer) {
	s.mu.Lock()
	if s.peers != nil {
		s.peers[p] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Server) untrackPeer(p *wsPeer) {
	s.mu.Lock()
	if s.peers != nil {
		delete(s.peers, p)
	}
	s.mu.Unlock()
}

// Close force-closes all live signaling connections. Each connection's read
// loop then runs its own disconnect cleanup.
func (s *Server) Close() {
	s.mu.Lock()
	peers := make([]*wsPeer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = nil
	s.mu.Unlock()

	for _, p := range peers {
		p.close(websocket.CloseGoingAway, "server shutting down")
	}
}

// wsPeer serializes all writes to one connection behind a mutex with a write
// deadline, so a stuck client cannot block the routing path.
type wsPeer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *wsPeer) Send(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *wsPeer) ping() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (p *wsPeer) close(code int, reason string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	_ = p.conn.Close()
}
