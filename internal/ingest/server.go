// Package ingest serves live page sessions over websockets. Every connection
// gets its own timeline and monitor; the page streams performance entries in
// and receives snapshots back.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/source"
)

// Options configures a Server.
type Options struct {
	MaxMessageBytes int64
	Rate            float64 // messages per second per connection, 0 = unlimited
	Burst           int
	AllowedOrigins  []string // "*" allows any origin; empty allows same-origin only
	PingInterval    time.Duration
	Logger          *zap.Logger
	Tracer          trace.Tracer
	// OnSnapshot, when set, receives every snapshot of every session on the
	// session's loop goroutine.
	OnSnapshot func(sessionID string, s metrics.Snapshot)
	// OnSessionClosed, when set, runs once per session after it has ended
	// and left the session table. No OnSnapshot call for that session
	// follows it.
	OnSessionClosed func(sessionID string)
}

// Server accepts page sessions.
type Server struct {
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		sessions: make(map[string]*Session),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("ingest")
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler routes /observe, /sessions and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/observe", s.handleObserve)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// ListenAndServe serves on addr until ctx is done, then closes every live
// session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ingest server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close ends every live session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// Sessions describes every live session, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	// ULIDs sort by creation time.
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// SessionInfo is the /sessions view of one session.
type SessionInfo struct {
	ID        string            `json:"session"`
	Page      string            `json:"page,omitempty"`
	Origin    string            `json:"origin,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Snapshots int64             `json:"snapshots"`
	Snapshot  *metrics.Snapshot `json:"snapshot"`
	Sources   []source.Outcome  `json:"sources,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Sessions()); err != nil {
		s.logger.Warn("failed to encode sessions", zap.Error(err))
	}
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := newSession(s, conn, r)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.serve()

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	if s.opts.OnSessionClosed != nil {
		s.opts.OnSessionClosed(sess.id)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.opts.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	s.logger.Info("rejected ingest origin", zap.String("origin", origin))
	return false
}
