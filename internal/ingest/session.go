package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/pagepulse/internal/metrics"
	"github.com/torosent/pagepulse/internal/monitor"
	"github.com/torosent/pagepulse/internal/source"
	"github.com/torosent/pagepulse/internal/timeline"
	"github.com/torosent/pagepulse/internal/tracing"
)

// Message types exchanged with the page.
const (
	TypeHello    = "hello"
	TypeEntries  = "entries"
	TypeLoad     = "load"
	TypeRefresh  = "refresh"
	TypeSession  = "session"
	TypeSources  = "sources"
	TypeSnapshot = "snapshot"
	TypeError    = "error"
)

const (
	writeWait   = 10 * time.Second
	controlSize = 16
)

// Message is one outgoing websocket message.
type Message struct {
	Type     string            `json:"type"`
	Session  string            `json:"session"`
	Snapshot *metrics.Snapshot `json:"snapshot,omitempty"`
	Sources  []source.Outcome  `json:"sources,omitempty"`
	Error    string            `json:"error,omitempty"`
	Code     string            `json:"code,omitempty"`
}

// Session is one connected page. Its timeline and monitor are created by
// the first message, so a leading hello can declare unsupported streams.
type Session struct {
	id        string
	origin    string
	startedAt time.Time
	server    *Server
	conn      *websocket.Conn
	logger    *zap.Logger
	limiter   *rate.Limiter

	ctx       context.Context
	cancel    context.CancelFunc
	span      trace.Span
	control   chan Message
	notify    chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	page        string
	tl          *timeline.Timeline
	mon         *monitor.Monitor
	unsubscribe func()
	pending     *metrics.Snapshot
}

func newSession(srv *Server, conn *websocket.Conn, r *http.Request) *Session {
	id := ulid.Make().String()
	origin := r.Header.Get("Origin")

	parent := tracing.ExtractHTTPHeaders(context.Background(), r.Header)
	ctx, span := tracing.StartSessionSpan(parent, srv.tracer, id, origin)
	ctx, cancel := context.WithCancel(ctx)

	return &Session{
		id:        id,
		origin:    origin,
		startedAt: time.Now().UTC(),
		server:    srv,
		conn:      conn,
		logger:    srv.logger.With(zap.String("session", id)),
		limiter:   newLimiter(srv.opts.Rate, srv.opts.Burst),
		ctx:       ctx,
		cancel:    cancel,
		span:      span,
		control:   make(chan Message, controlSize),
		notify:    make(chan struct{}, 1),
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// ID returns the session's ULID.
func (s *Session) ID() string { return s.id }

// Info describes the session for /sessions.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	mon, page := s.mon, s.page
	s.mu.Unlock()

	info := SessionInfo{
		ID:        s.id,
		Page:      page,
		Origin:    s.origin,
		StartedAt: s.startedAt,
	}
	if mon != nil {
		if snap, ok := mon.Latest(); ok {
			info.Snapshot = &snap
		}
		info.Snapshots = mon.Published()
		info.Sources = mon.Outcomes()
	}
	return info
}

func (s *Session) serve() {
	s.logger.Info("session opened", zap.String("origin", s.origin))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.send(Message{Type: TypeSession, Session: s.id})
	err := s.readLoop()

	s.close()
	<-writerDone
	published := s.shutdown()

	tracing.EndSpan(s.span, err, attribute.Int64("pagepulse.snapshots", published))
	if err != nil {
		s.logger.Warn("session ended with error", zap.Error(err))
		return
	}
	s.logger.Info("session closed", zap.Int64("snapshots", published))
}

// close ends the session from any goroutine.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

// shutdown stops the loop and returns how many snapshots were published.
func (s *Session) shutdown() int64 {
	s.mu.Lock()
	tl, mon, unsubscribe, loopDone := s.tl, s.mon, s.unsubscribe, s.loopDone
	s.mu.Unlock()

	if tl == nil {
		return 0
	}
	<-loopDone
	tl.Close()
	unsubscribe()
	return mon.Published()
}

func (s *Session) readLoop() error {
	if limit := s.server.opts.MaxMessageBytes; limit > 0 {
		s.conn.SetReadLimit(limit)
	}
	ping := s.server.opts.PingInterval
	if ping > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(2 * ping))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(2 * ping))
		})
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return oops.In("ingest").
					Code("ingest.message.too_large").
					With("limit", s.server.opts.MaxMessageBytes).
					Wrap(err)
			}
			return err
		}
		if ping > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(2 * ping))
		}

		if err := s.limiter.Wait(s.ctx); err != nil {
			return nil
		}
		if err := s.handle(data); err != nil {
			s.logger.Debug("rejected message", zap.Error(err))
			s.sendError(err)
		}
	}
}

func (s *Session) handle(data []byte) error {
	if !gjson.ValidBytes(data) {
		return oops.In("ingest").Code("ingest.message.invalid").Errorf("message is not valid JSON")
	}
	msg := gjson.ParseBytes(data)
	typ := msg.Get("type").String()

	switch typ {
	case TypeHello:
		if s.started() {
			return oops.In("ingest").Code("ingest.hello.late").Errorf("hello must be the first message")
		}
		s.start(msg)
	case TypeEntries:
		entries := timeline.DecodeEntries(msg.Get("entries"))
		if len(entries) == 0 {
			return oops.In("ingest").Code("ingest.entries.empty").Errorf("entries message carries no entries")
		}
		s.start(gjson.Result{})
		s.timeline().Record(entries...)
	case TypeLoad:
		s.start(gjson.Result{})
		s.timeline().DispatchLoad()
	case TypeRefresh:
		s.start(gjson.Result{})
		s.monitor().Refresh()
	case "":
		return oops.In("ingest").Code("ingest.message.untyped").Errorf("message has no type")
	default:
		return oops.In("ingest").
			Code("ingest.message.unknown").
			With("type", typ).
			Errorf("unknown message type %q", typ)
	}
	return nil
}

func (s *Session) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mon != nil
}

func (s *Session) timeline() *timeline.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl
}

func (s *Session) monitor() *monitor.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mon
}

// start creates the page's timeline and monitor once. hello may name
// unsupported entry types and the page URL.
func (s *Session) start(hello gjson.Result) {
	if s.started() {
		return
	}

	var unsupported []timeline.EntryType
	for _, v := range hello.Get("unsupported").Array() {
		typ, ok := timeline.ParseEntryType(v.String())
		if !ok {
			s.logger.Debug("ignoring unknown entry type", zap.String("entry_type", v.String()))
			continue
		}
		unsupported = append(unsupported, typ)
	}

	tl := timeline.New(timeline.WithUnsupported(unsupported...), timeline.WithLogger(s.logger))
	mon := monitor.New(tl, monitor.WithLogger(s.logger), monitor.WithTracer(s.server.tracer))
	loopDone := make(chan struct{})

	s.mu.Lock()
	s.page = hello.Get("page").String()
	s.tl = tl
	s.mon = mon
	s.loopDone = loopDone
	s.unsubscribe = mon.Subscribe(s.onSnapshot)
	s.mu.Unlock()

	go func() {
		defer close(loopDone)
		_ = tl.Run(s.ctx)
	}()

	mon.Start(s.ctx)
	// Runs after the adapters are installed.
	tl.Post(func() {
		s.send(Message{Type: TypeSources, Session: s.id, Sources: mon.Outcomes()})
	})
}

// onSnapshot runs on the loop. Only the newest unsent snapshot is kept, so
// a slow page never stalls the loop.
func (s *Session) onSnapshot(snap metrics.Snapshot) {
	if hook := s.server.opts.OnSnapshot; hook != nil {
		hook(s.id, snap)
	}
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) takePending() *metrics.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.pending
	s.pending = nil
	return snap
}

func (s *Session) send(msg Message) {
	select {
	case s.control <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("dropping message for slow client", zap.String("type", msg.Type))
	}
}

func (s *Session) sendError(err error) {
	msg := Message{Type: TypeError, Session: s.id, Error: err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			msg.Code = fmt.Sprint(code)
		}
	}
	s.send(msg)
}

func (s *Session) writeLoop() {
	var pingC <-chan time.Time
	if ping := s.server.opts.PingInterval; ping > 0 {
		ticker := time.NewTicker(ping)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		var err error
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.control:
			err = s.write(msg)
		case <-s.notify:
			if snap := s.takePending(); snap != nil {
				err = s.write(Message{Type: TypeSnapshot, Session: s.id, Snapshot: snap})
			}
		case <-pingC:
			err = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Debug("write failed, closing session", zap.Error(err))
			}
			s.close()
			return
		}
	}
}

func (s *Session) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
