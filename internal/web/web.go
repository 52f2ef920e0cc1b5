// Package web exposes the interview to a browser over a websocket.
//
// GET /ws upgrades to a websocket speaking JSON text frames. Clients send
// [Command] values ({"type":"topic"|"message"|"reset","text":...}); the
// server pushes an [Event] of type "view" after every transcript mutation
// and an "error" event when a command is rejected. Views are full snapshots,
// so a slow client may skip intermediate ones.
//
// Only one client drives the interview at a time; further connections are
// closed with status 1013 (try again later).
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/mockinterview/internal/interview"
)

const defaultWriteTimeout = 5 * time.Second

var errUnknownCommand = errors.New("web: unknown command type")

// Interviewer is the part of [interview.Controller] the transport drives.
type Interviewer interface {
	SubmitTopic(ctx context.Context, text string) error
	SendMessage(ctx context.Context, text string) error
	Reset() error
}

// Attacher grants the single front-end slot. Attach renders the current view
// to r before returning.
type Attacher interface {
	Attach(ctx context.Context, client string, r interview.Renderer) (detach func(), err error)
}

// Server serves the websocket endpoint.
type Server struct {
	iv       Interviewer
	sessions Attacher

	log          *slog.Logger
	baseCtx      context.Context
	origins      []string
	writeTimeout time.Duration

	// exchanges tracks commands still running after their connection closed.
	exchanges sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithBaseContext sets the context exchanges run under. Exchanges outlive the
// connection that started them; cancelling ctx fails them and closes every
// open connection with status 1001 (going away).
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

// WithOriginPatterns allows cross-origin websocket handshakes from the given
// host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithWriteTimeout bounds a single frame write. Default: 5s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// New creates a Server driving iv, with front-end admission through sessions.
func New(iv Interviewer, sessions Attacher, opts ...Option) *Server {
	s := &Server{
		iv:           iv,
		sessions:     sessions,
		log:          slog.Default(),
		baseCtx:      context.Background(),
		writeTimeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds GET /ws to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.ServeWS)
}

// Wait blocks until all exchanges started by clients have finished.
func (s *Server) Wait() {
	s.exchanges.Wait()
}

// ServeWS upgrades the request and runs the connection until either side
// closes it.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.log.Warn("web: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newOutbox()
	detach, err := s.sessions.Attach(ctx, r.RemoteAddr, out)
	if err != nil {
		conn.Close(websocket.StatusTryAgainLater, "interview in use by another client")
		return
	}
	defer detach()

	log := s.log.With("remote", r.RemoteAddr)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		if err := s.writeLoop(ctx, conn, out); err != nil && ctx.Err() == nil {
			log.Debug("web: write failed", "err", err)
		}
	}()

	stop := context.AfterFunc(s.baseCtx, func() {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	})
	defer stop()

	err = s.readLoop(ctx, conn, out)
	cancel()
	<-writerDone

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Debug("web: client closed connection")
	case err != nil && !errors.Is(err, context.Canceled):
		log.Debug("web: connection ended", "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, out *outbox) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			out.push(errorEvent("", fmt.Errorf("%w: expected a text frame", errUnknownCommand)))
			continue
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			out.push(errorEvent("", fmt.Errorf("%w: %v", errUnknownCommand, err)))
			continue
		}
		s.dispatch(cmd, out)
	}
}

// dispatch runs cmd. Exchanges run on their own goroutine so that commands
// arriving meanwhile are rejected by the controller instead of queueing.
func (s *Server) dispatch(cmd Command, out *outbox) {
	var run func(context.Context) error
	switch cmd.Type {
	case TypeTopic:
		run = func(ctx context.Context) error { return s.iv.SubmitTopic(ctx, cmd.Text) }
	case TypeMessage:
		run = func(ctx context.Context) error { return s.iv.SendMessage(ctx, cmd.Text) }
	case TypeReset:
		if err := s.iv.Reset(); err != nil {
			out.push(errorEvent(cmd.Type, err))
		}
		return
	default:
		out.push(errorEvent(cmd.Type, fmt.Errorf("%w %q", errUnknownCommand, cmd.Type)))
		return
	}

	s.exchanges.Add(1)
	go func() {
		defer s.exchanges.Done()
		if err := run(s.baseCtx); err != nil {
			if errorCode(err) == CodeInternal {
				s.log.Error("web: exchange failed", "command", cmd.Type, "err", err)
			}
			out.push(errorEvent(cmd.Type, err))
		}
	}()
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, out *outbox) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-out.ready:
		}
		for _, ev := range out.drain() {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("web: encode %s event: %w", ev.Type, err)
			}
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// outbox buffers events for one connection. Render never blocks: a newer
// view replaces one that has not been written yet, and a view numbered below
// one already accepted is dropped.
type outbox struct {
	mu     sync.Mutex
	view   *interview.View
	seq    uint64 // highest View.Seq accepted
	events []Event
	ready  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

// Render implements [interview.Renderer].
func (o *outbox) Render(v interview.View) {
	o.mu.Lock()
	if v.Seq != 0 && v.Seq <= o.seq {
		o.mu.Unlock()
		return
	}
	o.seq = max(o.seq, v.Seq)
	o.view = &v
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) push(ev Event) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// drain returns the pending view (if any) followed by pending errors.
func (o *outbox) drain() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var evs []Event
	if o.view != nil {
		evs = append(evs, viewEvent(*o.view))
		o.view = nil
	}
	evs = append(evs, o.events...)
	o.events = nil
	return evs
}
