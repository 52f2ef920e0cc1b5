package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/mockinterview/internal/interview"
	"github.com/MrWong99/mockinterview/internal/observe"
)

// ErrSessionActive is returned by [SessionManager.Attach] while another client
// is driving the interview.
var ErrSessionActive = errors.New("session: another client is already attached")

// SessionInfo describes the attached client.
type SessionInfo struct {
	// Client is a label for the attached front-end, e.g. its remote address.
	Client string

	// AttachedAt is when the client attached.
	AttachedAt time.Time

	// InterviewID is the ID of the interview visible at attach time.
	InterviewID string
}

// SessionManager owns the interview controller and the single front-end that
// may drive it. It is the controller's [interview.Renderer] and forwards every
// view to the attached client.
//
// Only one client can be attached at a time. All exported methods are safe for
// concurrent use.
type SessionManager struct {
	ctrl    *interview.Controller
	metrics *observe.Metrics
	log     *slog.Logger

	mu       sync.Mutex
	attached bool
	seq      uint64
	sink     interview.Renderer
	info     SessionInfo
}

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// NewSessionManager creates a manager without a controller. Call
// [SessionManager.Bind] before attaching clients; the split lets the manager
// be passed to [interview.WithRenderer] when the controller is built.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SessionManager{metrics: cfg.Metrics, log: cfg.Logger}
}

// Bind sets the controller whose views are forwarded.
func (sm *SessionManager) Bind(ctrl *interview.Controller) {
	sm.mu.Lock()
	sm.ctrl = ctrl
	sm.mu.Unlock()
}

// Controller returns the bound controller.
func (sm *SessionManager) Controller() *interview.Controller {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.ctrl
}

// Render implements [interview.Renderer]. Views produced while nobody is
// attached are dropped.
func (sm *SessionManager) Render(v interview.View) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.sink != nil {
		sm.sink.Render(v)
	}
}

// Attach makes r the front-end of the interview and immediately renders the
// current view to it. It returns [ErrSessionActive] if a client is already
// attached. The returned detach func is idempotent.
func (sm *SessionManager) Attach(ctx context.Context, client string, r interview.Renderer) (detach func(), err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.attached {
		sm.log.Info("session: rejected client, interview in use",
			"client", client,
			"attached", sm.info.Client,
		)
		return nil, ErrSessionActive
	}

	view := sm.ctrl.Snapshot()
	sm.seq++
	seq := sm.seq
	sm.attached = true
	sm.sink = r
	sm.info = SessionInfo{
		Client:      client,
		AttachedAt:  time.Now().UTC(),
		InterviewID: view.ID,
	}
	sm.metrics.RendererConnections.Add(ctx, 1)
	sm.log.Info("session: client attached", "client", client, "phase", view.Phase.String())

	r.Render(view)

	var once sync.Once
	return func() {
		once.Do(func() { sm.detach(seq) })
	}, nil
}

func (sm *SessionManager) detach(seq uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.attached || sm.seq != seq {
		return
	}
	client := sm.info.Client
	sm.attached = false
	sm.sink = nil
	sm.info = SessionInfo{}
	sm.metrics.RendererConnections.Add(context.Background(), -1)
	sm.log.Info("session: client detached", "client", client)
}

// IsActive reports whether a client is attached.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.attached
}

// Info returns metadata about the attached client, or the zero value.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}
