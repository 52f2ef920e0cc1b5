// Package app wires the interview engine, its HTTP surface and the config
// watcher into a running server.
//
// New builds the subsystems, Run serves until the context is cancelled and
// then shuts the HTTP server down gracefully. Test doubles are injected with
// functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mockinterview/internal/archive"
	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/health"
	"github.com/MrWong99/mockinterview/internal/interview"
	"github.com/MrWong99/mockinterview/internal/observe"
	"github.com/MrWong99/mockinterview/internal/web"
	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// App owns the lifetime of the interview server.
type App struct {
	cfg      *config.Config
	provider llm.Provider
	name     string

	log      *slog.Logger
	level    *slog.LevelVar
	metrics  *observe.Metrics
	watcher  *config.Watcher
	listener net.Listener
	checkers []health.Checker

	sessions *SessionManager
	ctrl     *interview.Controller
	health   *health.Handler
	web      *web.Server
	server   *http.Server

	// baseCtx outlives individual connections; it is cancelled on shutdown.
	baseCtx context.Context
	stop    context.CancelFunc
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevel lets config reloads change the log level at runtime.
func WithLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithWatcher hot-reloads the interview script and log level from w.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithProviderName labels the completion provider in logs and metrics.
func WithProviderName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithHealthChecker adds a readiness check to /readyz.
func WithHealthChecker(c health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c) }
}

// New creates an App serving a single interview backed by provider.
func New(cfg *config.Config, provider llm.Provider, opts ...Option) (*App, error) {
	if provider == nil {
		return nil, errors.New("app: completion provider is required")
	}
	a := &App{
		cfg:      cfg,
		provider: provider,
		name:     cfg.Providers.LLM.Name,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.sessions = NewSessionManager(SessionManagerConfig{Metrics: a.metrics, Logger: a.log})
	ctrlOpts := []interview.Option{
		interview.WithScript(cfg.Interview.Script()),
		interview.WithRenderer(a.sessions),
		interview.WithLogger(a.log),
		interview.WithMetrics(a.metrics),
		interview.WithProviderName(a.name),
	}
	if cfg.Server.ArchiveFile != "" {
		ctrlOpts = append(ctrlOpts, interview.WithOnEnd(archive.NewFileStore(cfg.Server.ArchiveFile).OnEnd(a.log)))
	}
	a.ctrl = interview.New(provider, ctrlOpts...)
	a.sessions.Bind(a.ctrl)

	a.health = health.New(a.checkers...)
	a.baseCtx, a.stop = context.WithCancel(context.Background())
	a.web = web.New(a.ctrl, a.sessions,
		web.WithLogger(a.log),
		web.WithBaseContext(a.baseCtx),
	)

	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.web.Register(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}
	return a, nil
}

// Controller returns the interview controller.
func (a *App) Controller() *interview.Controller { return a.ctrl }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves HTTP (and polls the config file when a watcher is set) until ctx
// is cancelled, then shuts down gracefully. It returns nil on a clean
// shutdown.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.health.SetDraining()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		// Websocket connections are hijacked and not covered by Shutdown.
		a.stop()
		a.web.Wait()
		if err != nil {
			return fmt.Errorf("app: shutdown: %w", err)
		}
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	return g.Wait()
}

// OnConfigChange applies a reloaded configuration. It is the callback handed
// to [config.NewWatcher].
func (a *App) OnConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.ScriptChanged {
		a.ctrl.SetScript(new.Interview.Script())
		a.log.Info("interview script reloaded, applies from the next interview",
			"questions", new.Interview.Questions,
		)
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if d.RestartRequired() {
		a.log.Warn("config changes require a restart to take effect",
			"providers", d.ProvidersChanged,
			"server", d.ServerChanged,
		)
	}
}

// SlogLevel converts a configured level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
