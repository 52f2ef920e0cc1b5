package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/mockinterview/internal/app"
	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/health"
	"github.com/MrWong99/mockinterview/internal/resilience"
	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

// loadConfig reads the config file. A missing default config.yaml falls back
// to built-in defaults so that an API key in the environment is enough to
// start; an explicitly named file must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.LoadFromReader(strings.NewReader(""))
	}
	return nil, err
}

// newLogger builds the process logger. Logs go to stderr and, when
// server.log_file is set, to a size-rotated file. quiet raises the stderr
// threshold to warn so that log lines do not interleave with a terminal
// interview.
func newLogger(cfg config.ServerConfig, level *slog.LevelVar, quiet bool) (*slog.Logger, io.Closer) {
	level.Set(app.SlogLevel(cfg.LogLevel))

	var stderr slog.Leveler = level
	if quiet {
		stderr = slog.LevelWarn
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: maxLevel{level, stderr}}),
	}

	var closer io.Closer = io.NopCloser(nil)
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: level}))
		closer = lj
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer
	}
	return slog.New(fanout(handlers)), closer
}

// maxLevel enables a record only when both levels do.
type maxLevel struct{ a, b slog.Leveler }

func (m maxLevel) Level() slog.Level {
	return max(m.a.Level(), m.b.Level())
}

// fanout writes every record to all handlers that enable it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// completion is the provider chain built from config.
type completion struct {
	provider llm.Provider
	name     string
	checkers []health.Checker
	closers  []io.Closer
}

func (c *completion) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}

// buildCompletion creates the primary provider and wraps it with the
// configured fallbacks. A missing API key for the primary is fatal; a
// fallback without a key is skipped.
func buildCompletion(cfg *config.Config, reg *config.Registry, log *slog.Logger) (*completion, error) {
	c := &completion{name: cfg.Providers.LLM.Name}

	primary, err := createLLM(reg, cfg.Providers.LLM)
	if err != nil {
		return nil, err
	}
	c.track(primary)
	log.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if len(cfg.Providers.LLMFallbacks) == 0 {
		c.provider = primary
		return c, nil
	}

	fb := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.FallbackConfig{Logger: log})
	for _, entry := range cfg.Providers.LLMFallbacks {
		p, err := createLLM(reg, entry)
		if err != nil {
			log.Warn("skipping fallback provider", "name", entry.Name, "err", err)
			continue
		}
		c.track(p)
		fb.AddFallback(entry.Name, p)
		log.Info("fallback provider added", "name", entry.Name, "model", entry.Model)
	}
	c.provider = fb
	c.name = strings.Join(fb.Names(), ",")
	c.checkers = append(c.checkers, health.Checker{Name: "llm", Check: fb.Check})
	return c, nil
}

func (c *completion) track(p llm.Provider) {
	if cl, ok := p.(io.Closer); ok {
		c.closers = append(c.closers, cl)
	}
}

func createLLM(reg *config.Registry, entry config.ProviderEntry) (llm.Provider, error) {
	key, err := config.RequireAPIKey(entry)
	if err != nil {
		return nil, err
	}
	entry.APIKey = key
	p, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	return p, nil
}
