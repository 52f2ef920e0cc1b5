package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/mockinterview/internal/interview"
	"github.com/MrWong99/mockinterview/internal/observe"
	"github.com/MrWong99/mockinterview/pkg/provider/llm"
	llmmock "github.com/MrWong99/mockinterview/pkg/provider/llm/mock"
)

type viewLog struct {
	mu    sync.Mutex
	views []interview.View
}

func (l *viewLog) Render(v interview.View) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views = append(l.views, v)
}

func (l *viewLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.views)
}

func (l *viewLog) last() interview.View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.views[len(l.views)-1]
}

func newTestManager(t *testing.T, streams ...[]llm.Chunk) (*SessionManager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sm := NewSessionManager(SessionManagerConfig{Metrics: m, Logger: log})
	p := &llmmock.Provider{
		Streams:           streams,
		ModelCapabilities: llm.ModelCapabilities{SupportsStreaming: true},
	}
	sm.Bind(interview.New(p,
		interview.WithRenderer(sm),
		interview.WithLogger(log),
		interview.WithMetrics(m),
	))
	return sm, reader
}

func connections(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mockinterview.renderer_connections" {
				continue
			}
			var total int64
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestSessionManager_AttachRendersCurrentView(t *testing.T) {
	sm, reader := newTestManager(t)
	log := &viewLog{}

	detach, err := sm.Attach(context.Background(), "127.0.0.1:5000", log)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer detach()

	if log.len() != 1 {
		t.Fatalf("got %d views on attach, want 1", log.len())
	}
	if got := log.last().Phase; got != interview.PhaseAwaitingTopic {
		t.Errorf("phase = %v, want awaiting_topic", got)
	}
	if !sm.IsActive() {
		t.Error("IsActive() = false after Attach")
	}
	if info := sm.Info(); info.Client != "127.0.0.1:5000" || info.AttachedAt.IsZero() {
		t.Errorf("Info() = %+v", info)
	}
	if n := connections(t, reader); n != 1 {
		t.Errorf("renderer_connections = %d, want 1", n)
	}
}

func TestSessionManager_SecondAttachRejected(t *testing.T) {
	sm, _ := newTestManager(t)

	detach, err := sm.Attach(context.Background(), "first", &viewLog{})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	_, err = sm.Attach(context.Background(), "second", &viewLog{})
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Attach err = %v, want ErrSessionActive", err)
	}

	detach()
	detach2, err := sm.Attach(context.Background(), "second", &viewLog{})
	if err != nil {
		t.Fatalf("Attach after detach: %v", err)
	}
	detach2()
}

func TestSessionManager_ForwardsExchangeViews(t *testing.T) {
	sm, _ := newTestManager(t, []llm.Chunk{{Text: "Welcome, "}, {Text: "what is your name?"}})
	log := &viewLog{}
	detach, err := sm.Attach(context.Background(), "client", log)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer detach()

	if err := sm.Controller().SubmitTopic(context.Background(), "Backend engineer"); err != nil {
		t.Fatalf("SubmitTopic: %v", err)
	}

	last := log.last()
	if last.Phase != interview.PhaseActive || last.InFlight {
		t.Fatalf("last view = %+v, want active and idle", last)
	}
	if len(last.Turns) != 1 || last.Turns[0].Content != "Welcome, what is your name?" {
		t.Errorf("turns = %+v", last.Turns)
	}
}

func TestSessionManager_DetachIsIdempotent(t *testing.T) {
	sm, reader := newTestManager(t)
	detach, err := sm.Attach(context.Background(), "client", &viewLog{})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	detach()
	detach()

	if sm.IsActive() {
		t.Error("IsActive() = true after detach")
	}
	if n := connections(t, reader); n != 0 {
		t.Errorf("renderer_connections = %d, want 0", n)
	}
}

func TestSessionManager_StaleDetachKeepsNewClient(t *testing.T) {
	sm, _ := newTestManager(t)
	first, err := sm.Attach(context.Background(), "first", &viewLog{})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	first()

	second, err := sm.Attach(context.Background(), "second", &viewLog{})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer second()

	first()
	if !sm.IsActive() || sm.Info().Client != "second" {
		t.Errorf("stale detach removed the new client: %+v", sm.Info())
	}
}

func TestSessionManager_RenderWithoutClient(t *testing.T) {
	sm, _ := newTestManager(t)
	// Must not panic.
	sm.Render(interview.View{})
}
