package interview

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func exchangeSpans(sr *tracetest.SpanRecorder) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "interview.exchange" {
			out = append(out, s)
		}
	}
	return out
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestExchangeSpan_Outcomes(t *testing.T) {
	sr := recordSpans(t)
	p := newStreamingProvider(
		deltas("Welcome!", " Your name?"),
		deltas("Best of luck", ", Ann"),
	)
	c, _, _ := newTestController(t, p)
	ctx := context.Background()

	require.NoError(t, c.SubmitTopic(ctx, "nurse"))
	id := c.Snapshot().ID
	require.NoError(t, c.SendMessage(ctx, "Ann"))

	spans := exchangeSpans(sr)
	require.Len(t, spans, 2)

	first, second := spanAttrs(spans[0]), spanAttrs(spans[1])
	assert.Equal(t, id, first["interview.id"].AsString())
	assert.Equal(t, "continue", first["interview.outcome"].AsString())
	assert.Equal(t, int64(2), first["interview.deltas"].AsInt64())
	assert.Equal(t, int64(0), first["interview.turns"].AsInt64())

	assert.Equal(t, "ended_by_success", second["interview.outcome"].AsString())
	assert.Equal(t, int64(2), second["interview.deltas"].AsInt64())
	assert.Equal(t, int64(2), second["interview.turns"].AsInt64())

	for _, s := range spans {
		assert.NotEqual(t, codes.Error, s.Status().Code)
	}
}

func TestExchangeSpan_FailedStream(t *testing.T) {
	sr := recordSpans(t)
	p := newStreamingProvider()
	p.StreamErr = errors.New("connection refused")
	c, _, _ := newTestController(t, p)

	require.NoError(t, c.SubmitTopic(context.Background(), "nurse"))

	spans := exchangeSpans(sr)
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "completion failed", s.Status().Description)
	assert.Equal(t, "ended_by_error", spanAttrs(s)["interview.outcome"].AsString())
	require.NotEmpty(t, s.Events())
	assert.Equal(t, "exception", s.Events()[0].Name)
}

func TestExchangeSpan_ErrorChunkAfterContent(t *testing.T) {
	sr := recordSpans(t)
	p := newStreamingProvider([]llm.Chunk{{Text: "Partial"}, {FinishReason: llm.FinishReasonError, Text: "reset by peer"}})
	c, _, _ := newTestController(t, p)

	require.NoError(t, c.SubmitTopic(context.Background(), "nurse"))

	spans := exchangeSpans(sr)
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "continue", spanAttrs(spans[0])["interview.outcome"].AsString())
}

func TestExchange_LogsCarryTraceID(t *testing.T) {
	sr := recordSpans(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	p := newStreamingProvider(deltas("Ending interview. Try again with a valid job title."))
	c, _, _ := newTestController(t, p, WithLogger(log))

	require.NoError(t, c.SubmitTopic(context.Background(), "qwerty"))

	spans := exchangeSpans(sr)
	require.Len(t, spans, 1)
	traceID := spans[0].SpanContext().TraceID().String()
	assert.Contains(t, buf.String(), `msg="interview ended"`)
	assert.Contains(t, buf.String(), "trace_id="+traceID)
	assert.Contains(t, buf.String(), "span_id="+spans[0].SpanContext().SpanID().String())
}
