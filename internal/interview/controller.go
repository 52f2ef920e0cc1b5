package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/mockinterview/internal/observe"
	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

// Controller errors. Together with ErrEmptyInput they are the synchronous
// rejections of SubmitTopic, SendMessage and Reset; none of them changes state.
var (
	// ErrWrongPhase is returned when an operation is not valid in the current
	// phase, e.g. SendMessage before a topic was submitted.
	ErrWrongPhase = errors.New("interview: operation not allowed in current phase")

	// ErrExchangeInFlight is returned while another exchange is streaming.
	ErrExchangeInFlight = errors.New("interview: an exchange is already in flight")
)

// Phase is the lifecycle state of an interview session.
type Phase int

const (
	PhaseAwaitingTopic Phase = iota
	PhaseActive
	PhaseEnded
)

// String returns the snake_case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingTopic:
		return "awaiting_topic"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// View is the immutable state published to a Renderer on every mutation.
type View struct {
	// Seq increases with every snapshot. Renderers that may receive views
	// from more than one goroutine keep the one with the highest Seq.
	Seq uint64
	// ID identifies the interview the transcript belongs to. Empty before the
	// first topic.
	ID       string
	Phase    Phase
	Topic    string
	InFlight bool
	Turns    []TurnView
	// Outcome is the classification of the most recent completed reply.
	Outcome Outcome
}

// Renderer receives views. Render is called from the goroutine running the
// exchange and must not call back into the Controller.
type Renderer interface {
	Render(View)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(View)

// Render calls f(v).
func (f RendererFunc) Render(v View) { f(v) }

// Option configures a Controller.
type Option func(*Controller)

// WithScript sets the interview script. Default: [DefaultScript].
func WithScript(s Script) Option {
	return func(c *Controller) { c.script = s.Normalize() }
}

// WithRenderer sets the renderer notified on every state change.
func WithRenderer(r Renderer) Option {
	return func(c *Controller) { c.renderer = r }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics sets the metric instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(c *Controller) { c.providerName = name }
}

// WithOnEnd registers fn to receive the final view of every ended interview.
// It runs on the exchange goroutine after the Ended view was rendered.
func WithOnEnd(fn func(View)) Option {
	return func(c *Controller) { c.onEnd = fn }
}

// session is the state of one interview attempt.
type session struct {
	id         string
	phase      Phase
	topic      string
	script     Script
	transcript *Transcript
	inFlight   bool
	outcome    Outcome
}

// Controller drives the interview lifecycle
// AwaitingTopic → Active → Ended → AwaitingTopic and is the only component
// that talks to the completion service.
//
// Exchanges run on the calling goroutine. At most one exchange is in flight;
// concurrent calls are rejected with [ErrExchangeInFlight] instead of queued.
// All methods are safe for concurrent use.
type Controller struct {
	provider     llm.Provider
	providerName string
	renderer     Renderer
	onEnd        func(View)
	log          *slog.Logger
	metrics      *observe.Metrics

	// exchange is held for the whole of SubmitTopic, SendMessage and Reset.
	exchange *semaphore.Weighted

	mu     sync.Mutex
	script Script
	sess   session
	seq    uint64 // last View.Seq handed out
}

// New creates a Controller in PhaseAwaitingTopic.
func New(provider llm.Provider, opts ...Option) *Controller {
	c := &Controller{
		provider:     provider,
		providerName: "llm",
		script:       DefaultScript(),
		exchange:     semaphore.NewWeighted(1),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.sess = session{
		phase:      PhaseAwaitingTopic,
		script:     c.script,
		transcript: NewTranscript(c.log),
	}
	return c
}

// SetScript replaces the script used for interviews started after the call.
// A running interview keeps the script it started with.
func (c *Controller) SetScript(s Script) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = s.Normalize()
}

// SubmitTopic starts an interview for the given job title. The title is sent
// as the hidden opening input and is never shown as a user turn. It fails
// with ErrWrongPhase unless the controller awaits a topic.
//
// Transport failures are not returned: they end up in the transcript as the
// assistant reply and end the interview through classification.
func (c *Controller) SubmitTopic(ctx context.Context, text string) error {
	topic := strings.TrimSpace(text)
	if topic == "" {
		return ErrEmptyInput
	}
	if !c.exchange.TryAcquire(1) {
		return ErrExchangeInFlight
	}
	defer c.exchange.Release(1)

	c.mu.Lock()
	if c.sess.phase != PhaseAwaitingTopic {
		phase := c.sess.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: submit topic in phase %s", ErrWrongPhase, phase)
	}
	c.sess = session{
		id:         uuid.NewString(),
		phase:      PhaseActive,
		topic:      topic,
		script:     c.script,
		transcript: NewTranscript(c.log),
		inFlight:   true,
	}
	sess := c.sess
	c.mu.Unlock()

	c.metrics.ActiveInterviews.Add(ctx, 1)
	c.log.Info("interview started", "interview_id", sess.id, "topic", topic)

	return c.runExchange(ctx, sess, nil)
}

// SendMessage answers the interviewer. The text becomes a user turn and the
// whole history is sent to the completion service.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	msg := strings.TrimSpace(text)
	if msg == "" {
		return ErrEmptyInput
	}
	if !c.exchange.TryAcquire(1) {
		return ErrExchangeInFlight
	}
	defer c.exchange.Release(1)

	c.mu.Lock()
	if c.sess.phase != PhaseActive {
		phase := c.sess.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: send message in phase %s", ErrWrongPhase, phase)
	}
	c.sess.inFlight = true
	sess := c.sess
	c.mu.Unlock()

	if err := sess.transcript.AppendUser(msg); err != nil {
		c.setInFlight(false)
		c.log.Error("interview: append user turn", "interview_id", sess.id, "err", err)
		return fmt.Errorf("interview: append user turn: %w", err)
	}
	c.render()

	return c.runExchange(ctx, sess, sess.transcript.History())
}

// Reset abandons the current interview and returns to PhaseAwaitingTopic with
// an empty topic and transcript.
func (c *Controller) Reset() error {
	if !c.exchange.TryAcquire(1) {
		return ErrExchangeInFlight
	}
	defer c.exchange.Release(1)

	c.mu.Lock()
	if c.sess.phase == PhaseActive {
		c.metrics.ActiveInterviews.Add(context.Background(), -1)
		c.log.Info("interview abandoned", "interview_id", c.sess.id)
	}
	c.sess = session{
		phase:      PhaseAwaitingTopic,
		script:     c.script,
		transcript: NewTranscript(c.log),
	}
	c.mu.Unlock()

	c.render()
	return nil
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.phase
}

// Topic returns the job title of the running interview, or "".
func (c *Controller) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.topic
}

// InFlight reports whether an exchange is streaming.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.inFlight
}

// LastOutcome returns the classification of the most recent reply.
func (c *Controller) LastOutcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.outcome
}

// Snapshot returns the current view. Views are numbered in the order they
// are taken, so a later view never carries older state than an earlier one.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	return View{
		Seq:      c.seq,
		ID:       c.sess.id,
		Phase:    c.sess.phase,
		Topic:    c.sess.topic,
		InFlight: c.sess.inFlight,
		Turns:    c.sess.transcript.Snapshot(),
		Outcome:  c.sess.outcome,
	}
}

func (c *Controller) render() {
	if c.renderer != nil {
		c.renderer.Render(c.Snapshot())
	}
}

// runExchange streams one reply into sess.transcript and applies the
// resulting lifecycle transition. The caller holds the exchange semaphore and
// has already marked the session in flight.
func (c *Controller) runExchange(ctx context.Context, sess session, history []llm.Message) error {
	ctx, span := observe.StartSpan(ctx, "interview.exchange")
	defer span.End()
	span.SetAttributes(
		attribute.String("interview.id", sess.id),
		attribute.Int("interview.turns", sess.transcript.Len()),
	)
	log := observe.Logger(ctx, c.log).With("interview_id", sess.id)

	// The topic opens every conversation but is never a displayed turn.
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: sess.topic})
	msgs = append(msgs, history...)

	req := llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: sess.script.Prompt(),
		Temperature:  sess.script.Temperature,
		MaxTokens:    sess.script.MaxOutputTokens,
	}
	if n, err := c.provider.CountTokens(msgs); err == nil {
		c.metrics.RecordPromptTokens(ctx, n)
		log.Debug("sending exchange", "messages", len(msgs), "prompt_tokens", n)
	}

	start := time.Now()
	firstDelta := false
	publish := func() {
		if !firstDelta && sess.transcript.Len() > 0 {
			turns := sess.transcript.Snapshot()
			if turns[len(turns)-1].Content != "" {
				firstDelta = true
				c.metrics.RecordFirstDelta(ctx, time.Since(start))
			}
		}
		c.render()
	}

	res := Aggregate(ctx, sess.transcript, c.open(req), publish)
	outcome := sess.script.Markers.Classify(res.Text)
	c.metrics.RecordExchange(ctx, outcome.String(), time.Since(start), res.Deltas)
	span.SetAttributes(
		attribute.String("interview.outcome", outcome.String()),
		attribute.Int("interview.deltas", res.Deltas),
	)

	var violation error
	switch {
	case res.Err == nil:
	case errors.Is(res.Err, ErrStaleHandle), errors.Is(res.Err, ErrTurnInFlight):
		violation = res.Err
		observe.FailSpan(span, res.Err, "transcript invariant violated")
		log.Error("interview: exchange aborted", "err", res.Err)
	default:
		observe.FailSpan(span, res.Err, "completion failed")
		log.Warn("completion failed", "err", res.Err, "partial", res.Text != ErrorText)
	}

	if c.finish(ctx, outcome) {
		log.Info("interview ended", "outcome", outcome.String())
		ended := c.Snapshot()
		if c.renderer != nil {
			c.renderer.Render(ended)
		}
		if c.onEnd != nil {
			c.onEnd(ended)
		}
		c.restart()
	}
	c.render()

	if violation != nil {
		return fmt.Errorf("interview: exchange: %w", violation)
	}
	return nil
}

// open returns the StreamFunc for req. Providers without streaming support are
// driven through Complete and their reply is delivered as a single delta.
func (c *Controller) open(req llm.CompletionRequest) StreamFunc {
	return func(ctx context.Context) (<-chan llm.Chunk, error) {
		if !c.provider.Capabilities().SupportsStreaming {
			resp, err := c.provider.Complete(ctx, req)
			if err != nil {
				c.metrics.RecordProviderRequest(ctx, c.providerName, "complete", "error")
				c.metrics.RecordProviderError(ctx, c.providerName, "complete")
				return nil, err
			}
			c.metrics.RecordProviderRequest(ctx, c.providerName, "complete", "ok")
			ch := make(chan llm.Chunk, 1)
			if resp != nil {
				ch <- llm.Chunk{Text: resp.Content, FinishReason: "stop"}
			}
			close(ch)
			return ch, nil
		}

		ch, err := c.provider.StreamCompletion(ctx, req)
		if err != nil {
			c.metrics.RecordProviderRequest(ctx, c.providerName, "stream", "error")
			c.metrics.RecordProviderError(ctx, c.providerName, "stream")
			return nil, err
		}
		c.metrics.RecordProviderRequest(ctx, c.providerName, "stream", "ok")
		return ch, nil
	}
}

func (c *Controller) setInFlight(v bool) {
	c.mu.Lock()
	c.sess.inFlight = v
	c.mu.Unlock()
}

// finish clears the in-flight flag and records the outcome. It reports
// whether the interview moved to PhaseEnded.
func (c *Controller) finish(ctx context.Context, outcome Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sess.inFlight = false
	c.sess.outcome = outcome
	if !outcome.Ended() {
		return false
	}
	c.sess.phase = PhaseEnded
	c.metrics.ActiveInterviews.Add(ctx, -1)
	return true
}

// restart performs the automatic reset after an ended interview. The ended
// transcript stays visible until the next topic is submitted.
func (c *Controller) restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.phase = PhaseAwaitingTopic
	c.sess.topic = ""
}
