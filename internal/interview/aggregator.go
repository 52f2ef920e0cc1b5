package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

// ErrorText replaces the reply when a completion fails before any content
// arrived. It deliberately contains the default error marker.
const ErrorText = "Error: unable to get a response from AI."

// ErrStreamFailed wraps failures reported inside a completion stream.
var ErrStreamFailed = errors.New("interview: completion stream failed")

// StreamFunc opens the delta stream for one exchange.
type StreamFunc func(ctx context.Context) (<-chan llm.Chunk, error)

// Result is the outcome of folding one stream into a transcript.
type Result struct {
	// Text is the final content of the assistant turn.
	Text string
	// Deltas is the number of non-empty deltas applied.
	Deltas int
	// Err is the transport failure or invariant violation that ended the
	// stream early, nil on a clean close.
	Err error
}

// Aggregate runs one exchange against tr. It begins an assistant turn, opens
// the stream, applies each delta in arrival order and calls publish after
// every mutation. On a transport failure it keeps partial content, or
// substitutes [ErrorText] when nothing arrived, and still completes the turn.
//
// The turn handle never escapes Aggregate. The stream context is cancelled on
// return so the producer can exit.
func Aggregate(ctx context.Context, tr *Transcript, open StreamFunc, publish func()) Result {
	if publish == nil {
		publish = func() {}
	}

	h, err := tr.BeginAssistantTurn()
	if err != nil {
		return Result{Err: fmt.Errorf("interview: begin assistant turn: %w", err)}
	}
	publish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		sb     strings.Builder
		deltas int
	)

	fail := func(cause error) Result {
		if sb.Len() == 0 {
			if err := tr.AppendDelta(h, ErrorText); err != nil {
				return Result{Text: sb.String(), Deltas: deltas, Err: errors.Join(cause, err)}
			}
			sb.WriteString(ErrorText)
		}
		if err := tr.CompleteAssistantTurn(h); err != nil {
			return Result{Text: sb.String(), Deltas: deltas, Err: errors.Join(cause, err)}
		}
		publish()
		return Result{Text: sb.String(), Deltas: deltas, Err: cause}
	}

	chunks, err := open(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: open: %w", ErrStreamFailed, err))
	}

	for {
		select {
		case <-ctx.Done():
			return fail(fmt.Errorf("%w: %w", ErrStreamFailed, ctx.Err()))

		case c, ok := <-chunks:
			if !ok {
				if err := tr.CompleteAssistantTurn(h); err != nil {
					return Result{Text: sb.String(), Deltas: deltas, Err: err}
				}
				publish()
				return Result{Text: sb.String(), Deltas: deltas}
			}
			if c.Failed() {
				return fail(fmt.Errorf("%w: %s", ErrStreamFailed, c.Text))
			}
			if c.Text == "" {
				continue
			}
			if err := tr.AppendDelta(h, c.Text); err != nil {
				// The turn is no longer ours to complete.
				return Result{Text: sb.String(), Deltas: deltas, Err: err}
			}
			sb.WriteString(c.Text)
			deltas++
			publish()
		}
	}
}
