// Package console runs an interview in a terminal. Replies are printed as
// their deltas arrive; user turns are not echoed because the terminal already
// shows what was typed.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/MrWong99/mockinterview/internal/interview"
)

// Slash commands understood by [Run].
const (
	CmdReset = "/reset"
	CmdQuit  = "/quit"
)

// Prompts printed when the interview waits for input.
const (
	TopicPrompt   = "Job title> "
	MessagePrompt = "> "
)

// Renderer prints views to a terminal incrementally.
type Renderer struct {
	mu sync.Mutex
	w  io.Writer

	interviewer *color.Color
	notice      *color.Color

	id       string // interview the counters below refer to
	turn     int    // index of the turn being printed
	written  int    // bytes of that turn already printed
	open     bool   // an assistant line is open
	prompted bool   // the prompt for the current idle period is printed
	phase    interview.Phase
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithColor enables or disables ANSI colours. By default colours follow
// fatih/color's terminal detection.
func WithColor(enabled bool) RendererOption {
	return func(r *Renderer) {
		if enabled {
			r.interviewer.EnableColor()
			r.notice.EnableColor()
		} else {
			r.interviewer.DisableColor()
			r.notice.DisableColor()
		}
	}
}

// NewRenderer returns a Renderer writing to w.
func NewRenderer(w io.Writer, opts ...RendererOption) *Renderer {
	r := &Renderer{
		w:           w,
		interviewer: color.New(color.FgCyan),
		notice:      color.New(color.FgYellow),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render implements [interview.Renderer].
func (r *Renderer) Render(v interview.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.ID != r.id {
		r.closeLine()
		r.id = v.ID
		r.turn = 0
		r.written = 0
	}

	for r.turn < len(v.Turns) {
		t := v.Turns[r.turn]
		if t.Speaker == interview.SpeakerUser {
			r.turn++
			continue
		}
		if !r.open {
			r.interviewer.Fprint(r.w, "Interviewer: ")
			r.open = true
		}
		if len(t.Content) > r.written {
			fmt.Fprint(r.w, t.Content[r.written:])
			r.written = len(t.Content)
		}
		if t.Status == interview.StatusStreaming {
			break
		}
		r.closeLine()
		r.turn++
		r.written = 0
	}

	if v.InFlight {
		r.prompted = false
		r.phase = v.Phase
		return
	}
	if v.Phase == interview.PhaseEnded {
		r.closeLine()
		r.notice.Fprintf(r.w, "-- interview ended (%s) --\n", v.Outcome)
		r.phase = v.Phase
		r.prompted = false
		return
	}
	if !r.prompted || r.phase != v.Phase {
		r.closeLine()
		switch v.Phase {
		case interview.PhaseAwaitingTopic:
			fmt.Fprint(r.w, TopicPrompt)
		case interview.PhaseActive:
			fmt.Fprint(r.w, MessagePrompt)
		}
		r.prompted = true
	}
	r.phase = v.Phase
}

// Notice prints an out-of-band message such as a rejected input.
func (r *Renderer) Notice(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLine()
	r.notice.Fprintf(r.w, format+"\n", args...)
	r.prompted = false
}

func (r *Renderer) closeLine() {
	if r.open {
		fmt.Fprintln(r.w)
		r.open = false
	}
}

// Interviewer is the part of [interview.Controller] the console drives.
type Interviewer interface {
	SubmitTopic(ctx context.Context, text string) error
	SendMessage(ctx context.Context, text string) error
	Reset() error
	Phase() interview.Phase
	Snapshot() interview.View
}

// Run reads lines from in and feeds them to iv until in is exhausted, the
// user types /quit, or ctx is cancelled. The first line of an interview is
// the job title; later lines are answers. Rejected input is reported through
// r and does not stop the loop.
func Run(ctx context.Context, iv Interviewer, in io.Reader, r *Renderer) error {
	r.Render(iv.Snapshot())

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		var err error
		switch strings.TrimSpace(line) {
		case CmdQuit:
			return nil
		case CmdReset:
			if err = iv.Reset(); err == nil {
				r.Notice("-- interview reset --")
				r.Render(iv.Snapshot())
			}
		default:
			if iv.Phase() == interview.PhaseAwaitingTopic {
				err = iv.SubmitTopic(ctx, line)
			} else {
				err = iv.SendMessage(ctx, line)
			}
		}
		if err != nil {
			r.Notice("! %s", describe(err))
			r.Render(iv.Snapshot())
		}
	}
}

func describe(err error) string {
	switch {
	case errors.Is(err, interview.ErrEmptyInput):
		return "please type something first"
	case errors.Is(err, interview.ErrExchangeInFlight):
		return "wait for the interviewer to finish"
	case errors.Is(err, interview.ErrWrongPhase):
		return "that is not possible right now"
	default:
		return err.Error()
	}
}
