package interview

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

// Sentinel errors returned by Transcript and Controller operations.
var (
	// ErrEmptyInput is returned when a topic or message is blank after trimming.
	ErrEmptyInput = errors.New("interview: input is empty")

	// ErrTurnInFlight is returned when an operation needs the transcript to be
	// idle but an assistant turn is still streaming.
	ErrTurnInFlight = errors.New("interview: an assistant turn is still streaming")

	// ErrAwaitingAssistant is returned when a user turn would directly follow
	// another user turn.
	ErrAwaitingAssistant = errors.New("interview: previous user turn has no reply yet")

	// ErrStaleHandle is returned when a TurnHandle no longer refers to the
	// live streaming turn of its transcript.
	ErrStaleHandle = errors.New("interview: turn handle is stale")
)

// TurnHandle is the capability to mutate one streaming assistant turn. It is
// returned by [Transcript.BeginAssistantTurn] and stops working once the turn
// is completed.
type TurnHandle struct {
	tr   *Transcript
	turn *turn
}

// Transcript is the ordered log of turns in one interview. Insertion order is
// conversation order is display order. At most one turn is streaming and it is
// always the last one.
//
// All methods are safe for concurrent use; readers calling [Transcript.Snapshot]
// while deltas are applied see a consistent prefix of the stream.
type Transcript struct {
	mu    sync.RWMutex
	turns []*turn
	log   *slog.Logger
}

// NewTranscript returns an empty transcript. A nil logger selects
// slog.Default().
func NewTranscript(log *slog.Logger) *Transcript {
	if log == nil {
		log = slog.Default()
	}
	return &Transcript{log: log}
}

// AppendUser appends a complete user turn containing the trimmed text.
func (t *Transcript) AppendUser(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if last := t.lastLocked(); last != nil {
		if last.status == StatusStreaming {
			return ErrTurnInFlight
		}
		if last.speaker == SpeakerUser {
			return ErrAwaitingAssistant
		}
	}

	u := &turn{speaker: SpeakerUser, status: StatusComplete}
	u.content.WriteString(text)
	t.turns = append(t.turns, u)
	return nil
}

// BeginAssistantTurn appends an empty streaming assistant turn and returns the
// handle used to fill it.
func (t *Transcript) BeginAssistantTurn() (*TurnHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last := t.lastLocked(); last != nil && last.status == StatusStreaming {
		return nil, ErrTurnInFlight
	}

	a := &turn{speaker: SpeakerAssistant, status: StatusStreaming}
	t.turns = append(t.turns, a)
	return &TurnHandle{tr: t, turn: a}, nil
}

// AppendDelta concatenates text to the turn referenced by h. An empty delta
// is a no-op but the handle is still checked.
func (t *Transcript) AppendDelta(h *TurnHandle, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.liveLocked(h) {
		return ErrStaleHandle
	}
	h.turn.content.WriteString(text)
	return nil
}

// CompleteAssistantTurn freezes the turn referenced by h. A stale handle is
// logged and reported, never panics.
func (t *Transcript) CompleteAssistantTurn(h *TurnHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.liveLocked(h) {
		t.log.Error("interview: complete called with stale turn handle",
			"turns", len(t.turns))
		return ErrStaleHandle
	}
	h.turn.status = StatusComplete
	return nil
}

// Snapshot returns a copy of every turn in order, including partial content
// of a streaming turn.
func (t *Transcript) Snapshot() []TurnView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]TurnView, len(t.turns))
	for i, tn := range t.turns {
		out[i] = tn.view()
	}
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Streaming reports whether the last turn is still receiving deltas.
func (t *Transcript) Streaming() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last := t.lastLocked()
	return last != nil && last.status == StatusStreaming
}

// History converts the complete turns into completion-service messages.
func (t *Transcript) History() []llm.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	msgs := make([]llm.Message, 0, len(t.turns))
	for _, tn := range t.turns {
		if tn.status != StatusComplete {
			continue
		}
		role := llm.RoleUser
		if tn.speaker == SpeakerAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: tn.content.String()})
	}
	return msgs
}

func (t *Transcript) lastLocked() *turn {
	if len(t.turns) == 0 {
		return nil
	}
	return t.turns[len(t.turns)-1]
}

// liveLocked reports whether h refers to the streaming tail of t.
func (t *Transcript) liveLocked(h *TurnHandle) bool {
	if h == nil || h.tr != t || h.turn == nil {
		return false
	}
	last := t.lastLocked()
	return last == h.turn && last.status == StatusStreaming
}
