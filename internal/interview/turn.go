// Package interview implements the session and transcript engine of the mock
// interviewer. It folds incremental completion deltas into an append-only
// conversation log, keeps at most one assistant turn in flight, and watches
// the assistant's own output for the phrases that end an interview.
//
// The package is presentation-free: every state change is published as an
// immutable [View] to a [Renderer].
package interview

import "strings"

// Speaker identifies who produced a turn.
type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerAssistant
)

// String returns "user" or "assistant".
func (s Speaker) String() string {
	switch s {
	case SpeakerUser:
		return "user"
	case SpeakerAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a single turn.
type Status int

const (
	// StatusStreaming marks the one turn that is still receiving deltas.
	StatusStreaming Status = iota
	// StatusComplete marks a turn whose content is frozen.
	StatusComplete
)

// String returns "streaming" or "complete".
func (s Status) String() string {
	switch s {
	case StatusStreaming:
		return "streaming"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// TurnView is a read-only copy of a turn handed to renderers.
type TurnView struct {
	Speaker Speaker
	Content string
	Status  Status
}

// turn is the mutable record stored inside a Transcript. Its identity is its
// pointer, which is what a TurnHandle captures.
type turn struct {
	speaker Speaker
	content strings.Builder
	status  Status
}

func (t *turn) view() TurnView {
	return TurnView{
		Speaker: t.speaker,
		Content: t.content.String(),
		Status:  t.status,
	}
}
