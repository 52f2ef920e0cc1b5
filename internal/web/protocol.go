package web

import (
	"errors"

	"github.com/MrWong99/mockinterview/internal/interview"
)

// Inbound message types.
const (
	TypeTopic   = "topic"
	TypeMessage = "message"
	TypeReset   = "reset"
)

// Outbound message types.
const (
	TypeView  = "view"
	TypeError = "error"
)

// Error codes carried by error messages.
const (
	CodeEmptyInput = "empty_input"
	CodeWrongPhase = "wrong_phase"
	CodeInFlight   = "in_flight"
	CodeBadRequest = "bad_request"
	CodeInternal   = "internal"
)

// Command is a client request.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Event is a server push. Exactly one of View and Error is set.
type Event struct {
	Type  string    `json:"type"`
	View  *ViewJSON `json:"view,omitempty"`
	Error string    `json:"error,omitempty"`
	Code  string    `json:"code,omitempty"`
	// Command echoes the rejected command type on errors.
	Command string `json:"command,omitempty"`
}

// ViewJSON is the wire form of [interview.View].
type ViewJSON struct {
	Seq      uint64     `json:"seq"`
	ID       string     `json:"id,omitempty"`
	Phase    string     `json:"phase"`
	Topic    string     `json:"topic,omitempty"`
	InFlight bool       `json:"in_flight"`
	Outcome  string     `json:"outcome"`
	Turns    []TurnJSON `json:"turns"`
}

// TurnJSON is the wire form of [interview.TurnView].
type TurnJSON struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

func viewEvent(v interview.View) Event {
	turns := make([]TurnJSON, len(v.Turns))
	for i, t := range v.Turns {
		turns[i] = TurnJSON{
			Speaker: t.Speaker.String(),
			Content: t.Content,
			Status:  t.Status.String(),
		}
	}
	return Event{
		Type: TypeView,
		View: &ViewJSON{
			Seq:      v.Seq,
			ID:       v.ID,
			Phase:    v.Phase.String(),
			Topic:    v.Topic,
			InFlight: v.InFlight,
			Outcome:  v.Outcome.String(),
			Turns:    turns,
		},
	}
}

func errorEvent(command string, err error) Event {
	return Event{
		Type:    TypeError,
		Error:   err.Error(),
		Code:    errorCode(err),
		Command: command,
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, interview.ErrEmptyInput):
		return CodeEmptyInput
	case errors.Is(err, interview.ErrWrongPhase):
		return CodeWrongPhase
	case errors.Is(err, interview.ErrExchangeInFlight):
		return CodeInFlight
	case errors.Is(err, errUnknownCommand):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
