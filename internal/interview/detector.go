package interview

import "strings"

// Outcome is the lifecycle signal derived from a completed assistant reply.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeEndedByExit
	OutcomeEndedBySuccess
	OutcomeEndedByError
)

// String returns the snake_case name used in logs, metrics and the wire
// protocol.
func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeEndedByExit:
		return "ended_by_exit"
	case OutcomeEndedBySuccess:
		return "ended_by_success"
	case OutcomeEndedByError:
		return "ended_by_error"
	default:
		return "unknown"
	}
}

// Ended reports whether the outcome terminates the interview.
func (o Outcome) Ended() bool {
	return o != OutcomeContinue
}

// Markers are the literal phrases the interviewer is instructed to emit. The
// script prompt and the detector must agree on them.
type Markers struct {
	// Exit ends an interview early, e.g. after an invalid job title.
	Exit string `yaml:"exit"`
	// Success closes a finished interview.
	Success string `yaml:"success"`
	// Error marks a failed reply, including the in-band transport error text.
	Error string `yaml:"error"`
}

// DefaultMarkers are the phrases used by the built-in interview script.
var DefaultMarkers = Markers{
	Exit:    "Ending interview",
	Success: "Best of luck",
	Error:   "Error",
}

// Classify applies [DefaultMarkers] to text.
func Classify(text string) Outcome {
	return DefaultMarkers.Classify(text)
}

// Classify maps a completed reply onto an Outcome by case-sensitive substring
// search with precedence exit, success, error. Any prose that happens to
// contain a marker ends the interview; callers accept that trade-off for
// compatibility with the script. Empty markers never match.
func (m Markers) Classify(text string) Outcome {
	switch {
	case contains(text, m.Exit):
		return OutcomeEndedByExit
	case contains(text, m.Success):
		return OutcomeEndedBySuccess
	case contains(text, m.Error):
		return OutcomeEndedByError
	default:
		return OutcomeContinue
	}
}

func contains(text, marker string) bool {
	return marker != "" && strings.Contains(text, marker)
}

// WithDefaults fills empty markers from [DefaultMarkers].
func (m Markers) WithDefaults() Markers {
	if m.Exit == "" {
		m.Exit = DefaultMarkers.Exit
	}
	if m.Success == "" {
		m.Success = DefaultMarkers.Success
	}
	if m.Error == "" {
		m.Error = DefaultMarkers.Error
	}
	return m
}
