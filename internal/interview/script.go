package interview

import (
	"fmt"
	"strings"
)

// Script defaults.
const (
	DefaultQuestions       = 2
	DefaultMaxOutputTokens = 500
)

// Script describes how the interviewer behaves. A Controller copies the script
// when an interview starts, so changes apply to the next interview only.
type Script struct {
	// Questions is how many questions the interviewer asks.
	Questions int

	// MaxOutputTokens caps the length of each reply.
	MaxOutputTokens int

	// Temperature is passed through to the completion service. Zero leaves the
	// service default.
	Temperature float64

	// SystemPrompt replaces the generated prompt when non-empty. It must still
	// instruct the model to use Markers.
	SystemPrompt string

	// Markers are the termination phrases the prompt asks for and the
	// detector looks for.
	Markers Markers
}

// DefaultScript returns the built-in two-question interview.
func DefaultScript() Script {
	return Script{
		Questions:       DefaultQuestions,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Markers:         DefaultMarkers,
	}
}

// Normalize fills zero values with defaults.
func (s Script) Normalize() Script {
	if s.Questions <= 0 {
		s.Questions = DefaultQuestions
	}
	if s.MaxOutputTokens <= 0 {
		s.MaxOutputTokens = DefaultMaxOutputTokens
	}
	s.Markers = s.Markers.WithDefaults()
	return s
}

// Prompt returns the system instruction sent with every exchange.
func (s Script) Prompt() string {
	if s.SystemPrompt != "" {
		return s.SystemPrompt
	}
	s = s.Normalize()

	lines := []string{
		"You are the interviewer in a mock job interview.",
		"The job role will be entered in the first user input.",
		fmt.Sprintf("Ignore greetings. If the first input is not a valid job role, send a message to the user and say '%s. Try again with a valid job title.'.", s.Markers.Exit),
		"Start by welcoming the user to the interview and asking for their name and background.",
		fmt.Sprintf("Ask %d questions, one question at a time.", s.Questions),
		"Don't number the questions like 'question 1'.",
		"If the user doesn't answer a question accordingly, ask the question again.",
		"Provide feedback about the quality of the answers and where the user can improve.",
		fmt.Sprintf("End with '%s' and the name of the user.", s.Markers.Success),
	}
	return strings.Join(lines, "\n")
}
