package interview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScript_DefaultPrompt(t *testing.T) {
	p := DefaultScript().Prompt()

	assert.Contains(t, p, "'Ending interview. Try again with a valid job title.'")
	assert.Contains(t, p, "Ask 2 questions, one question at a time.")
	assert.Contains(t, p, "End with 'Best of luck' and the name of the user.")
}

func TestScript_PromptUsesMarkersAndQuestions(t *testing.T) {
	s := Script{
		Questions: 5,
		Markers:   Markers{Exit: "Interview over", Success: "Good luck"},
	}
	p := s.Prompt()

	assert.Contains(t, p, "Ask 5 questions")
	assert.Contains(t, p, "'Interview over. Try again")
	assert.Contains(t, p, "'Good luck'")
}

func TestScript_CustomPromptWins(t *testing.T) {
	s := Script{SystemPrompt: "Be brief.", Questions: 9}
	assert.Equal(t, "Be brief.", s.Prompt())
}

func TestScript_Normalize(t *testing.T) {
	s := Script{Temperature: 0.4}.Normalize()

	assert.Equal(t, DefaultQuestions, s.Questions)
	assert.Equal(t, DefaultMaxOutputTokens, s.MaxOutputTokens)
	assert.Equal(t, DefaultMarkers, s.Markers)
	assert.InDelta(t, 0.4, s.Temperature, 1e-9)
}
