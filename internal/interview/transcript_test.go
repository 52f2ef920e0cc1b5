package interview

import (
	"bytes"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTranscript_AppendUser(t *testing.T) {
	tr := NewTranscript(discardLogger())

	require.NoError(t, tr.AppendUser("  I led the migration.  "))
	turns := tr.Snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, TurnView{Speaker: SpeakerUser, Content: "I led the migration.", Status: StatusComplete}, turns[0])
}

func TestTranscript_AppendUser_Rejections(t *testing.T) {
	tr := NewTranscript(discardLogger())

	assert.ErrorIs(t, tr.AppendUser(""), ErrEmptyInput)
	assert.ErrorIs(t, tr.AppendUser(" \t\n"), ErrEmptyInput)
	assert.Equal(t, 0, tr.Len())

	require.NoError(t, tr.AppendUser("first"))
	assert.ErrorIs(t, tr.AppendUser("second"), ErrAwaitingAssistant)
	assert.Equal(t, 1, tr.Len())

	_, err := tr.BeginAssistantTurn()
	require.NoError(t, err)
	assert.ErrorIs(t, tr.AppendUser("while streaming"), ErrTurnInFlight)
	assert.Equal(t, 2, tr.Len())
}

func TestTranscript_BeginAssistantTurn_OnlyOneStreaming(t *testing.T) {
	tr := NewTranscript(discardLogger())

	h, err := tr.BeginAssistantTurn()
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, tr.Streaming())

	_, err = tr.BeginAssistantTurn()
	assert.ErrorIs(t, err, ErrTurnInFlight)
	assert.Equal(t, 1, tr.Len())

	turns := tr.Snapshot()
	assert.Equal(t, TurnView{Speaker: SpeakerAssistant, Content: "", Status: StatusStreaming}, turns[0])
}

func TestTranscript_AppendDelta_Concatenates(t *testing.T) {
	tr := NewTranscript(discardLogger())
	h, err := tr.BeginAssistantTurn()
	require.NoError(t, err)

	deltas := []string{"Wel", "come", "", " to the", " interview", "."}
	for _, d := range deltas {
		require.NoError(t, tr.AppendDelta(h, d))
	}
	require.NoError(t, tr.CompleteAssistantTurn(h))

	turns := tr.Snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, strings.Join(deltas, ""), turns[0].Content)
	assert.Equal(t, StatusComplete, turns[0].Status)
	assert.False(t, tr.Streaming())
}

func TestTranscript_StaleHandle(t *testing.T) {
	var logs bytes.Buffer
	tr := NewTranscript(slog.New(slog.NewTextHandler(&logs, nil)))

	h, err := tr.BeginAssistantTurn()
	require.NoError(t, err)
	require.NoError(t, tr.AppendDelta(h, "done"))
	require.NoError(t, tr.CompleteAssistantTurn(h))

	assert.ErrorIs(t, tr.AppendDelta(h, "more"), ErrStaleHandle)
	assert.ErrorIs(t, tr.CompleteAssistantTurn(h), ErrStaleHandle)
	assert.Contains(t, logs.String(), "stale turn handle")
	assert.Equal(t, "done", tr.Snapshot()[0].Content)

	// A handle from another transcript is never live.
	other := NewTranscript(discardLogger())
	oh, err := other.BeginAssistantTurn()
	require.NoError(t, err)
	_, err = tr.BeginAssistantTurn()
	require.NoError(t, err)
	assert.ErrorIs(t, tr.AppendDelta(oh, "x"), ErrStaleHandle)
	assert.ErrorIs(t, tr.AppendDelta(nil, "x"), ErrStaleHandle)
}

func TestTranscript_SnapshotIsACopy(t *testing.T) {
	tr := NewTranscript(discardLogger())
	h, err := tr.BeginAssistantTurn()
	require.NoError(t, err)
	require.NoError(t, tr.AppendDelta(h, "Hello"))

	before := tr.Snapshot()
	require.NoError(t, tr.AppendDelta(h, " there"))
	before[0].Content = "mutated"

	after := tr.Snapshot()
	assert.Equal(t, "Hello there", after[0].Content)
	assert.Equal(t, StatusStreaming, after[0].Status)
}

func TestTranscript_History(t *testing.T) {
	tr := NewTranscript(discardLogger())

	h, err := tr.BeginAssistantTurn()
	require.NoError(t, err)
	require.NoError(t, tr.AppendDelta(h, "What is your name?"))
	require.NoError(t, tr.CompleteAssistantTurn(h))
	require.NoError(t, tr.AppendUser("Jane"))

	h, err = tr.BeginAssistantTurn()
	require.NoError(t, err)
	require.NoError(t, tr.AppendDelta(h, "partial"))

	// The streaming turn is not history yet.
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleAssistant, Content: "What is your name?"},
		{Role: llm.RoleUser, Content: "Jane"},
	}, tr.History())
}

// TestTranscript_AtMostOneStreaming drives random operation sequences and
// checks after every step that at most one turn streams and that it is last.
func TestTranscript_AtMostOneStreaming(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for run := 0; run < 50; run++ {
		tr := NewTranscript(discardLogger())
		var handles []*TurnHandle

		for step := 0; step < 100; step++ {
			switch rng.IntN(4) {
			case 0:
				_ = tr.AppendUser("answer")
			case 1:
				if h, err := tr.BeginAssistantTurn(); err == nil {
					handles = append(handles, h)
				}
			case 2:
				if len(handles) > 0 {
					_ = tr.AppendDelta(handles[rng.IntN(len(handles))], "d")
				}
			case 3:
				if len(handles) > 0 {
					_ = tr.CompleteAssistantTurn(handles[rng.IntN(len(handles))])
				}
			}

			turns := tr.Snapshot()
			streaming := 0
			for i, tv := range turns {
				if tv.Status == StatusStreaming {
					streaming++
					require.Equal(t, len(turns)-1, i, "streaming turn must be last")
				}
			}
			require.LessOrEqual(t, streaming, 1)
		}
	}
}

// TestTranscript_DeltaOrder checks that content equals the in-order
// concatenation of arbitrary deltas.
func TestTranscript_DeltaOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	alphabet := []rune("ab cdé🙂\n*")

	for run := 0; run < 100; run++ {
		tr := NewTranscript(discardLogger())
		h, err := tr.BeginAssistantTurn()
		require.NoError(t, err)

		var want strings.Builder
		for i := rng.IntN(20); i > 0; i-- {
			var d strings.Builder
			for j := rng.IntN(5); j > 0; j-- {
				d.WriteRune(alphabet[rng.IntN(len(alphabet))])
			}
			require.NoError(t, tr.AppendDelta(h, d.String()))
			want.WriteString(d.String())
		}
		require.NoError(t, tr.CompleteAssistantTurn(h))
		assert.Equal(t, want.String(), tr.Snapshot()[0].Content)
	}
}

func TestSpeakerAndStatusStrings(t *testing.T) {
	assert.Equal(t, "user", SpeakerUser.String())
	assert.Equal(t, "assistant", SpeakerAssistant.String())
	assert.Equal(t, "streaming", StatusStreaming.String())
	assert.Equal(t, "complete", StatusComplete.String())
}
