// Package llm defines the Provider interface for the text-completion services
// that conduct an interview.
//
// A provider wraps a remote or local model API (Gemini, OpenAI, Anthropic, a
// local Ollama instance, ...) and exposes a uniform streaming interface so the
// interview engine never couples to a specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation exactly once, when the
// stream ends, fails, or the supplied context is cancelled.
package llm

import "context"

// FinishReasonError is the FinishReason carried by the final Chunk of a stream
// that failed after it was opened. The chunk's Text holds the error message.
const FinishReasonError = "error"

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce the next
// interviewer reply. At minimum Messages must be non-empty and end with a
// "user" message.
type CompletionRequest struct {
	// Messages is the ordered conversation history; the last message is the
	// new user input.
	Messages []Message

	// SystemPrompt is the interview script. Providers without a dedicated
	// system field prepend it as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int
}

// Chunk is a single text fragment emitted by a streaming completion. Chunk
// boundaries carry no meaning: a fragment may split a word in half.
type Chunk struct {
	// Text is the incremental text of this chunk. May be empty.
	Text string

	// FinishReason is set on the final chunk: "stop", "length",
	// [FinishReasonError], or "" for non-final chunks.
	FinishReason string
}

// Failed reports whether c signals an in-stream failure.
func (c Chunk) Failed() bool {
	return c.FinishReason == FinishReasonError
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any completion backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values in arrival order. The initial error is non-nil
	// only when the stream could not be started; later failures arrive as a
	// final Chunk with FinishReason [FinishReasonError].
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens messages would consume. The
	// result need not be exact but should not undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata about the configured model.
	Capabilities() ModelCapabilities
}
