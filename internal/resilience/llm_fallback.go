package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

// errFailedBeforeContent marks a stream whose first chunk was already an error.
var errFailedBeforeContent = errors.New("resilience: stream failed before first delta")

// LLMFallback implements [llm.Provider] over a [FallbackGroup] of completion
// services.
//
// StreamCompletion fails over while a backend has not produced any text: an
// open error, or a stream whose first chunk is an error chunk, moves on to the
// next entry. Once a delta has been forwarded the stream belongs to that
// backend and later failures reach the caller as usual.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional provider.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the provider names in failover order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Complete returns the first successful response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a stream on the first healthy provider.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	var last llm.Chunk
	ch, err := ExecuteWithResult(ctx, f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		if !p.Capabilities().SupportsStreaming {
			return completeAsStream(ctx, p, req)
		}
		src, err := p.StreamCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		first, ok := <-src
		if ok && first.Failed() {
			last = first
			go drain(src)
			return nil, errFailedBeforeContent
		}
		return prepend(ctx, first, ok, src), nil
	})
	if err != nil && errors.Is(err, errFailedBeforeContent) {
		// Every backend failed in-stream; surface the last one the same way.
		out := make(chan llm.Chunk, 1)
		out <- last
		close(out)
		return out, nil
	}
	return ch, err
}

// Check is a readiness check; it fails while every backend's breaker is open.
func (f *LLMFallback) Check(context.Context) error {
	return f.group.Available()
}

// CountTokens counts with the primary provider.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// Capabilities reports the primary's limits. The fallback always streams.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.group.Primary().Capabilities()
	caps.SupportsStreaming = true
	return caps
}

// prepend re-emits first (if the source was not already closed) followed by
// the rest of src.
func prepend(ctx context.Context, first llm.Chunk, ok bool, src <-chan llm.Chunk) <-chan llm.Chunk {
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		if !ok {
			return
		}
		select {
		case out <- first:
		case <-ctx.Done():
			go drain(src)
			return
		}
		for c := range src {
			select {
			case out <- c:
			case <-ctx.Done():
				go drain(src)
				return
			}
		}
	}()
	return out
}

// completeAsStream adapts a non-streaming provider.
func completeAsStream(ctx context.Context, p llm.Provider, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan llm.Chunk, 1)
	if resp != nil {
		out <- llm.Chunk{Text: resp.Content, FinishReason: "stop"}
	}
	close(out)
	return out, nil
}

func drain(ch <-chan llm.Chunk) {
	for range ch {
	}
}
