// Package gemini provides a completion provider backed by the Google
// Generative AI SDK (github.com/google/generative-ai-go). Each request is
// replayed as a chat: every message but the last becomes chat history and the
// final user message is sent with SendMessageStream.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/MrWong99/mockinterview/pkg/provider/llm"
)

// Gemini chat roles.
const (
	roleUser  = "user"
	roleModel = "model"
)

// Provider implements llm.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Gemini provider for the given model.
func New(ctx context.Context, apiKey string, model string, opts ...option.ClientOption) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Close releases the underlying client connection.
func (p *Provider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	cs, last, err := p.startChat(req)
	if err != nil {
		return nil, err
	}

	iter := cs.SendMessageStream(ctx, last...)

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)

		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				select {
				case ch <- llm.Chunk{FinishReason: llm.FinishReasonError, Text: err.Error()}:
				case <-ctx.Done():
				}
				return
			}

			text, reason := candidateText(resp)
			if text == "" && reason == "" {
				continue
			}
			select {
			case ch <- llm.Chunk{Text: text, FinishReason: reason}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	cs, last, err := p.startChat(req)
	if err != nil {
		return nil, err
	}

	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("gemini: send message: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: no candidates in response")
	}

	text, _ := candidateText(resp)
	out := &llm.CompletionResponse{Content: text}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// CountTokens implements llm.Provider. The Gemini CountTokens endpoint needs a
// network round trip, so the local estimate is used instead.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

func (p *Provider) startChat(req llm.CompletionRequest) (*genai.ChatSession, []genai.Part, error) {
	system, history, last, err := splitMessages(req)
	if err != nil {
		return nil, nil, err
	}

	model := p.client.GenerativeModel(p.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if req.Temperature != 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	cs := model.StartChat()
	cs.History = history
	return cs, last, nil
}

// splitMessages turns a request into a system instruction, the chat history
// and the parts of the final user message. System-role messages are folded
// into the system instruction after req.SystemPrompt.
//
// Gemini rejects empty text parts, so messages without content are dropped.
// Neighbouring messages of the same role that this leaves behind are merged
// into one turn to keep user and model alternating.
func splitMessages(req llm.CompletionRequest) (string, []*genai.Content, []genai.Part, error) {
	var system []string
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}

	var turns []*genai.Content
	add := func(role, text string) {
		if text == "" {
			return
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Parts = append(turns[n-1].Parts, genai.Text(text))
			return
		}
		turns = append(turns, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(text)}})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			if m.Content != "" {
				system = append(system, m.Content)
			}
		case llm.RoleUser:
			add(roleUser, m.Content)
		case llm.RoleAssistant:
			add(roleModel, m.Content)
		default:
			return "", nil, nil, fmt.Errorf("gemini: unknown message role %q", m.Role)
		}
	}

	if len(turns) == 0 {
		return "", nil, nil, fmt.Errorf("gemini: request has no messages")
	}
	last := turns[len(turns)-1]
	if last.Role != roleUser {
		return "", nil, nil, fmt.Errorf("gemini: last message must be from the user, got %q", last.Role)
	}
	return strings.Join(system, "\n\n"), turns[:len(turns)-1], last.Parts, nil
}

// candidateText concatenates the text parts of the first candidate and maps
// its finish reason onto the OpenAI-style names used across providers.
func candidateText(resp *genai.GenerateContentResponse) (string, string) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ""
	}
	cand := resp.Candidates[0]

	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String(), finishReason(cand.FinishReason)
}

func finishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonUnspecified:
		return ""
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "content_filter"
	default:
		return "other"
	}
}

func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:     1_048_576,
		MaxOutputTokens:   8_192,
		SupportsStreaming: true,
	}
	if strings.Contains(strings.ToLower(model), "1.5-pro") {
		caps.ContextWindow = 2_097_152
	}
	return caps
}
