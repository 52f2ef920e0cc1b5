package main

import (
	"context"
	"fmt"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"google.golang.org/api/option"

	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/pkg/provider/llm"
	"github.com/MrWong99/mockinterview/pkg/provider/llm/anyllm"
	"github.com/MrWong99/mockinterview/pkg/provider/llm/gemini"
	"github.com/MrWong99/mockinterview/pkg/provider/llm/openai"
)

// registerBuiltinProviders registers every completion provider compiled into
// the binary.
func registerBuiltinProviders(reg *config.Registry) {
	// All any-llm vendors share the same pattern: optional APIKey + optional
	// BaseURL. Local servers simply leave the key empty.
	for _, vendor := range anyllm.Backends {
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optString(entry.Options, "timeout"); d != "" {
			timeout, err := time.ParseDuration(d)
			if err != nil {
				return nil, fmt.Errorf("openai-native: options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(timeout))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("gemini-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []option.ClientOption
		if entry.BaseURL != "" {
			opts = append(opts, option.WithEndpoint(entry.BaseURL))
		}
		return gemini.New(context.Background(), entry.APIKey, entry.Model, opts...)
	})
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
