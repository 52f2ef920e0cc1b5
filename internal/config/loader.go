package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mockinterview/internal/interview"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr = ":8080"
	DefaultLLM        = "gemini"
	DefaultModel      = "gemini-1.5-pro"
	DefaultAPIKeyEnv  = "API_KEY"
)

// ErrMissingAPIKey is returned by [RequireAPIKey] when a provider that needs a
// credential has none.
var ErrMissingAPIKey = errors.New("config: api key is not set")

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {
		"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
		"gemini-native", "openai-native",
	},
}

// KeylessProviders run locally and need no API key.
var KeylessProviders = []string{"ollama", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = DefaultLLM
		if cfg.Providers.LLM.Model == "" {
			cfg.Providers.LLM.Model = DefaultModel
		}
	}
	if cfg.Providers.LLM.APIKey == "" && cfg.Providers.LLM.APIKeyEnv == "" && !keyless(cfg.Providers.LLM.Name) {
		cfg.Providers.LLM.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Interview.Questions == 0 {
		cfg.Interview.Questions = interview.DefaultQuestions
	}
	if cfg.Interview.MaxOutputTokens == 0 {
		cfg.Interview.MaxOutputTokens = interview.DefaultMaxOutputTokens
	}
	cfg.Interview.Markers = cfg.Interview.Markers.WithDefaults()
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if cfg.Providers.LLM.Model == "" {
		errs = append(errs, errors.New("providers.llm.model is required"))
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		prefix := fmt.Sprintf("providers.llm_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if fb.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", prefix))
		}
		validateProviderName("llm", fb.Name)
	}

	// Interview
	iv := cfg.Interview
	if iv.Questions < 0 || iv.Questions > 20 {
		errs = append(errs, fmt.Errorf("interview.questions %d is out of range [1, 20]", iv.Questions))
	}
	if iv.MaxOutputTokens < 0 {
		errs = append(errs, fmt.Errorf("interview.max_output_tokens %d must not be negative", iv.MaxOutputTokens))
	}
	if iv.Temperature < 0 || iv.Temperature > 2 {
		errs = append(errs, fmt.Errorf("interview.temperature %.2f is out of range [0, 2]", iv.Temperature))
	}
	m := iv.Markers
	if m.Exit == m.Success || m.Exit == m.Error || m.Success == m.Error {
		errs = append(errs, fmt.Errorf("interview.markers must be distinct; got exit=%q success=%q error=%q", m.Exit, m.Success, m.Error))
	}
	if iv.SystemPrompt != "" && (!strings.Contains(iv.SystemPrompt, m.Exit) || !strings.Contains(iv.SystemPrompt, m.Success)) {
		slog.Warn("interview.system_prompt does not mention the exit and success markers; interviews may never end",
			"exit", m.Exit,
			"success", m.Success,
		)
	}

	return errors.Join(errs...)
}

// RequireAPIKey resolves the API key of entry. Keyless local providers return
// "" without error; every other provider without a key yields
// [ErrMissingAPIKey].
func RequireAPIKey(entry ProviderEntry) (string, error) {
	key := entry.ResolveAPIKey()
	if key != "" || keyless(entry.Name) {
		return key, nil
	}
	if entry.APIKeyEnv != "" {
		return "", fmt.Errorf("%w: provider %q expects it in $%s", ErrMissingAPIKey, entry.Name, entry.APIKeyEnv)
	}
	return "", fmt.Errorf("%w: provider %q", ErrMissingAPIKey, entry.Name)
}

func keyless(name string) bool {
	return slices.Contains(KeylessProviders, name)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
