// Package config provides the configuration schema, loader, provider registry
// and file watcher for the mock interviewer.
package config

import (
	"os"

	"github.com/MrWong99/mockinterview/internal/interview"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Interview InterviewConfig `yaml:"interview"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile additionally writes logs to a size-rotated file when set.
	LogFile string `yaml:"log_file"`

	// ArchiveFile appends every ended interview as a JSON line when set.
	ArchiveFile string `yaml:"archive_file"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the completion service and its failover chain.
// Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM is the primary completion service.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary cannot open a stream.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the configuration block of one completion provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. Prefer
	// APIKeyEnv so the secret stays out of the file.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names the environment variable holding the API key. It is
	// consulted when APIKey is empty.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemini-1.5-pro").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ResolveAPIKey returns APIKey, or the value of the APIKeyEnv variable.
func (e ProviderEntry) ResolveAPIKey() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	if e.APIKeyEnv != "" {
		return os.Getenv(e.APIKeyEnv)
	}
	return ""
}

// InterviewConfig shapes the interview script.
type InterviewConfig struct {
	// Questions is how many questions the interviewer asks. Default: 2.
	Questions int `yaml:"questions"`

	// MaxOutputTokens caps each reply. Default: 500.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// Temperature is passed to the completion service; 0 keeps its default.
	Temperature float64 `yaml:"temperature"`

	// SystemPrompt replaces the generated interviewer prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// Markers are the phrases that end an interview.
	Markers interview.Markers `yaml:"markers"`
}

// Script converts the section into an interview script.
func (c InterviewConfig) Script() interview.Script {
	return interview.Script{
		Questions:       c.Questions,
		MaxOutputTokens: c.MaxOutputTokens,
		Temperature:     c.Temperature,
		SystemPrompt:    c.SystemPrompt,
		Markers:         c.Markers,
	}.Normalize()
}
