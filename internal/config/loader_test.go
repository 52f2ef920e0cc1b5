package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/interview"
)

func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg := validConfig()

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Providers.LLM.Name != config.DefaultLLM || cfg.Providers.LLM.Model != config.DefaultModel {
		t.Errorf("llm: got %+v", cfg.Providers.LLM)
	}
	if cfg.Providers.LLM.APIKeyEnv != config.DefaultAPIKeyEnv {
		t.Errorf("api_key_env: got %q, want %q", cfg.Providers.LLM.APIKeyEnv, config.DefaultAPIKeyEnv)
	}
	if cfg.Interview.Questions != interview.DefaultQuestions {
		t.Errorf("questions: got %d", cfg.Interview.Questions)
	}
	if cfg.Interview.Markers != interview.DefaultMarkers {
		t.Errorf("markers: got %+v", cfg.Interview.Markers)
	}
}

func TestApplyDefaults_ExplicitProviderKeepsModel(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "openai"},
	}}
	config.ApplyDefaults(cfg)
	if cfg.Providers.LLM.Model != "" {
		t.Errorf("model should not be defaulted for an explicit provider, got %q", cfg.Providers.LLM.Model)
	}
	if err := config.Validate(cfg); err == nil {
		t.Error("expected validation error for missing model")
	}
}

func TestApplyDefaults_KeylessProvider(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "ollama", Model: "llama3"},
	}}
	config.ApplyDefaults(cfg)
	if cfg.Providers.LLM.APIKeyEnv != "" {
		t.Errorf("keyless provider should not get api_key_env, got %q", cfg.Providers.LLM.APIKeyEnv)
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()
	if err := config.Validate(validConfig()); err != nil {
		t.Fatalf("default config should be valid, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantMsg string
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = "verbose" }, "server.log_level"},
		{"tls half set", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem"} }, "server.tls"},
		{"llm name", func(c *config.Config) { c.Providers.LLM.Name = "" }, "providers.llm.name"},
		{"llm model", func(c *config.Config) { c.Providers.LLM.Model = "" }, "providers.llm.model"},
		{"fallback name", func(c *config.Config) {
			c.Providers.LLMFallbacks = []config.ProviderEntry{{Model: "m"}}
		}, "providers.llm_fallbacks[0].name"},
		{"fallback model", func(c *config.Config) {
			c.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "openai"}}
		}, "providers.llm_fallbacks[0].model"},
		{"questions", func(c *config.Config) { c.Interview.Questions = 21 }, "interview.questions"},
		{"max tokens", func(c *config.Config) { c.Interview.MaxOutputTokens = -1 }, "interview.max_output_tokens"},
		{"temperature", func(c *config.Config) { c.Interview.Temperature = 2.5 }, "interview.temperature"},
		{"markers", func(c *config.Config) { c.Interview.Markers.Error = c.Interview.Markers.Exit }, "interview.markers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Server.LogLevel = "loud"
	cfg.Interview.Temperature = -1

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "server.log_level") || !strings.Contains(msg, "interview.temperature") {
		t.Errorf("expected both failures in %q", msg)
	}
}

func TestRequireAPIKey(t *testing.T) {
	t.Setenv("MOCKINTERVIEW_KEY", "secret")

	t.Run("from env", func(t *testing.T) {
		key, err := config.RequireAPIKey(config.ProviderEntry{Name: "gemini", APIKeyEnv: "MOCKINTERVIEW_KEY"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if key != "secret" {
			t.Errorf("key = %q, want secret", key)
		}
	})

	t.Run("keyless", func(t *testing.T) {
		key, err := config.RequireAPIKey(config.ProviderEntry{Name: "llamacpp"})
		if err != nil {
			t.Fatalf("keyless provider should not need a key: %v", err)
		}
		if key != "" {
			t.Errorf("key = %q, want empty", key)
		}
	})

	t.Run("missing env", func(t *testing.T) {
		_, err := config.RequireAPIKey(config.ProviderEntry{Name: "gemini", APIKeyEnv: "MOCKINTERVIEW_UNSET"})
		if !errors.Is(err, config.ErrMissingAPIKey) {
			t.Fatalf("expected ErrMissingAPIKey, got %v", err)
		}
		if !strings.Contains(err.Error(), "$MOCKINTERVIEW_UNSET") {
			t.Errorf("error should name the variable: %v", err)
		}
	})

	t.Run("missing inline", func(t *testing.T) {
		_, err := config.RequireAPIKey(config.ProviderEntry{Name: "openai"})
		if !errors.Is(err, config.ErrMissingAPIKey) {
			t.Fatalf("expected ErrMissingAPIKey, got %v", err)
		}
	})
}
