package config_test

import (
	"testing"

	"github.com/MrWong99/mockinterview/internal/config"
	"github.com/MrWong99/mockinterview/internal/interview"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "gemini", Model: "gemini-1.5-pro", APIKeyEnv: "API_KEY"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.ScriptChanged || d.LogLevelChanged || d.ProvidersChanged || d.ServerChanged {
		t.Errorf("expected no changes, got %+v", d)
	}
	if d.RestartRequired() {
		t.Error("RestartRequired should be false")
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("expected LogLevelChanged")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.RestartRequired() {
		t.Error("log level changes apply live")
	}
}

func TestDiff_Script(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.InterviewConfig)
	}{
		{"questions", func(c *config.InterviewConfig) { c.Questions = 3 }},
		{"max tokens", func(c *config.InterviewConfig) { c.MaxOutputTokens = 800 }},
		{"temperature", func(c *config.InterviewConfig) { c.Temperature = 0.7 }},
		{"prompt", func(c *config.InterviewConfig) { c.SystemPrompt = "Ending interview / Best of luck" }},
		{"markers", func(c *config.InterviewConfig) {
			c.Markers = interview.Markers{Exit: "Stop", Success: "Bye", Error: "Oops"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(&new.Interview)
			d := config.Diff(old, new)
			if !d.ScriptChanged {
				t.Error("expected ScriptChanged")
			}
			if d.RestartRequired() {
				t.Error("script changes apply live")
			}
		})
	}
}

func TestDiff_ProvidersRequireRestart(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "openai", Model: "gpt-4o-mini"}}

	d := config.Diff(old, new)
	if !d.ProvidersChanged {
		t.Fatal("expected ProvidersChanged")
	}
	if !d.RestartRequired() {
		t.Error("provider changes need a restart")
	}
}

func TestDiff_ServerRequiresRestart(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"} }},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"log file", func(c *config.Config) { c.Server.LogFile = "/var/log/mi.log" }},
		{"archive file", func(c *config.Config) { c.Server.ArchiveFile = "interviews.jsonl" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(new)

			d := config.Diff(old, new)
			if !d.ServerChanged || !d.RestartRequired() {
				t.Errorf("expected server change requiring restart, got %+v", d)
			}
			if d.ScriptChanged {
				t.Error("server change must not mark the script as changed")
			}
		})
	}
}
