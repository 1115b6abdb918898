// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"runtime"
	"testing"
	"time"
)

// isolateEnv points HOME at a temp dir and clears the overrides so tests
// never see the developer's real configuration.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, k := range []string{
		"INSTANTCOFFEE_MODEL", "INSTANTCOFFEE_OLLAMA_URL", "INSTANTCOFFEE_PROVIDER",
		"INSTANTCOFFEE_API_KEY", "INSTANTCOFFEE_DB", "INSTANTCOFFEE_PORT",
		"INSTANTCOFFEE_DIALECT", "INSTANTCOFFEE_LOG_LEVEL", "INSTANTCOFFEE_OFFLINE",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(k, "")
	}
	return home
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes != 10*1024*1024 {
		t.Errorf("Server.MaxBodyBytes = %d, want 10MiB", cfg.Server.MaxBodyBytes)
	}
	if cfg.LLM.Model != "gpt-oss:20b" {
		t.Errorf("LLM.Model = %q, want %q", cfg.LLM.Model, "gpt-oss:20b")
	}
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("LLM.OllamaURL = %q", cfg.LLM.OllamaURL)
	}
	if cfg.LLM.HealthTimeout.Duration != 5*time.Second {
		t.Errorf("LLM.HealthTimeout = %v, want 5s", cfg.LLM.HealthTimeout)
	}
	if cfg.Render.Timeout.Duration != 30*time.Second {
		t.Errorf("Render.Timeout = %v, want 30s", cfg.Render.Timeout)
	}
	if cfg.Chat.MaxHistory != 20 {
		t.Errorf("Chat.MaxHistory = %d, want 20", cfg.Chat.MaxHistory)
	}
	if cfg.Chat.StreamDebounce.Duration != 500*time.Millisecond {
		t.Errorf("Chat.StreamDebounce = %v, want 500ms", cfg.Chat.StreamDebounce)
	}
	if !cfg.AutoSave.Enabled || cfg.AutoSave.Debounce.Duration != 1500*time.Millisecond {
		t.Errorf("AutoSave = %+v, want enabled with 1500ms", cfg.AutoSave)
	}
	if cfg.Memory.Temperature != 0.3 || cfg.Memory.NumCtx != 8192 || cfg.Memory.NumPredict != 4096 {
		t.Errorf("Memory = %+v", cfg.Memory)
	}
	if cfg.Memory.ConsolidationTimeout.Duration != 120*time.Second {
		t.Errorf("Memory.ConsolidationTimeout = %v, want 2m", cfg.Memory.ConsolidationTimeout)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

// =============================================================================
// LOADING
// =============================================================================

func TestLoad_NoFile(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Render.Dialect != "mermaid" {
		t.Errorf("Render.Dialect = %q, want mermaid", cfg.Render.Dialect)
	}
}

func TestLoadFromPath_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "config.toml", `
[llm]
model = "llama3.2"

[render]
dialect = "d2"
timeout = "45s"

[autosave]
enabled = false
`},
		{"yaml", "config.yaml", `
llm:
  model: llama3.2
render:
  dialect: d2
  timeout: 45s
autosave:
  enabled: false
`},
		{"json", "config.json", `{
  "llm": {"model": "llama3.2"},
  "render": {"dialect": "d2", "timeout": "45s"},
  "autosave": {"enabled": false}
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			cfg, err := LoadFromPath(path)
			if err != nil {
				t.Fatalf("LoadFromPath() error = %v", err)
			}
			if cfg.LLM.Model != "llama3.2" {
				t.Errorf("LLM.Model = %q, want llama3.2", cfg.LLM.Model)
			}
			if cfg.Render.Dialect != "d2" {
				t.Errorf("Render.Dialect = %q, want d2", cfg.Render.Dialect)
			}
			if cfg.Render.Timeout.Duration != 45*time.Second {
				t.Errorf("Render.Timeout = %v, want 45s", cfg.Render.Timeout)
			}
			if cfg.AutoSave.Enabled {
				t.Error("AutoSave.Enabled = true, want false from file")
			}
			// Untouched sections keep defaults.
			if cfg.Server.Port != 3001 {
				t.Errorf("Server.Port = %d, want default 3001", cfg.Server.Port)
			}
		})
	}
}

func TestLoad_SearchOrder(t *testing.T) {
	home := isolateEnv(t)
	dir := filepath.Join(home, ".instantcoffee")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"llm":{"model":"from-json"}}`), 0600)
	os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[llm]\nmodel = \"from-toml\"\n"), 0600)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "from-toml" {
		t.Errorf("LLM.Model = %q, want from-toml", cfg.LLM.Model)
	}
}

func TestLoadFromPath_UnknownTOMLKey(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[llm]\nmodle = \"typo\"\n"), 0600)

	if _, err := LoadFromPath(path); err == nil {
		t.Error("LoadFromPath() should reject unknown keys")
	}
}

func TestLoadFromPath_BadDuration(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[render]\ntimeout = \"soon\"\n"), 0600)

	if _, err := LoadFromPath(path); err == nil {
		t.Error("LoadFromPath() should reject an unparsable duration")
	}
}

func TestFillDefaults_ZeroValues(t *testing.T) {
	cfg := &Config{}
	fillDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after fillDefaults = %v", err)
	}
	if cfg.AutoSave.Debounce.Duration != 1500*time.Millisecond {
		t.Errorf("AutoSave.Debounce = %v", cfg.AutoSave.Debounce)
	}
}

func TestFillDefaults_ExpandsHome(t *testing.T) {
	home := isolateEnv(t)
	cfg := Default()
	cfg.Store.Path = "~/data/ic.db"
	fillDefaults(cfg)

	want := filepath.Join(home, "data", "ic.db")
	if cfg.Store.Path != want {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, want)
	}
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("INSTANTCOFFEE_MODEL", "qwen3")
	t.Setenv("INSTANTCOFFEE_OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("INSTANTCOFFEE_PORT", "8080")
	t.Setenv("INSTANTCOFFEE_DIALECT", "D2")
	t.Setenv("INSTANTCOFFEE_LOG_LEVEL", "DEBUG")
	t.Setenv("INSTANTCOFFEE_DB", "/tmp/ic.db")
	t.Setenv("INSTANTCOFFEE_OFFLINE", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.LLM.Model != "qwen3" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.OllamaURL != "http://gpu-box:11434" {
		t.Errorf("LLM.OllamaURL = %q", cfg.LLM.OllamaURL)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Render.Dialect != "d2" {
		t.Errorf("Render.Dialect = %q", cfg.Render.Dialect)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Store.Path != "/tmp/ic.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if !cfg.LLM.Offline {
		t.Error("LLM.Offline = false, want true")
	}
}

func TestApplyEnvOverrides_ProviderKeys(t *testing.T) {
	tests := []struct {
		provider string
		env      string
	}{
		{"openai", "OPENAI_API_KEY"},
		{"anthropic", "ANTHROPIC_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv("INSTANTCOFFEE_PROVIDER", tt.provider)
			t.Setenv(tt.env, "sk-test")

			cfg := Default()
			cfg.ApplyEnvOverrides()
			if cfg.LLM.APIKey != "sk-test" {
				t.Errorf("LLM.APIKey = %q, want sk-test", cfg.LLM.APIKey)
			}
		})
	}
}

func TestApplyEnvOverrides_ExplicitKeyWins(t *testing.T) {
	isolateEnv(t)
	t.Setenv("INSTANTCOFFEE_PROVIDER", "openai")
	t.Setenv("INSTANTCOFFEE_API_KEY", "explicit")
	t.Setenv("OPENAI_API_KEY", "ambient")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.LLM.APIKey != "explicit" {
		t.Errorf("LLM.APIKey = %q, want explicit", cfg.LLM.APIKey)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"bad dialect", func(c *Config) { c.Render.Dialect = "plantuml" }, "render.dialect"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative duration", func(c *Config) { c.AutoSave.Debounce = D(-time.Second) }, "autosave.debounce"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad url", func(c *Config) { c.LLM.OllamaURL = "localhost" }, "llm.ollama_url"},
		{"anthropic without key", func(c *Config) { c.LLM.Provider = "anthropic" }, "llm.api_key"},
		{"burst without rate", func(c *Config) { c.Server.RateBurst = 0 }, "server.rate_burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want ValidateErrors", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want error on %s", err, tt.field)
			}
		})
	}
}

func TestValidateErrors_Error(t *testing.T) {
	errs := ValidateErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	if got := errs.Error(); got != "a: bad; b: worse" {
		t.Errorf("Error() = %q", got)
	}
}

// =============================================================================
// SAVE / STRING
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.LLM.Model = "saved-model"
	cfg.Chat.StreamDebounce = D(750 * time.Millisecond)
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.LLM.Model != "saved-model" {
		t.Errorf("LLM.Model = %q", loaded.LLM.Model)
	}
	if loaded.Chat.StreamDebounce.Duration != 750*time.Millisecond {
		t.Errorf("Chat.StreamDebounce = %v", loaded.Chat.StreamDebounce)
	}
}

func TestDuration_JSON(t *testing.T) {
	data, err := json.Marshal(struct{ D Duration }{D(1500 * time.Millisecond)})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"D":"1.5s"}` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-very-secret"
	cfg.Server.AuthToken = "token-secret"

	s := cfg.String()
	if strings.Contains(s, "sk-very-secret") || strings.Contains(s, "token-secret") {
		t.Error("String() leaked a secret")
	}
	if cfg.LLM.APIKey != "sk-very-secret" {
		t.Error("String() mutated the receiver")
	}
}

// =============================================================================
// SAVE
// =============================================================================

func TestSave_DefaultLocation(t *testing.T) {
	home := isolateEnv(t)

	cfg := Default()
	cfg.LLM.Model = "llama3.1"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(home, ".instantcoffee", "config.toml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat(%s): %v", path, err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.LLM.Model != "llama3.1" {
		t.Errorf("LLM.Model = %q, want llama3.1", loaded.LLM.Model)
	}
}
