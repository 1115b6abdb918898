// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/instantcoffee/internal/util"
)

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration that reads and writes as a Go duration string
// ("1500ms", "2m") in TOML, YAML and JSON.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration { return Duration{d} }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete Instant Coffee configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server" json:"server"`
	LLM       LLMConfig       `toml:"llm" yaml:"llm" json:"llm"`
	Render    RenderConfig    `toml:"render" yaml:"render" json:"render"`
	Store     StoreConfig     `toml:"store" yaml:"store" json:"store"`
	Chat      ChatConfig      `toml:"chat" yaml:"chat" json:"chat"`
	AutoSave  AutoSaveConfig  `toml:"autosave" yaml:"autosave" json:"autosave"`
	Memory    MemoryConfig    `toml:"memory" yaml:"memory" json:"memory"`
	Tasks     TasksConfig     `toml:"tasks" yaml:"tasks" json:"tasks"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry" json:"telemetry"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Host         string   `toml:"host" yaml:"host" json:"host"`
	Port         int      `toml:"port" yaml:"port" json:"port"`
	MaxBodyBytes int64    `toml:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`
	CORSOrigins  []string `toml:"cors_origins" yaml:"cors_origins" json:"cors_origins"`

	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" yaml:"rate_burst" json:"rate_burst"`

	// TrustedProxies may set X-Forwarded-For / X-Real-IP.
	TrustedProxies []string `toml:"trusted_proxies" yaml:"trusted_proxies" json:"trusted_proxies"`

	// AuthToken, when set, is required as a Bearer token on /api routes.
	AuthToken string `toml:"auth_token" yaml:"auth_token" json:"auth_token"`

	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LLMConfig selects and configures the chat model provider.
type LLMConfig struct {
	// Provider is one of "ollama", "openai", "anthropic".
	Provider string `toml:"provider" yaml:"provider" json:"provider"`
	Model    string `toml:"model" yaml:"model" json:"model"`

	OllamaURL string `toml:"ollama_url" yaml:"ollama_url" json:"ollama_url"`

	// OpenAIURL points the openai provider at any compatible endpoint,
	// including Ollama's own /v1.
	OpenAIURL string `toml:"openai_url" yaml:"openai_url" json:"openai_url"`
	APIKey    string `toml:"api_key" yaml:"api_key" json:"api_key"`

	// MaxTokens caps replies for providers that require a limit (anthropic).
	MaxTokens int `toml:"max_tokens" yaml:"max_tokens" json:"max_tokens"`

	HealthTimeout  Duration `toml:"health_timeout" yaml:"health_timeout" json:"health_timeout"`
	RequestTimeout Duration `toml:"request_timeout" yaml:"request_timeout" json:"request_timeout"`

	// Offline restricts the provider and the metrics collector to loopback
	// endpoints.
	Offline bool `toml:"offline" yaml:"offline" json:"offline"`
}

// RenderConfig configures the diagram CLIs.
type RenderConfig struct {
	// Dialect is the default diagram language: "mermaid" or "d2".
	Dialect       string   `toml:"dialect" yaml:"dialect" json:"dialect"`
	D2Binary      string   `toml:"d2_binary" yaml:"d2_binary" json:"d2_binary"`
	MermaidBinary string   `toml:"mermaid_binary" yaml:"mermaid_binary" json:"mermaid_binary"`
	Timeout       Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
	WatchDebounce Duration `toml:"watch_debounce" yaml:"watch_debounce" json:"watch_debounce"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `toml:"path" yaml:"path" json:"path"`
}

// ChatConfig tunes the conversation loop.
type ChatConfig struct {
	MaxHistory      int      `toml:"max_history" yaml:"max_history" json:"max_history"`
	StreamDebounce  Duration `toml:"stream_debounce" yaml:"stream_debounce" json:"stream_debounce"`
	PreviewDebounce Duration `toml:"preview_debounce" yaml:"preview_debounce" json:"preview_debounce"`
}

// AutoSaveConfig controls debounced session persistence.
type AutoSaveConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled" json:"enabled"`
	Debounce Duration `toml:"debounce" yaml:"debounce" json:"debounce"`
}

// MemoryConfig holds the consolidation request parameters.
type MemoryConfig struct {
	ConsolidationTimeout Duration `toml:"consolidation_timeout" yaml:"consolidation_timeout" json:"consolidation_timeout"`
	Temperature          float64  `toml:"temperature" yaml:"temperature" json:"temperature"`
	NumCtx               int      `toml:"num_ctx" yaml:"num_ctx" json:"num_ctx"`
	NumPredict           int      `toml:"num_predict" yaml:"num_predict" json:"num_predict"`
}

// TasksConfig bounds the background job queue.
type TasksConfig struct {
	Concurrency int `toml:"concurrency" yaml:"concurrency" json:"concurrency"`
	HistorySize int `toml:"history_size" yaml:"history_size" json:"history_size"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `toml:"level" yaml:"level" json:"level"`
	Format      string `toml:"format" yaml:"format" json:"format"`
	Development bool   `toml:"development" yaml:"development" json:"development"`
}

// TelemetryConfig configures OpenTelemetry metrics export.
type TelemetryConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled" json:"enabled"`
	Endpoint    string   `toml:"endpoint" yaml:"endpoint" json:"endpoint"`
	Insecure    bool     `toml:"insecure" yaml:"insecure" json:"insecure"`
	Interval    Duration `toml:"interval" yaml:"interval" json:"interval"`
	ServiceName string   `toml:"service_name" yaml:"service_name" json:"service_name"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Providers and dialects accepted by Validate.
var (
	ValidProviders = []string{"ollama", "openai", "anthropic"}
	ValidDialects  = []string{"mermaid", "d2"}
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            3001,
			MaxBodyBytes:    10 << 20,
			CORSOrigins:     []string{"http://localhost:5173", "http://127.0.0.1:5173"},
			RateLimit:       10,
			RateBurst:       20,
			ShutdownTimeout: D(10 * time.Second),
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "gpt-oss:20b",
			OllamaURL:      "http://localhost:11434",
			OpenAIURL:      "http://localhost:11434/v1",
			MaxTokens:      4096,
			HealthTimeout:  D(5 * time.Second),
			RequestTimeout: D(120 * time.Second),
		},
		Render: RenderConfig{
			Dialect:       "mermaid",
			D2Binary:      "d2",
			MermaidBinary: "mmdc",
			Timeout:       D(30 * time.Second),
			WatchDebounce: D(300 * time.Millisecond),
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Chat: ChatConfig{
			MaxHistory:      20,
			StreamDebounce:  D(500 * time.Millisecond),
			PreviewDebounce: D(300 * time.Millisecond),
		},
		AutoSave: AutoSaveConfig{
			Enabled:  true,
			Debounce: D(1500 * time.Millisecond),
		},
		Memory: MemoryConfig{
			ConsolidationTimeout: D(120 * time.Second),
			Temperature:          0.3,
			NumCtx:               8192,
			NumPredict:           4096,
		},
		Tasks: TasksConfig{
			Concurrency: 2,
			HistorySize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			Interval:    D(30 * time.Second),
			ServiceName: "instantcoffee",
		},
	}
}

func defaultStorePath() string {
	dir, err := ConfigDir()
	if err != nil {
		return "instantcoffee.db"
	}
	return filepath.Join(dir, "instantcoffee.db")
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the Instant Coffee configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".instantcoffee"), nil
}

// SearchPaths returns the config files Load tries, in order.
func SearchPaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.json"),
	}, nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the first existing file from SearchPaths over the defaults,
// then applies environment overrides, fills zero values and validates.
// No config file at all is not an error.
func Load() (*Config, error) {
	paths, err := SearchPaths()
	if err == nil {
		for _, p := range paths {
			if _, statErr := os.Stat(p); statErr == nil {
				return LoadFromPath(p)
			}
		}
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file. The format follows
// the extension: .json, .yaml/.yml, anything else is TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := decode(cfg, path, data); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func decode(cfg *Config, path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("failed to decode TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown TOML keys: %v", undecoded)
		}
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills zero values, which a file can produce by setting a
// key to "" or 0, with defaults.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Server.Host == "" {
		cfg.Server.Host = d.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if cfg.Server.ShutdownTimeout.Duration == 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = d.LLM.Provider
	}
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = d.LLM.Model
	}
	if cfg.LLM.OllamaURL == "" {
		cfg.LLM.OllamaURL = d.LLM.OllamaURL
	}
	cfg.LLM.OllamaURL = strings.TrimRight(cfg.LLM.OllamaURL, "/")
	if cfg.LLM.OpenAIURL == "" {
		cfg.LLM.OpenAIURL = d.LLM.OpenAIURL
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if cfg.LLM.HealthTimeout.Duration == 0 {
		cfg.LLM.HealthTimeout = d.LLM.HealthTimeout
	}
	if cfg.LLM.RequestTimeout.Duration == 0 {
		cfg.LLM.RequestTimeout = d.LLM.RequestTimeout
	}

	if cfg.Render.Dialect == "" {
		cfg.Render.Dialect = d.Render.Dialect
	}
	cfg.Render.Dialect = strings.ToLower(cfg.Render.Dialect)
	if cfg.Render.D2Binary == "" {
		cfg.Render.D2Binary = d.Render.D2Binary
	}
	if cfg.Render.MermaidBinary == "" {
		cfg.Render.MermaidBinary = d.Render.MermaidBinary
	}
	if cfg.Render.Timeout.Duration == 0 {
		cfg.Render.Timeout = d.Render.Timeout
	}
	if cfg.Render.WatchDebounce.Duration == 0 {
		cfg.Render.WatchDebounce = d.Render.WatchDebounce
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = d.Store.Path
	}
	cfg.Store.Path = expandHome(cfg.Store.Path)

	if cfg.Chat.MaxHistory == 0 {
		cfg.Chat.MaxHistory = d.Chat.MaxHistory
	}
	if cfg.Chat.StreamDebounce.Duration == 0 {
		cfg.Chat.StreamDebounce = d.Chat.StreamDebounce
	}
	if cfg.Chat.PreviewDebounce.Duration == 0 {
		cfg.Chat.PreviewDebounce = d.Chat.PreviewDebounce
	}

	if cfg.AutoSave.Debounce.Duration == 0 {
		cfg.AutoSave.Debounce = d.AutoSave.Debounce
	}

	if cfg.Memory.ConsolidationTimeout.Duration == 0 {
		cfg.Memory.ConsolidationTimeout = d.Memory.ConsolidationTimeout
	}
	if cfg.Memory.NumCtx == 0 {
		cfg.Memory.NumCtx = d.Memory.NumCtx
	}
	if cfg.Memory.NumPredict == 0 {
		cfg.Memory.NumPredict = d.Memory.NumPredict
	}

	if cfg.Tasks.Concurrency == 0 {
		cfg.Tasks.Concurrency = d.Tasks.Concurrency
	}
	if cfg.Tasks.HistorySize == 0 {
		cfg.Tasks.HistorySize = d.Tasks.HistorySize
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = d.Telemetry.Endpoint
	}
	if cfg.Telemetry.Interval.Duration == 0 {
		cfg.Telemetry.Interval = d.Telemetry.Interval
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = d.Telemetry.ServiceName
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to ~/.instantcoffee/config.toml.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, filepath.Join(dir, "config.toml"))
}

// SaveTOML writes the configuration as TOML with 0600 permissions, since
// the file may hold an API key.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# Instant Coffee configuration file\n")
	buf.WriteString("# Durations use Go syntax: \"500ms\", \"30s\", \"2m\"\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors listing
// every problem found, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port %d out of range 1-65535", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		add("server.max_body_bytes", "must not be negative")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1 when rate_limit is set")
	}

	// LLM
	if !contains(ValidProviders, c.LLM.Provider) {
		add("llm.provider", "invalid provider '%s', must be one of: %s", c.LLM.Provider, strings.Join(ValidProviders, ", "))
	}
	if u, err := url.Parse(c.LLM.OllamaURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("llm.ollama_url", "invalid URL '%s'", c.LLM.OllamaURL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("llm.ollama_url", "scheme must be http or https, got '%s'", u.Scheme)
	}
	if c.LLM.Provider == "anthropic" && c.LLM.APIKey == "" {
		add("llm.api_key", "required for provider anthropic")
	}

	// Render
	if !contains(ValidDialects, c.Render.Dialect) {
		add("render.dialect", "invalid dialect '%s', must be one of: %s", c.Render.Dialect, strings.Join(ValidDialects, ", "))
	}

	// Chat / memory
	if c.Chat.MaxHistory < 1 {
		add("chat.max_history", "must be at least 1")
	}
	if c.Memory.Temperature < 0 || c.Memory.Temperature > 2 {
		add("memory.temperature", "%.2f out of range 0-2", c.Memory.Temperature)
	}
	if c.Tasks.Concurrency < 1 {
		add("tasks.concurrency", "must be at least 1")
	}

	// Durations
	for field, d := range map[string]Duration{
		"server.shutdown_timeout":      c.Server.ShutdownTimeout,
		"llm.health_timeout":           c.LLM.HealthTimeout,
		"llm.request_timeout":          c.LLM.RequestTimeout,
		"render.timeout":               c.Render.Timeout,
		"render.watch_debounce":        c.Render.WatchDebounce,
		"chat.stream_debounce":         c.Chat.StreamDebounce,
		"chat.preview_debounce":        c.Chat.PreviewDebounce,
		"autosave.debounce":            c.AutoSave.Debounce,
		"memory.consolidation_timeout": c.Memory.ConsolidationTimeout,
		"telemetry.interval":           c.Telemetry.Interval,
	} {
		if d.Duration < 0 {
			add(field, "must not be negative")
		}
	}

	// Logging
	if !contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if !contains([]string{"json", "console"}, c.Logging.Format) {
		add("logging.format", "invalid format '%s', must be one of: json, console", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - INSTANTCOFFEE_MODEL: overrides llm.model
//   - INSTANTCOFFEE_OLLAMA_URL: overrides llm.ollama_url
//   - INSTANTCOFFEE_PROVIDER: overrides llm.provider
//   - INSTANTCOFFEE_API_KEY: overrides llm.api_key
//   - OPENAI_API_KEY / ANTHROPIC_API_KEY: used for llm.api_key when it is
//     still empty and the matching provider is selected
//   - INSTANTCOFFEE_OFFLINE: overrides llm.offline (true/false)
//   - INSTANTCOFFEE_DB: overrides store.path
//   - INSTANTCOFFEE_PORT: overrides server.port
//   - INSTANTCOFFEE_DIALECT: overrides render.dialect
//   - INSTANTCOFFEE_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("INSTANTCOFFEE_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("INSTANTCOFFEE_OLLAMA_URL"); v != "" {
		c.LLM.OllamaURL = v
	}
	if v := os.Getenv("INSTANTCOFFEE_PROVIDER"); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("INSTANTCOFFEE_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if v := os.Getenv("INSTANTCOFFEE_OFFLINE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LLM.Offline = b
		}
	}
	if v := os.Getenv("INSTANTCOFFEE_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("INSTANTCOFFEE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("INSTANTCOFFEE_DIALECT"); v != "" {
		c.Render.Dialect = strings.ToLower(v)
	}
	if v := os.Getenv("INSTANTCOFFEE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	return &out
}

// String renders the configuration as TOML with the API key masked.
func (c *Config) String() string {
	masked := c.Clone()
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = "****"
	}
	if masked.Server.AuthToken != "" {
		masked.Server.AuthToken = "****"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(masked); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
