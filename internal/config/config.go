// Package config loads the service configuration from JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Agent     AgentConfig      `json:"agent"`
	Providers []ProviderConfig `json:"providers"`
	Routing   RoutingConfig    `json:"routing"`
	Gateway   GatewayConfig    `json:"gateway"`
	Database  DatabaseConfig   `json:"database"`
}

type ServerConfig struct {
	Port        int             `json:"port"`
	LogLevel    string          `json:"log_level"`
	CORSOrigins []string        `json:"cors_origins"`
	RateLimit   RateLimitConfig `json:"rate_limit"`
}

// RateLimitConfig bounds chat requests per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

type AgentConfig struct {
	Name        string `json:"name"`
	ContentPath string `json:"content_path"`
	// MinConfidence is the classifier threshold below which the agent asks
	// for clarification.
	MinConfidence float64 `json:"min_confidence"`
	// TranscriptCap bounds turns kept per session; 0 keeps everything.
	TranscriptCap       *int     `json:"transcript_cap,omitempty"`
	MemoryCapacity      int      `json:"memory_capacity"`
	GenerationTimeout   Duration `json:"generation_timeout"`
	SessionMaxIdle      Duration `json:"session_max_idle"`
	SweepSchedule       string   `json:"sweep_schedule"`
	Seed                int64    `json:"seed"`
	ClassifierCacheSize int      `json:"classifier_cache_size"`
	SystemPrompt        string   `json:"system_prompt"`
	DisableLocal        bool     `json:"disable_local_generator"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// RoutingConfig decides which provider serves each generation purpose.
type RoutingConfig struct {
	Default   string            `json:"default"`
	Bindings  map[string]string `json:"bindings,omitempty"`
	Fallbacks []string          `json:"fallbacks,omitempty"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
	Persona PersonaConfig        `json:"persona"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type PersonaConfig struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url"`
	Emoji   string `json:"emoji"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL    string `json:"url"`
	Stream string `json:"stream"`
}

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val))
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults.
const (
	DefaultPort              = 3210
	DefaultLogLevel          = "info"
	DefaultAgentName         = "Jarvis"
	DefaultMinConfidence     = 0.1
	DefaultTranscriptCap     = 200
	DefaultMemoryCapacity    = 100
	DefaultGenerationTimeout = 15 * time.Second
	DefaultSessionMaxIdle    = 24 * time.Hour
	DefaultSweepSchedule     = "@every 30m"
	DefaultCacheSize         = 512
	DefaultRatePerSecond     = 2.0
	DefaultRateBurst         = 10
)

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable
// references, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config JSON the way Load does.
func Parse(data []byte) (*Config, error) {
	resolved := expandEnv(string(data))

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// expandEnv substitutes ${VAR} and ${VAR:default} with environment values.
func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Server.RateLimit.RequestsPerSecond == 0 {
		c.Server.RateLimit.RequestsPerSecond = DefaultRatePerSecond
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = DefaultRateBurst
	}

	a := &c.Agent
	if a.Name == "" {
		a.Name = DefaultAgentName
	}
	if a.MinConfidence == 0 {
		a.MinConfidence = DefaultMinConfidence
	}
	if a.TranscriptCap == nil {
		n := DefaultTranscriptCap
		a.TranscriptCap = &n
	}
	if a.MemoryCapacity == 0 {
		a.MemoryCapacity = DefaultMemoryCapacity
	}
	if a.GenerationTimeout == 0 {
		a.GenerationTimeout = Duration(DefaultGenerationTimeout)
	}
	if a.SessionMaxIdle == 0 {
		a.SessionMaxIdle = Duration(DefaultSessionMaxIdle)
	}
	if a.SweepSchedule == "" {
		a.SweepSchedule = DefaultSweepSchedule
	}
	if a.ClassifierCacheSize == 0 {
		a.ClassifierCacheSize = DefaultCacheSize
	}

	if c.Gateway.Persona.Name == "" {
		c.Gateway.Persona.Name = a.Name
	}
}

// Validate checks values applyDefaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Agent.MinConfidence < 0 || c.Agent.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("agent.min_confidence %v must be within [0, 1]", c.Agent.MinConfidence))
	}
	if c.Agent.TranscriptCap != nil && *c.Agent.TranscriptCap < 0 {
		errs = append(errs, errors.New("agent.transcript_cap must not be negative"))
	}
	if c.Agent.MemoryCapacity < 0 {
		errs = append(errs, errors.New("agent.memory_capacity must not be negative"))
	}
	if c.Agent.GenerationTimeout < 0 || c.Agent.SessionMaxIdle < 0 {
		errs = append(errs, errors.New("agent durations must not be negative"))
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit values must not be negative"))
	}

	ids := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: id is required", i))
			continue
		}
		if ids[p.ID] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID))
		}
		ids[p.ID] = true
	}
	refs := append([]string{c.Routing.Default}, c.Routing.Fallbacks...)
	for _, id := range c.Routing.Bindings {
		refs = append(refs, id)
	}
	for _, id := range refs {
		if id != "" && !ids[id] {
			errs = append(errs, fmt.Errorf("routing references unknown provider %q", id))
		}
	}
	return errors.Join(errs...)
}

// TranscriptLimit returns the configured transcript cap.
func (a AgentConfig) TranscriptLimit() int {
	if a.TranscriptCap == nil {
		return DefaultTranscriptCap
	}
	return *a.TranscriptCap
}
