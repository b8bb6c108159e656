package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_DefaultsApplied(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Port != DefaultPort || cfg.Server.LogLevel != "info" {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Agent.Name != "Jarvis" || cfg.Gateway.Persona.Name != "Jarvis" {
		t.Errorf("name defaults: %q / %q", cfg.Agent.Name, cfg.Gateway.Persona.Name)
	}
	if cfg.Agent.TranscriptLimit() != 200 {
		t.Errorf("transcript cap = %d", cfg.Agent.TranscriptLimit())
	}
	if cfg.Agent.GenerationTimeout.Std() != 15*time.Second {
		t.Errorf("generation timeout = %v", cfg.Agent.GenerationTimeout.Std())
	}
	if cfg.Agent.SessionMaxIdle.Std() != 24*time.Hour {
		t.Errorf("max idle = %v", cfg.Agent.SessionMaxIdle.Std())
	}
	if cfg.Agent.SweepSchedule != "@every 30m" || cfg.Agent.MinConfidence != 0.1 {
		t.Errorf("agent defaults: %+v", cfg.Agent)
	}
}

func TestParse_ExplicitZeroTranscriptCap(t *testing.T) {
	cfg, err := Parse([]byte(`{"agent": {"transcript_cap": 0}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Agent.TranscriptLimit() != 0 {
		t.Errorf("explicit 0 should mean unbounded, got %d", cfg.Agent.TranscriptLimit())
	}
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(`{"agent": {"generation_timeout": "2500ms", "session_max_idle": "90m"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Agent.GenerationTimeout.Std() != 2500*time.Millisecond {
		t.Errorf("got %v", cfg.Agent.GenerationTimeout.Std())
	}
	if cfg.Agent.SessionMaxIdle.Std() != 90*time.Minute {
		t.Errorf("got %v", cfg.Agent.SessionMaxIdle.Std())
	}

	if _, err := Parse([]byte(`{"agent": {"generation_timeout": "soon"}}`)); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestParse_EnvSubstitution(t *testing.T) {
	t.Setenv("JARVIS_TEST_KEY", "sk-test")
	t.Setenv("JARVIS_TEST_EMPTY", "")
	cfg, err := Parse([]byte(`{
		"providers": [{"id": "oa", "type": "openai", "api_key": "${JARVIS_TEST_KEY}",
			"endpoint": "${JARVIS_TEST_EMPTY:https://api.openai.com/v1}"}],
		"database": {"redis": {"url": "${JARVIS_TEST_UNSET_VAR}"}}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Providers[0].APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Providers[0].APIKey)
	}
	if cfg.Providers[0].Endpoint != "https://api.openai.com/v1" {
		t.Errorf("endpoint = %q", cfg.Providers[0].Endpoint)
	}
	if cfg.Database.Redis.URL != "" {
		t.Errorf("unset var should expand empty, got %q", cfg.Database.Redis.URL)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{"bad port", `{"server": {"port": 70000}}`, "server.port"},
		{"confidence", `{"agent": {"min_confidence": 1.5}}`, "min_confidence"},
		{"negative cap", `{"agent": {"transcript_cap": -1}}`, "transcript_cap"},
		{"missing id", `{"providers": [{"type": "openai"}]}`, "id is required"},
		{"duplicate id", `{"providers": [{"id": "a"}, {"id": "a"}]}`, "duplicate"},
		{"unknown route", `{"providers": [{"id": "a"}], "routing": {"bindings": {"code": "b"}}}`, "unknown provider \"b\""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.json))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("got %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jarvis.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 8080}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("../../configs/jarvis.json")
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	if cfg.Agent.Name == "" {
		t.Error("agent name missing")
	}
}
