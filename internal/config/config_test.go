package config

import (
	"strings"
	"testing"
	"time"
)

func baseConfig() Config {
	cfg := Defaults()
	src := SourceDefaults()
	src.ID = "fightodds"
	src.BaseURL = "https://api.fightodds.example"
	cfg.Sources = []SourceConfig{src}
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with one source should validate: %v", err)
	}
}

func TestValidateRejectsMissingSource(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("config with no sources accepted")
	}
	if !strings.Contains(err.Error(), "[[source]]") {
		t.Errorf("error should mention missing source: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Sources[0].RequestsPerMinute = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"mode", "redis", "requests_per_minute"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error missing %q: %v", want, err)
		}
	}
}

func TestValidateProxy(t *testing.T) {
	cfg := baseConfig()
	cfg.Sources[0].Proxies = []ProxyConfig{{Host: "10.0.0.1", Port: 8080, Protocol: "carrier-pigeon"}}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown proxy protocol accepted")
	}
}

func TestBackoff(t *testing.T) {
	src := SourceDefaults()
	if got := src.Backoff(0); got != time.Second {
		t.Errorf("Backoff(0) = %v, want 1s", got)
	}
	if got := src.Backoff(2); got != 4*time.Second {
		t.Errorf("Backoff(2) = %v, want 4s with 2x multiplier", got)
	}
	src.MaxBackoffMs = 3000
	if got := src.Backoff(10); got != 3*time.Second {
		t.Errorf("Backoff(10) = %v, want cap at 3s", got)
	}
}
