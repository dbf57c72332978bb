package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strikebot.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesSourceDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[[source]]
id = "fightodds"
base_url = "https://api.fightodds.example"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	src := cfg.Sources[0]
	if src.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", src.MaxRetries)
	}
	if src.RequestDelayMinMs != 1000 || src.RequestDelayMaxMs != 4000 {
		t.Errorf("delay window = [%d, %d], want default [1000, 4000]",
			src.RequestDelayMinMs, src.RequestDelayMaxMs)
	}
	if !src.RandomizeHeaders || !src.RotateProxies || !src.RespectRobots {
		t.Errorf("anti-detection toggles = %v/%v/%v, want all true by default",
			src.RandomizeHeaders, src.RotateProxies, src.RespectRobots)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadKeepsExplicitZeroAndFalse(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[[source]]
id = "fightodds"
base_url = "https://api.fightodds.example"
max_retries = 0
rotate_proxies = false
respect_robots = false
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	src := cfg.Sources[0]
	if src.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, explicit 0 must not revert to the default", src.MaxRetries)
	}
	if src.RotateProxies {
		t.Error("rotate_proxies = false reverted to the default")
	}
	if src.RespectRobots {
		t.Error("respect_robots = false reverted to the default")
	}
	if !src.RandomizeHeaders {
		t.Error("omitted randomize_headers should default to true")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STRIKEBOT_MODE", "monitor")
	t.Setenv("STRIKEBOT_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(writeConfig(t, `
mode = "sync"

[[source]]
id = "fightodds"
base_url = "https://api.fightodds.example"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "monitor" {
		t.Errorf("Mode = %q, env override lost", cfg.Mode)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %q, env override lost", cfg.Redis.Addr)
	}
}
