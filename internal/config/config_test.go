package config

import (
	"testing"
	"time"
)

func clearGameEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_BIND_ADDR", "APP_METRICS_NAMESPACE", "APP_SHUTDOWN_TIMEOUT",
		"APP_SWEEP_INTERVAL", "APP_ALLOW_ANY_ORIGIN", "DATABASE_URL",
		"GAME_BUFFER_CAPACITY", "GAME_CURE_THRESHOLD", "GAME_MESSAGE_COOLDOWN",
		"GAME_INFECTION_COOLDOWN", "GAME_CURE_TIMEOUT",
		"GAME_IMMUNE_ROLES", "GAME_CARRIER_ROLES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearGameEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Errorf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "patientzero" {
		t.Errorf("MetricsNamespace = %q", cfg.MetricsNamespace)
	}
	if cfg.BufferCapacity != 10 {
		t.Errorf("BufferCapacity = %d, want 10", cfg.BufferCapacity)
	}
	if cfg.CureThreshold != 15 {
		t.Errorf("CureThreshold = %d, want 15", cfg.CureThreshold)
	}
	if cfg.MessageCooldown != 30*time.Second {
		t.Errorf("MessageCooldown = %v", cfg.MessageCooldown)
	}
	if cfg.InfectionCooldown != 5*time.Minute {
		t.Errorf("InfectionCooldown = %v", cfg.InfectionCooldown)
	}
	if cfg.CureTimeout != 0 {
		t.Errorf("CureTimeout = %v, want disabled", cfg.CureTimeout)
	}
	if len(cfg.ImmuneRoles) != 0 || len(cfg.CarrierRoles) != 0 {
		t.Errorf("role lists not empty by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearGameEnv(t)
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("GAME_CURE_THRESHOLD", "3")
	t.Setenv("GAME_CURE_TIMEOUT", "1h")
	t.Setenv("GAME_IMMUNE_ROLES", " 111, 222 ,333 ")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Errorf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.CureThreshold != 3 {
		t.Errorf("CureThreshold = %d", cfg.CureThreshold)
	}
	if cfg.CureTimeout != time.Hour {
		t.Errorf("CureTimeout = %v", cfg.CureTimeout)
	}
	want := []uint64{111, 222, 333}
	if len(cfg.ImmuneRoles) != len(want) {
		t.Fatalf("ImmuneRoles = %v, want %v", cfg.ImmuneRoles, want)
	}
	for i, id := range want {
		if cfg.ImmuneRoles[i] != id {
			t.Errorf("ImmuneRoles[%d] = %d, want %d", i, cfg.ImmuneRoles[i], id)
		}
	}
	if !cfg.AllowAnyOrigin {
		t.Errorf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"tiny buffer", "GAME_BUFFER_CAPACITY", "1"},
		{"zero threshold", "GAME_CURE_THRESHOLD", "0"},
		{"negative cooldown", "GAME_MESSAGE_COOLDOWN", "-5s"},
		{"garbage duration", "GAME_CURE_TIMEOUT", "soon"},
		{"garbage role id", "GAME_IMMUNE_ROLES", "111,notanid"},
		{"sub-second sweep", "APP_SWEEP_INTERVAL", "100ms"},
		{"garbage bool", "APP_ALLOW_ANY_ORIGIN", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGameEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() accepted %s=%q", tc.key, tc.value)
			}
		})
	}
}
