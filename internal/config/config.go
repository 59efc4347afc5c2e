package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the infection game service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	SweepInterval    time.Duration

	DatabaseURL string

	BufferCapacity    int
	CureThreshold     int
	MessageCooldown   time.Duration
	InfectionCooldown time.Duration
	// CureTimeout of 0 disables automatic timeout cures.
	CureTimeout  time.Duration
	ImmuneRoles  []uint64
	CarrierRoles []uint64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "patientzero"),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ShutdownTimeout:   15 * time.Second,
		SweepInterval:     time.Minute,
		BufferCapacity:    10,
		CureThreshold:     15,
		MessageCooldown:   30 * time.Second,
		InfectionCooldown: 5 * time.Minute,
		CureTimeout:       0,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval, err = durationFromEnv("APP_SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.BufferCapacity, err = intFromEnv("GAME_BUFFER_CAPACITY", cfg.BufferCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.CureThreshold, err = intFromEnv("GAME_CURE_THRESHOLD", cfg.CureThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MessageCooldown, err = durationFromEnv("GAME_MESSAGE_COOLDOWN", cfg.MessageCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.InfectionCooldown, err = durationFromEnv("GAME_INFECTION_COOLDOWN", cfg.InfectionCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.CureTimeout, err = durationFromEnv("GAME_CURE_TIMEOUT", cfg.CureTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ImmuneRoles, err = idListFromEnv("GAME_IMMUNE_ROLES")
	if err != nil {
		return Config{}, err
	}
	cfg.CarrierRoles, err = idListFromEnv("GAME_CARRIER_ROLES")
	if err != nil {
		return Config{}, err
	}

	if cfg.BufferCapacity < 2 {
		return Config{}, fmt.Errorf("GAME_BUFFER_CAPACITY must be at least 2")
	}
	if cfg.CureThreshold <= 0 {
		return Config{}, fmt.Errorf("GAME_CURE_THRESHOLD must be positive")
	}
	if cfg.MessageCooldown < 0 || cfg.InfectionCooldown < 0 || cfg.CureTimeout < 0 {
		return Config{}, fmt.Errorf("game cooldowns must not be negative")
	}
	if cfg.SweepInterval < time.Second {
		return Config{}, fmt.Errorf("APP_SWEEP_INTERVAL must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

// idListFromEnv parses a comma-separated list of platform snowflake IDs.
func idListFromEnv(key string) ([]uint64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	out := make([]uint64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s parse error on %q: %w", key, part, err)
		}
		out = append(out, id)
	}
	return out, nil
}
