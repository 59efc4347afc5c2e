package app

import (
	"context"
	"fmt"

	"patientzero/internal/activity"
	"patientzero/internal/config"
	"patientzero/internal/game"
	"patientzero/internal/httpapi"
	"patientzero/internal/observability"
	"patientzero/internal/store"
)

// BuildResult bundles the wired service components.
type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Engine  *game.Engine
	Cache   *activity.Cache
	Store   game.Store
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build wires the activity cache, store, engine and API together.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	cache := activity.NewCache(cfg.BufferCapacity)
	cache.SetCreateHook(metrics.ChannelsCreated.Inc)

	engine := game.NewEngine(game.Settings{
		CureThreshold:     int64(cfg.CureThreshold),
		MessageCooldown:   cfg.MessageCooldown,
		InfectionCooldown: cfg.InfectionCooldown,
		CureTimeout:       cfg.CureTimeout,
		ImmuneRoles:       cfg.ImmuneRoles,
		CarrierRoles:      cfg.CarrierRoles,
	}, st, cache, metrics)

	api := httpapi.New(cfg, engine, cache, st, metrics)
	// Sweep-initiated cures reach the platform through whichever bridge is
	// connected at the time.
	engine.SetIntentHook(api.BroadcastIntent)

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Engine:  engine,
		Cache:   cache,
		Store:   st,
		Metrics: metrics,
		Cleanup: st.Close,
	}, nil
}

// Start launches the engine's background sweeper.
func (b *BuildResult) Start(ctx context.Context) {
	if b.Config.CureTimeout > 0 {
		b.Engine.StartSweeper(ctx, b.Config.SweepInterval)
	}
}
