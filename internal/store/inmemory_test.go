package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"patientzero/internal/game"
)

func TestUpsertOnMessageCooldown(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0).UTC()
	cooldown := 30 * time.Second

	counts, err := s.UpsertOnMessage(ctx, 1, t0, cooldown)
	if err != nil {
		t.Fatalf("UpsertOnMessage() error = %v", err)
	}
	if counts.Total != 1 || counts.Sanitized != 1 {
		t.Fatalf("first message counts = %+v, want 1/1", counts)
	}

	// Inside the cooldown only total moves.
	counts, err = s.UpsertOnMessage(ctx, 1, t0.Add(10*time.Second), cooldown)
	if err != nil {
		t.Fatalf("UpsertOnMessage() error = %v", err)
	}
	if counts.Total != 2 || counts.Sanitized != 1 {
		t.Fatalf("burst message counts = %+v, want 2/1", counts)
	}

	// The cooldown window anchors on the last counted action, not the last
	// message, so t0+31s counts even though the burst message was at t0+10s.
	counts, err = s.UpsertOnMessage(ctx, 1, t0.Add(31*time.Second), cooldown)
	if err != nil {
		t.Fatalf("UpsertOnMessage() error = %v", err)
	}
	if counts.Total != 3 || counts.Sanitized != 2 {
		t.Fatalf("post-cooldown counts = %+v, want 3/2", counts)
	}

	state, ok, err := s.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if !state.LastAction.Equal(t0.Add(31 * time.Second)) {
		t.Fatalf("LastAction = %v, want the last counted message time", state.LastAction)
	}
}

func TestSetInfectedUnknownPlayer(t *testing.T) {
	s := NewInMemoryStore()
	if err := s.SetInfected(context.Background(), 42, true); !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("SetInfected() = %v, want ErrPlayerNotFound", err)
	}
}

func TestUpsertInfectedCreatesAndFlips(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0).UTC()

	if _, err := s.UpsertInfected(ctx, 7, true, t0); err != nil {
		t.Fatalf("UpsertInfected() error = %v", err)
	}
	state, ok, _ := s.Get(ctx, 7)
	if !ok || !state.Infected || !state.LastAction.Equal(t0) {
		t.Fatalf("state after upsert = %+v, %v", state, ok)
	}

	if _, err := s.UpsertInfected(ctx, 7, false, t0.Add(time.Minute)); err != nil {
		t.Fatalf("UpsertInfected() error = %v", err)
	}
	state, _, _ = s.Get(ctx, 7)
	if state.Infected {
		t.Fatalf("infected flag not cleared")
	}
}

func TestLatestInfectedFiltering(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0).UTC()

	add := func(event game.EventKind, target, source uint64, at time.Time) {
		t.Helper()
		if err := s.AppendRecord(ctx, game.InfectionRecord{
			Event: event, Target: target, Source: source, RecordedAt: at,
		}); err != nil {
			t.Fatalf("AppendRecord() error = %v", err)
		}
	}

	add(game.EventInfected, 2, 1, t0)
	add(game.EventCured, 2, 0, t0.Add(time.Hour))
	add(game.EventInfected, 3, 1, t0.Add(2*time.Hour))
	add(game.EventInfected, 2, 3, t0.Add(3*time.Hour))

	// Newest infected record targeting player 2, skipping the cure.
	rec, ok, err := s.LatestInfected(ctx, 2, false)
	if err != nil || !ok {
		t.Fatalf("LatestInfected(target) = %v, %v", ok, err)
	}
	if rec.Source != 3 || !rec.RecordedAt.Equal(t0.Add(3*time.Hour)) {
		t.Fatalf("target record = %+v, want newest with source 3", rec)
	}

	// Newest infection sourced by player 1.
	rec, ok, err = s.LatestInfected(ctx, 1, true)
	if err != nil || !ok {
		t.Fatalf("LatestInfected(source) = %v, %v", ok, err)
	}
	if rec.Target != 3 {
		t.Fatalf("source record target = %d, want 3", rec.Target)
	}

	if _, ok, _ := s.LatestInfected(ctx, 99, false); ok {
		t.Fatalf("LatestInfected found a record for an unknown player")
	}
}

func TestListInfected(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0).UTC()

	for id := uint64(1); id <= 3; id++ {
		if _, err := s.UpsertOnMessage(ctx, id, t0, time.Second); err != nil {
			t.Fatalf("UpsertOnMessage() error = %v", err)
		}
	}
	if err := s.SetInfected(ctx, 2, true); err != nil {
		t.Fatalf("SetInfected() error = %v", err)
	}

	infected, err := s.ListInfected(ctx)
	if err != nil {
		t.Fatalf("ListInfected() error = %v", err)
	}
	if len(infected) != 1 || infected[0].ID != 2 {
		t.Fatalf("ListInfected() = %+v, want only player 2", infected)
	}
}
