package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"patientzero/internal/game"
)

// InMemoryStore is a simple in-process player/audit store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	players map[uint64]game.PlayerState
	records []game.InfectionRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{players: make(map[uint64]game.PlayerState)}
}

func (s *InMemoryStore) Get(_ context.Context, playerID uint64) (game.PlayerState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerID]
	return p, ok, nil
}

func (s *InMemoryStore) UpsertOnMessage(_ context.Context, playerID uint64, at time.Time, messageCooldown time.Duration) (game.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		p = game.PlayerState{ID: playerID, TotalMessages: 1, SanitizedMessages: 1, LastAction: at}
		s.players[playerID] = p
		return game.Counts{Total: 1, Sanitized: 1}, nil
	}
	p.TotalMessages++
	if at.Sub(p.LastAction) > messageCooldown {
		p.SanitizedMessages++
		p.LastAction = at
	}
	s.players[playerID] = p
	return game.Counts{Total: p.TotalMessages, Sanitized: p.SanitizedMessages}, nil
}

func (s *InMemoryStore) SetInfected(_ context.Context, playerID uint64, infected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return game.ErrPlayerNotFound
	}
	p.Infected = infected
	s.players[playerID] = p
	return nil
}

func (s *InMemoryStore) UpsertInfected(_ context.Context, playerID uint64, infected bool, at time.Time) (game.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		p = game.PlayerState{ID: playerID}
	}
	p.Infected = infected
	p.LastAction = at
	s.players[playerID] = p
	return game.Counts{Total: p.TotalMessages, Sanitized: p.SanitizedMessages}, nil
}

func (s *InMemoryStore) LatestInfected(_ context.Context, playerID uint64, asSource bool) (game.InfectionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Records are appended in order; scan backwards for the newest match.
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.Event != game.EventInfected {
			continue
		}
		if asSource && rec.Source == playerID {
			return rec, true, nil
		}
		if !asSource && rec.Target == playerID {
			return rec, true, nil
		}
	}
	return game.InfectionRecord{}, false, nil
}

func (s *InMemoryStore) AppendRecord(_ context.Context, rec game.InfectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) ListInfected(_ context.Context) ([]game.PlayerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []game.PlayerState
	for _, p := range s.players {
		if p.Infected {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
