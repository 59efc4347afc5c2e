package game

import (
	"context"
	"errors"
	"time"
)

// EventKind labels one infection-state transition in the audit trail.
type EventKind string

const (
	EventInfected EventKind = "infected"
	EventCured    EventKind = "cured"
)

// PlayerState is one player's row as held by the store.
// SanitizedMessages counts messages toward cure progress and never exceeds
// TotalMessages.
type PlayerState struct {
	ID                uint64    `json:"id"`
	Infected          bool      `json:"infected"`
	TotalMessages     int64     `json:"total_messages"`
	SanitizedMessages int64     `json:"sanitized_messages"`
	LastAction        time.Time `json:"last_action"`
}

// InfectionRecord is an append-only audit entry. The most recent Infected
// record for a target is the baseline that cure progress and the cure
// timeout are measured against.
type InfectionRecord struct {
	ID     string    `json:"id"`
	Event  EventKind `json:"event"`
	Target uint64    `json:"target"`
	// Source is 0 for system-initiated transitions (timeout cures).
	Source                  uint64    `json:"source,omitempty"`
	Reason                  string    `json:"reason"`
	RecordedAt              time.Time `json:"recorded_at"`
	TargetTotalMessages     int64     `json:"target_total_messages"`
	TargetSanitizedMessages int64     `json:"target_sanitized_messages"`
}

// MessageEvent is one inbound message as delivered by the platform bridge.
type MessageEvent struct {
	AuthorID    uint64
	ChannelID   uint64
	MessageID   uint64
	Timestamp   time.Time
	AuthorRoles []uint64
	Bot         bool
}

// RoleAction names the direction of a role-sync intent.
type RoleAction string

const (
	RoleAdd    RoleAction = "add"
	RoleRemove RoleAction = "remove"
)

// RoleIntent asks the platform collaborator to apply a role change. The
// collaborator must treat failures as retryable; the canonical infection
// state lives in the store, not in the platform's role.
type RoleIntent struct {
	Action   RoleAction `json:"action"`
	PlayerID uint64     `json:"player_id"`
}

// Outcome describes what one event decided. A zero Outcome means no
// transition happened.
type Outcome struct {
	Transition EventKind        `json:"transition,omitempty"`
	Record     *InfectionRecord `json:"record,omitempty"`
	Intent     *RoleIntent      `json:"intent,omitempty"`
}

// Counts is a post-update message-count snapshot returned by the store.
type Counts struct {
	Total     int64 `json:"total_messages"`
	Sanitized int64 `json:"sanitized_messages"`
}

// ErrPlayerNotFound is returned by store writes targeting an absent player.
var ErrPlayerNotFound = errors.New("player not found")

// Store is the narrow player/audit persistence interface the engine
// consumes. Implementations live in internal/store.
type Store interface {
	// Get returns the player's state; ok is false when the player is unknown.
	Get(ctx context.Context, playerID uint64) (state PlayerState, ok bool, err error)
	// UpsertOnMessage creates or updates the player row for one message:
	// total_messages always increments; sanitized_messages and last_action
	// advance only when at least messageCooldown has elapsed since the
	// previous counted action. Returns the post-update counts.
	UpsertOnMessage(ctx context.Context, playerID uint64, at time.Time, messageCooldown time.Duration) (Counts, error)
	// SetInfected flips the stored infected flag for an existing player.
	SetInfected(ctx context.Context, playerID uint64, infected bool) error
	// UpsertInfected creates-or-updates the player, forcing the infected
	// flag and stamping last_action so a freshly infected player's next
	// messages respect the cooldown chain. Used by manual commands.
	UpsertInfected(ctx context.Context, playerID uint64, infected bool, at time.Time) (Counts, error)
	// LatestInfected returns the player's most recent Infected audit record,
	// as target or (asSource) as infection source.
	LatestInfected(ctx context.Context, playerID uint64, asSource bool) (rec InfectionRecord, ok bool, err error)
	// AppendRecord durably appends one audit record.
	AppendRecord(ctx context.Context, rec InfectionRecord) error
	// ListInfected returns every currently infected player, for the sweep.
	ListInfected(ctx context.Context) ([]PlayerState, error)
	Close() error
}
