package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"patientzero/internal/activity"
	"patientzero/internal/buffer"
	"patientzero/internal/observability"
)

// Settings are the game-rule knobs, loaded once at process start.
type Settings struct {
	CureThreshold     int64
	MessageCooldown   time.Duration
	InfectionCooldown time.Duration
	// CureTimeout of 0 disables timeout cures.
	CureTimeout  time.Duration
	ImmuneRoles  []uint64
	CarrierRoles []uint64
}

// Engine decides infection-state transitions from channel recency data,
// player state, and the cooldown windows in Settings. It never talks to the
// chat platform directly: transitions come back as RoleIntent values the
// caller applies through the bridge.
type Engine struct {
	settings Settings
	immune   map[uint64]struct{}
	carrier  map[uint64]struct{}
	store    Store
	channels *activity.Cache
	metrics  *observability.Metrics

	clock    func() time.Time
	onIntent func(RoleIntent)

	// carriers remembers, per player, whether their most recently observed
	// roles included a carrier role. Consulted when that player's message
	// later becomes the proximity source.
	carriers sync.Map // uint64 -> bool
}

func NewEngine(settings Settings, store Store, channels *activity.Cache, metrics *observability.Metrics) *Engine {
	return &Engine{
		settings: settings,
		immune:   roleSet(settings.ImmuneRoles),
		carrier:  roleSet(settings.CarrierRoles),
		store:    store,
		channels: channels,
		metrics:  metrics,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine's time source. Must be called before use.
func (e *Engine) SetClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}

// SetIntentHook registers a callback for role intents produced outside a
// message event, i.e. by the timeout sweep. Must be set before StartSweeper.
func (e *Engine) SetIntentHook(hook func(RoleIntent)) {
	e.onIntent = hook
}

// HandleMessage processes one inbound message event and returns the decided
// outcome. A store failure aborts the event with no partial mutation: no
// audit record is produced for a state change that was not applied first,
// and no role intent is emitted without a recorded state change.
func (e *Engine) HandleMessage(ctx context.Context, ev MessageEvent) (Outcome, error) {
	if ev.Bot {
		return Outcome{}, nil
	}
	now := e.clock()

	counts, err := e.store.UpsertOnMessage(ctx, ev.AuthorID, now, e.settings.MessageCooldown)
	if err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("upsert player on message: %w", err)
	}

	e.carriers.Store(ev.AuthorID, matchesRole(ev.AuthorRoles, e.carrier))

	// Read the previous message and push this one under a single lock
	// acquisition, so a concurrent message for the same channel observes
	// either the fully-pre-update or fully-post-update buffer.
	var prev buffer.Record
	var havePrev bool
	_ = e.channels.GetOrCreate(ev.ChannelID).Update(func(r *buffer.Ring) error {
		prev, havePrev = r.Last()
		r.Push(ev.AuthorID, ev.MessageID, ev.Timestamp)
		return nil
	})

	if e.metrics != nil {
		e.metrics.MessagesProcessed.Inc()
	}

	state, known, err := e.store.Get(ctx, ev.AuthorID)
	if err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("read player state: %w", err)
	}
	if known && state.Infected {
		// Already infected: only cure eligibility is evaluated, never
		// re-infection by proximity.
		return e.evaluateCure(ctx, ev.AuthorID, counts, now)
	}

	if !havePrev || prev.AuthorID == ev.AuthorID {
		return Outcome{}, nil
	}
	if matchesRole(ev.AuthorRoles, e.immune) {
		return Outcome{}, nil
	}

	infectedSource, err := e.sourceInfected(ctx, prev.AuthorID)
	if err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("read proximity source state: %w", err)
	}
	if !infectedSource {
		return Outcome{}, nil
	}

	eligible, err := e.infectionCooldownElapsed(ctx, prev.AuthorID, now)
	if err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("check infection cooldown: %w", err)
	}
	if !eligible {
		return Outcome{}, nil
	}

	reason := fmt.Sprintf("Infected by proximity to <@%d>", prev.AuthorID)
	return e.transition(ctx, EventInfected, ev.AuthorID, prev.AuthorID, reason, "proximity", counts, now)
}

// Infect applies a manual infection command from source to target, creating
// the target's row if needed. last_action is stamped so the fresh victim's
// next messages respect the cooldown chain.
func (e *Engine) Infect(ctx context.Context, target, source uint64) (Outcome, error) {
	now := e.clock()
	counts, err := e.store.UpsertInfected(ctx, target, true, now)
	if err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("apply manual infection: %w", err)
	}
	reason := fmt.Sprintf("Manually infected by <@%d>", source)
	return e.finishTransition(ctx, EventInfected, target, source, reason, "manual", counts, now)
}

// Cure applies a manual cure command from source to target.
func (e *Engine) Cure(ctx context.Context, target, source uint64) (Outcome, error) {
	now := e.clock()
	counts, err := e.store.UpsertInfected(ctx, target, false, now)
	if err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("apply manual cure: %w", err)
	}
	reason := fmt.Sprintf("Manually cured by <@%d>", source)
	return e.finishTransition(ctx, EventCured, target, source, reason, "manual", counts, now)
}

// HandleMessageDelete removes an upstream-deleted message from its channel's
// recency buffer. Underflow and not-found are expected for stale deletes and
// are surfaced for the caller to ignore.
func (e *Engine) HandleMessageDelete(channelID, messageID uint64) error {
	cb, ok := e.channels.Peek(channelID)
	if !ok {
		e.countBufferDelete("not_found")
		return buffer.ErrNotFound
	}
	err := cb.Update(func(r *buffer.Ring) error { return r.Delete(messageID) })
	switch {
	case err == nil:
		e.countBufferDelete("ok")
	case errors.Is(err, buffer.ErrUnderflow):
		e.countBufferDelete("underflow")
	case errors.Is(err, buffer.ErrNotFound):
		e.countBufferDelete("not_found")
	}
	return err
}

// Sweep applies timeout cures to every infected player whose most recent
// infection is older than the cure timeout. Role intents for swept cures go
// through the intent hook.
func (e *Engine) Sweep(ctx context.Context) ([]Outcome, error) {
	if e.settings.CureTimeout <= 0 {
		return nil, nil
	}
	players, err := e.store.ListInfected(ctx)
	if err != nil {
		e.countStoreError()
		return nil, fmt.Errorf("list infected players: %w", err)
	}
	now := e.clock()

	var outcomes []Outcome
	for _, p := range players {
		baseline, ok, err := e.store.LatestInfected(ctx, p.ID, false)
		if err != nil {
			e.countStoreError()
			return outcomes, fmt.Errorf("read infection baseline for %d: %w", p.ID, err)
		}
		if !ok || now.Sub(baseline.RecordedAt) <= e.settings.CureTimeout {
			continue
		}
		out, err := e.transition(ctx, EventCured, p.ID, 0, e.timeoutReason(), "timeout",
			Counts{Total: p.TotalMessages, Sanitized: p.SanitizedMessages}, now)
		if err != nil {
			return outcomes, err
		}
		if out.Intent != nil && e.onIntent != nil {
			e.onIntent(*out.Intent)
		}
		outcomes = append(outcomes, out)
	}
	if e.metrics != nil {
		e.metrics.InfectedPlayers.Set(float64(len(players) - len(outcomes)))
	}
	return outcomes, nil
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.Sweep(ctx); err != nil {
					log.Printf("[game] sweep warning: %v", err)
				}
			}
		}
	}()
}

// evaluateCure checks an infected player's message against both cure rules.
// The message-count cure is checked first and wins when both apply.
func (e *Engine) evaluateCure(ctx context.Context, playerID uint64, counts Counts, now time.Time) (Outcome, error) {
	baseline, ok, err := e.store.LatestInfected(ctx, playerID, false)
	if err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("read infection baseline: %w", err)
	}
	if !ok {
		// Infected flag with no audit baseline: nothing to measure against.
		return Outcome{}, nil
	}

	var reason, label string
	switch {
	case counts.Sanitized-baseline.TargetSanitizedMessages > e.settings.CureThreshold:
		reason = fmt.Sprintf("Sent %d messages while infected", e.settings.CureThreshold)
		label = "message_threshold"
	case e.settings.CureTimeout > 0 && now.Sub(baseline.RecordedAt) > e.settings.CureTimeout:
		reason = e.timeoutReason()
		label = "timeout"
	default:
		return Outcome{}, nil
	}
	return e.transition(ctx, EventCured, playerID, 0, reason, label, counts, now)
}

// transition applies an engine-decided flag flip, then records and reports it.
func (e *Engine) transition(ctx context.Context, kind EventKind, target, source uint64, reason, label string, counts Counts, now time.Time) (Outcome, error) {
	if err := e.store.SetInfected(ctx, target, kind == EventInfected); err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("set infected=%v for %d: %w", kind == EventInfected, target, err)
	}
	return e.finishTransition(ctx, kind, target, source, reason, label, counts, now)
}

// finishTransition appends the audit record for an already-applied state
// change and builds the role intent.
func (e *Engine) finishTransition(ctx context.Context, kind EventKind, target, source uint64, reason, label string, counts Counts, now time.Time) (Outcome, error) {
	rec := InfectionRecord{
		ID:                      uuid.NewString(),
		Event:                   kind,
		Target:                  target,
		Source:                  source,
		Reason:                  reason,
		RecordedAt:              now,
		TargetTotalMessages:     counts.Total,
		TargetSanitizedMessages: counts.Sanitized,
	}
	if err := e.store.AppendRecord(ctx, rec); err != nil {
		e.countStoreError()
		return Outcome{}, fmt.Errorf("append %s record: %w", kind, err)
	}

	intent := &RoleIntent{Action: RoleAdd, PlayerID: target}
	if kind == EventCured {
		intent.Action = RoleRemove
	}
	if e.metrics != nil {
		if kind == EventInfected {
			e.metrics.Infections.WithLabelValues(label).Inc()
			e.metrics.InfectedPlayers.Inc()
		} else {
			e.metrics.Cures.WithLabelValues(label).Inc()
			e.metrics.InfectedPlayers.Dec()
		}
	}
	log.Printf("[game] player %d %s: %s", target, kind, reason)
	return Outcome{Transition: kind, Record: &rec, Intent: intent}, nil
}

// sourceInfected reports whether the proximity source counts as infected:
// carriers always do, everyone else by their stored flag.
func (e *Engine) sourceInfected(ctx context.Context, playerID uint64) (bool, error) {
	if v, ok := e.carriers.Load(playerID); ok && v.(bool) {
		return true, nil
	}
	state, known, err := e.store.Get(ctx, playerID)
	if err != nil {
		return false, err
	}
	return known && state.Infected, nil
}

// infectionCooldownElapsed reports whether the source may infect again. A
// source with no prior sourced infection record is always eligible.
func (e *Engine) infectionCooldownElapsed(ctx context.Context, sourceID uint64, now time.Time) (bool, error) {
	rec, ok, err := e.store.LatestInfected(ctx, sourceID, true)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return now.Sub(rec.RecordedAt) > e.settings.InfectionCooldown, nil
}

func (e *Engine) timeoutReason() string {
	return fmt.Sprintf("Was infected for more than %d seconds", int64(e.settings.CureTimeout/time.Second))
}

func (e *Engine) countStoreError() {
	if e.metrics != nil {
		e.metrics.StoreErrors.Inc()
	}
}

func (e *Engine) countBufferDelete(outcome string) {
	if e.metrics != nil {
		e.metrics.BufferDeletes.WithLabelValues(outcome).Inc()
	}
}

func roleSet(ids []uint64) map[uint64]struct{} {
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func matchesRole(roles []uint64, set map[uint64]struct{}) bool {
	for _, id := range roles {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
