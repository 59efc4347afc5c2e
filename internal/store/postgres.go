package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"patientzero/internal/game"
)

// PostgresStore is the canonical player/audit store backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id BIGINT PRIMARY KEY,
			infected BOOLEAN NOT NULL DEFAULT FALSE,
			total_messages BIGINT NOT NULL DEFAULT 0,
			sanitized_messages BIGINT NOT NULL DEFAULT 0,
			last_action TIMESTAMPTZ NOT NULL DEFAULT to_timestamp(0)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_players_infected ON players (id) WHERE infected;`,
		`CREATE TABLE IF NOT EXISTS infection_records (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			target BIGINT NOT NULL,
			source BIGINT NULL,
			reason TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL,
			target_total_messages BIGINT NOT NULL,
			target_sanitized_messages BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_infection_records_target_time ON infection_records (target, recorded_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_infection_records_source_time ON infection_records (source, recorded_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, playerID uint64) (game.PlayerState, bool, error) {
	var p game.PlayerState
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id, infected, total_messages, sanitized_messages, last_action
		 FROM players WHERE id=$1`,
		int64(playerID),
	).Scan(&id, &p.Infected, &p.TotalMessages, &p.SanitizedMessages, &p.LastAction)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.PlayerState{}, false, nil
	}
	if err != nil {
		return game.PlayerState{}, false, fmt.Errorf("query player: %w", err)
	}
	p.ID = uint64(id)
	return p, true, nil
}

// UpsertOnMessage mirrors the single-statement conditional upsert the game
// depends on: total always advances, sanitized and last_action only once the
// message cooldown has elapsed.
func (s *PostgresStore) UpsertOnMessage(ctx context.Context, playerID uint64, at time.Time, messageCooldown time.Duration) (game.Counts, error) {
	var c game.Counts
	err := s.pool.QueryRow(ctx,
		`INSERT INTO players (id, total_messages, sanitized_messages, last_action)
		 VALUES ($1, 1, 1, $2)
		 ON CONFLICT (id) DO UPDATE SET
			total_messages = players.total_messages + 1,
			sanitized_messages =
				CASE WHEN EXTRACT(EPOCH FROM ($2::timestamptz - players.last_action)) > $3
				THEN players.sanitized_messages + 1
				ELSE players.sanitized_messages END,
			last_action =
				CASE WHEN EXTRACT(EPOCH FROM ($2::timestamptz - players.last_action)) > $3
				THEN $2::timestamptz
				ELSE players.last_action END
		 RETURNING total_messages, sanitized_messages`,
		int64(playerID),
		at,
		messageCooldown.Seconds(),
	).Scan(&c.Total, &c.Sanitized)
	if err != nil {
		return game.Counts{}, fmt.Errorf("upsert player on message: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) SetInfected(ctx context.Context, playerID uint64, infected bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET infected=$2 WHERE id=$1`,
		int64(playerID), infected,
	)
	if err != nil {
		return fmt.Errorf("set infected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return game.ErrPlayerNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertInfected(ctx context.Context, playerID uint64, infected bool, at time.Time) (game.Counts, error) {
	var c game.Counts
	err := s.pool.QueryRow(ctx,
		`INSERT INTO players (id, infected, last_action) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET infected=$2, last_action=$3
		 RETURNING total_messages, sanitized_messages`,
		int64(playerID), infected, at,
	).Scan(&c.Total, &c.Sanitized)
	if err != nil {
		return game.Counts{}, fmt.Errorf("upsert infected flag: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) LatestInfected(ctx context.Context, playerID uint64, asSource bool) (game.InfectionRecord, bool, error) {
	column := "target"
	if asSource {
		column = "source"
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, event, target, source, reason, recorded_at, target_total_messages, target_sanitized_messages
		 FROM infection_records
		 WHERE `+column+`=$1 AND event='infected'
		 ORDER BY recorded_at DESC LIMIT 1`,
		int64(playerID),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.InfectionRecord{}, false, nil
	}
	if err != nil {
		return game.InfectionRecord{}, false, fmt.Errorf("query latest infection record: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) AppendRecord(ctx context.Context, rec game.InfectionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	var source *int64
	if rec.Source != 0 {
		v := int64(rec.Source)
		source = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO infection_records
		 (id, event, target, source, reason, recorded_at, target_total_messages, target_sanitized_messages)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		string(rec.Event),
		int64(rec.Target),
		source,
		rec.Reason,
		rec.RecordedAt,
		rec.TargetTotalMessages,
		rec.TargetSanitizedMessages,
	)
	if err != nil {
		return fmt.Errorf("append infection record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListInfected(ctx context.Context) ([]game.PlayerState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, infected, total_messages, sanitized_messages, last_action
		 FROM players WHERE infected`,
	)
	if err != nil {
		return nil, fmt.Errorf("query infected players: %w", err)
	}
	defer rows.Close()

	var out []game.PlayerState
	for rows.Next() {
		var p game.PlayerState
		var id int64
		if err := rows.Scan(&id, &p.Infected, &p.TotalMessages, &p.SanitizedMessages, &p.LastAction); err != nil {
			return nil, fmt.Errorf("scan infected player: %w", err)
		}
		p.ID = uint64(id)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate infected players: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (game.InfectionRecord, error) {
	var rec game.InfectionRecord
	var event string
	var target int64
	var source *int64
	if err := row.Scan(&rec.ID, &event, &target, &source, &rec.Reason, &rec.RecordedAt,
		&rec.TargetTotalMessages, &rec.TargetSanitizedMessages); err != nil {
		return game.InfectionRecord{}, err
	}
	rec.Event = game.EventKind(event)
	rec.Target = uint64(target)
	if source != nil {
		rec.Source = uint64(*source)
	}
	return rec, nil
}
