package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"conti/internal/core"

	_ "modernc.org/sqlite"
)

// SQLite is a durable Store on a local sqlite database. Events are stored
// as JSON payloads keyed by (group, sequence) with a unique event id, so
// the schema enforces the same ordering and idempotency rules the ledger
// checks in memory.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) AppendEvent(ctx context.Context, ev core.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (group_id, sequence, event_id, event_type, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.GroupID.String(), int64(ev.Sequence), ev.ID.String(), string(ev.Type), string(payload))
	if err != nil {
		if constraint := constraintError(err); constraint != nil {
			return constraint
		}
		return fmt.Errorf("insert event: %w", err)
	}

	slog.InfoContext(ctx, "Event stored",
		"event_id", ev.ID,
		"group_id", ev.GroupID,
		"sequence", ev.Sequence,
		"type", ev.Type)
	return nil
}

// constraintError maps sqlite unique-constraint failures onto the store's
// sentinel errors. modernc/sqlite reports constraints via the error text.
func constraintError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "events.event_id"):
		return fmt.Errorf("%w: %v", ErrEventExists, err)
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return fmt.Errorf("%w: %v", ErrSequenceConflict, err)
	}
	return nil
}

func (s *SQLite) LoadEvents(ctx context.Context, group uuid.UUID, fromSeq uint64) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE group_id = ? AND sequence >= ? ORDER BY sequence`,
		group.String(), int64(fromSeq))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []core.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *SQLite) SaveBalanceSnapshot(ctx context.Context, group uuid.UUID, currency string, snap Snapshot) error {
	payload, err := json.Marshal(snap.Balances)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO balance_snapshots (group_id, currency, payload, version, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (group_id, currency)
		 DO UPDATE SET payload = excluded.payload, version = excluded.version, updated_at = CURRENT_TIMESTAMP`,
		group.String(), currency, string(payload), int64(snap.Version))
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *SQLite) LoadBalanceSnapshot(ctx context.Context, group uuid.UUID, currency string) (Snapshot, error) {
	var payload string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM balance_snapshots WHERE group_id = ? AND currency = ?`,
		group.String(), currency).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: group %s currency %s", ErrNoSnapshot, group, currency)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}

	balances := make(map[core.MemberID]int64)
	if err := json.Unmarshal([]byte(payload), &balances); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return Snapshot{Balances: balances, Version: uint64(version)}, nil
}

func (s *SQLite) Groups(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT group_id FROM events ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse group id %q: %w", raw, err)
		}
		groups = append(groups, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}
