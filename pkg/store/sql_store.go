package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentos-dev/agentkernel/pkg/contracts"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name   string
	Driver string
	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool
}

var (
	// Postgres uses github.com/lib/pq.
	Postgres = Dialect{Name: "postgres", Driver: "postgres", Numbered: true}
	// SQLite uses modernc.org/sqlite.
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite"}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kernel_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS kernel_events (
	run_id TEXT NOT NULL,
	step_id INTEGER NOT NULL,
	type TEXT NOT NULL,
	body TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, step_id)
);`

// SQLStateStore persists state and event logs in two tables.
type SQLStateStore struct {
	db      *sql.DB
	dialect Dialect
	clock   func() time.Time
}

var _ StateStore = (*SQLStateStore)(nil)

// NewSQLStateStore wraps an open database. Call Init to create the schema.
func NewSQLStateStore(db *sql.DB, dialect Dialect) *SQLStateStore {
	return &SQLStateStore{db: db, dialect: dialect, clock: time.Now}
}

// Init creates the tables if they do not exist.
func (s *SQLStateStore) Init(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init %s schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// PutState implements StateStore.
func (s *SQLStateStore) PutState(ctx context.Context, key string, value any) error {
	if err := checkKey("state key", key); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	query := s.dialect.rebind(`
		INSERT INTO kernel_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, query, key, string(data), s.clock().UTC()); err != nil {
		return fmt.Errorf("failed to upsert state %s: %w", key, err)
	}
	return nil
}

// GetState implements StateStore.
func (s *SQLStateStore) GetState(ctx context.Context, key string, dst any) (bool, error) {
	if err := checkKey("state key", key); err != nil {
		return false, err
	}
	var value string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT value FROM kernel_state WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read state %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

// AppendEvent implements StateStore. A second event with the same step id
// for a run is rejected by the primary key.
func (s *SQLStateStore) AppendEvent(ctx context.Context, runID string, ev contracts.Event) error {
	if err := CheckRunID(runID); err != nil {
		return err
	}
	body, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	query := s.dialect.rebind(`
		INSERT INTO kernel_events (run_id, step_id, type, body, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, runID, ev.StepID, string(ev.Type), string(body), s.clock().UTC()); err != nil {
		return fmt.Errorf("failed to insert event %s/%d: %w", runID, ev.StepID, err)
	}
	return nil
}

// Events implements StateStore.
func (s *SQLStateStore) Events(ctx context.Context, runID string) ([]contracts.Event, error) {
	if err := CheckRunID(runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT body FROM kernel_events WHERE run_id = ? ORDER BY step_id`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []contracts.Event{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		ev, err := decodeEvent([]byte(body))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Keys implements StateStore.
func (s *SQLStateStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kernel_state ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the database.
func (s *SQLStateStore) Close() error {
	return s.db.Close()
}
