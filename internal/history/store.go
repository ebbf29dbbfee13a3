// Package history persists fired alerts and slot switches to a local sqlite
// database for diagnostics. It is write-mostly: the decision core never reads
// history back into its logic, only the status server queries it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"skybar/internal/types"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS alert_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	event_kind TEXT NOT NULL,
	event_start DATETIME NOT NULL,
	severity REAL NOT NULL,
	tier TEXT NOT NULL,
	fired_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_history_fired_at ON alert_history(fired_at);

CREATE TABLE IF NOT EXISTS slot_switches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_content TEXT NOT NULL,
	to_content TEXT NOT NULL,
	reason TEXT NOT NULL,
	switched_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_slot_switches_switched_at ON slot_switches(switched_at);
`

// AlertRecord is one fired alert as stored.
type AlertRecord struct {
	EventID    string          `json:"event_id"`
	EventKind  types.EventKind `json:"event_kind"`
	EventStart time.Time       `json:"event_start"`
	Severity   float64         `json:"severity"`
	Tier       types.AlertTier `json:"tier"`
	FiredAt    time.Time       `json:"fired_at"`
}

// SwitchRecord is one slot content switch as stored.
type SwitchRecord struct {
	From       types.SlotContent `json:"from"`
	To         types.SlotContent `json:"to"`
	Reason     string            `json:"reason"`
	SwitchedAt time.Time         `json:"switched_at"`
}

// Store wraps the sqlite database holding the diagnostics history.
type Store struct {
	db      *sql.DB
	maxRows int
}

// Open creates (or opens) the history database at path and ensures the
// schema exists. maxRows caps each table; older rows are pruned on insert.
func Open(path string, maxRows int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// Single writer; keep the pool at one connection to avoid sqlite
	// lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Store{db: db, maxRows: maxRows}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertAlert records one fired alert and prunes rows past the cap.
func (s *Store) InsertAlert(ctx context.Context, rec AlertRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_history (event_id, event_kind, event_start, severity, tier, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.EventID, string(rec.EventKind), rec.EventStart.UTC(), rec.Severity, string(rec.Tier), rec.FiredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert alert record: %w", err)
	}
	return s.prune(ctx, "alert_history")
}

// InsertSwitch records one slot switch and prunes rows past the cap.
func (s *Store) InsertSwitch(ctx context.Context, rec SwitchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slot_switches (from_content, to_content, reason, switched_at)
		 VALUES (?, ?, ?, ?)`,
		string(rec.From), string(rec.To), rec.Reason, rec.SwitchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert switch record: %w", err)
	}
	return s.prune(ctx, "slot_switches")
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_kind, event_start, severity, tier, fired_at
		 FROM alert_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	records := []AlertRecord{}
	for rows.Next() {
		var rec AlertRecord
		var kind, tier string
		if err := rows.Scan(&rec.EventID, &kind, &rec.EventStart, &rec.Severity, &tier, &rec.FiredAt); err != nil {
			return nil, fmt.Errorf("scan alert record: %w", err)
		}
		rec.EventKind = types.EventKind(kind)
		rec.Tier = types.AlertTier(tier)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecentSwitches returns up to limit slot switches, newest first.
func (s *Store) RecentSwitches(ctx context.Context, limit int) ([]SwitchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_content, to_content, reason, switched_at
		 FROM slot_switches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query switch history: %w", err)
	}
	defer rows.Close()

	records := []SwitchRecord{}
	for rows.Next() {
		var rec SwitchRecord
		var from, to string
		if err := rows.Scan(&from, &to, &rec.Reason, &rec.SwitchedAt); err != nil {
			return nil, fmt.Errorf("scan switch record: %w", err)
		}
		rec.From = types.SlotContent(from)
		rec.To = types.SlotContent(to)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// prune deletes the oldest rows past the per-table cap.
func (s *Store) prune(ctx context.Context, table string) error {
	if s.maxRows <= 0 {
		return nil
	}
	// table is one of two compile-time constants; never user input.
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY id DESC LIMIT ?)`,
		table, table), s.maxRows)
	if err != nil {
		return fmt.Errorf("prune %s: %w", table, err)
	}
	return nil
}
