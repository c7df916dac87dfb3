package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kbengine/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the single embedded store shared by every engine component.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func InitDB(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS examples (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		module           TEXT NOT NULL,
		category         TEXT NOT NULL DEFAULT '',
		scenario_type    TEXT NOT NULL DEFAULT '',
		specialty        TEXT,
		content_hash     TEXT NOT NULL UNIQUE,
		anonymized_input TEXT NOT NULL,
		validated_output TEXT NOT NULL,
		metadata         TEXT NOT NULL DEFAULT '{}',
		quality_score    REAL NOT NULL DEFAULT 1.0,
		usage_count      INTEGER NOT NULL DEFAULT 0,
		created_at       DATETIME NOT NULL,
		created_by       TEXT NOT NULL DEFAULT '',
		is_active        INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_examples_lookup ON examples(module, category, is_active);

	CREATE TRIGGER IF NOT EXISTS examples_no_delete
	BEFORE DELETE ON examples
	BEGIN
		SELECT RAISE(ABORT, 'examples are retired with is_active, never deleted');
	END;

	CREATE TABLE IF NOT EXISTS feedback (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		module            TEXT NOT NULL,
		session_id        TEXT NOT NULL DEFAULT '',
		ai_suggestion     TEXT NOT NULL,
		user_correction   TEXT,
		feedback_type     TEXT NOT NULL DEFAULT 'validation',
		is_correct        INTEGER,
		improvement_notes TEXT NOT NULL DEFAULT '',
		metadata          TEXT NOT NULL DEFAULT '{}',
		created_at        DATETIME NOT NULL,
		user_role         TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_window ON feedback(module, is_correct, created_at);

	CREATE TRIGGER IF NOT EXISTS feedback_no_update
	BEFORE UPDATE ON feedback
	BEGIN
		SELECT RAISE(ABORT, 'feedback is append-only');
	END;
	CREATE TRIGGER IF NOT EXISTS feedback_no_delete
	BEFORE DELETE ON feedback
	BEGIN
		SELECT RAISE(ABORT, 'feedback is append-only');
	END;

	CREATE TABLE IF NOT EXISTS patterns (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		module           TEXT NOT NULL,
		pattern_type     TEXT NOT NULL,
		description      TEXT NOT NULL,
		frequency        INTEGER NOT NULL,
		confidence_score REAL NOT NULL DEFAULT 0,
		metadata         TEXT NOT NULL DEFAULT '{}',
		detected_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_module ON patterns(module, detected_at);

	CREATE TABLE IF NOT EXISTS metrics (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		module       TEXT NOT NULL,
		metric_name  TEXT NOT NULL,
		metric_value REAL NOT NULL,
		metadata     TEXT NOT NULL DEFAULT '{}',
		recorded_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_window ON metrics(recorded_at, module, metric_name);

	CREATE TABLE IF NOT EXISTS insights (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		module       TEXT NOT NULL,
		insight_type TEXT NOT NULL,
		title        TEXT NOT NULL,
		body         TEXT NOT NULL DEFAULT '',
		metadata     TEXT NOT NULL DEFAULT '{}',
		generated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_insights_module ON insights(module, generated_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock replaces the timestamp source used for created_at/recorded_at columns.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// Ping reports whether the underlying file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func encodeMetadata(m domain.Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(raw string) domain.Metadata {
	if raw == "" || raw == "{}" {
		return domain.Metadata{}
	}
	var m domain.Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return domain.Metadata{"_raw": raw}
	}
	return m
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
