package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kbengine/internal/domain"
)

// sqliteTimeFormats mirrors the layouts go-sqlite3 writes for time.Time values.
var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// parseTimestamp handles aggregate columns (MIN/MAX) where the driver loses
// the DATETIME declared type and hands back raw text.
func parseTimestamp(raw string) time.Time {
	for _, layout := range sqliteTimeFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (s *Store) InsertFeedback(ctx context.Context, rec domain.FeedbackRecord) (int64, error) {
	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return 0, err
	}
	var isCorrect sql.NullInt64
	if rec.IsCorrect != nil {
		isCorrect.Valid = true
		if *rec.IsCorrect {
			isCorrect.Int64 = 1
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback
		 (module, session_id, ai_suggestion, user_correction, feedback_type, is_correct,
		  improvement_notes, metadata, created_at, user_role)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Module, rec.SessionID, rec.AISuggestion, nullString(rec.UserCorrection),
		rec.FeedbackType, isCorrect, rec.ImprovementNotes, metadata, s.timestamp(), rec.UserRole,
	)
	if err != nil {
		return 0, fmt.Errorf("insert feedback: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetFeedback(ctx context.Context, id int64) (domain.FeedbackRecord, error) {
	var rec domain.FeedbackRecord
	var correction sql.NullString
	var isCorrect sql.NullInt64
	var metadata string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, module, session_id, ai_suggestion, user_correction, feedback_type, is_correct,
		        improvement_notes, metadata, created_at, user_role
		 FROM feedback WHERE id = ?`,
		id,
	).Scan(
		&rec.ID, &rec.Module, &rec.SessionID, &rec.AISuggestion, &correction, &rec.FeedbackType,
		&isCorrect, &rec.ImprovementNotes, &metadata, &rec.CreatedAt, &rec.UserRole,
	)
	if err == sql.ErrNoRows {
		return rec, fmt.Errorf("feedback %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return rec, err
	}
	rec.UserCorrection = correction.String
	if isCorrect.Valid {
		rec.IsCorrect = domain.BoolPtr(isCorrect.Int64 == 1)
	}
	rec.Metadata = decodeMetadata(metadata)
	return rec, nil
}

// CorrectionCounts groups incorrect feedback for module since the given time
// by exact correction text and keeps groups seen more than minExclusive times.
// Ties on frequency fall back to earliest occurrence, then text.
func (s *Store) CorrectionCounts(ctx context.Context, module string, since time.Time, minExclusive, limit int) ([]domain.CorrectionCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_correction, COUNT(*) AS cnt, MIN(created_at), MAX(created_at)
		 FROM feedback
		 WHERE module = ? AND is_correct = 0 AND user_correction IS NOT NULL
		   AND created_at >= ?
		 GROUP BY user_correction
		 HAVING COUNT(*) > ?
		 ORDER BY cnt DESC, MIN(created_at) ASC, user_correction ASC
		 LIMIT ?`,
		module, since.UTC(), minExclusive, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query correction counts: %w", err)
	}
	defer rows.Close()

	out := []domain.CorrectionCount{}
	for rows.Next() {
		var c domain.CorrectionCount
		var first, last string
		if err := rows.Scan(&c.Correction, &c.Frequency, &first, &last); err != nil {
			return nil, err
		}
		c.FirstSeen = parseTimestamp(first)
		c.LastSeen = parseTimestamp(last)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountIncorrectFeedback(ctx context.Context, module string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback
		 WHERE module = ? AND is_correct = 0 AND created_at >= ?`,
		module, since.UTC(),
	).Scan(&count)
	return count, err
}
