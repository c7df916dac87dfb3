package sqlite

import (
	"context"
	"fmt"

	"kbengine/internal/domain"
)

// InsertPatterns stores a snapshot of detected patterns. Detection itself
// never writes here; callers snapshot explicitly.
func (s *Store) InsertPatterns(ctx context.Context, patterns []domain.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO patterns
		 (module, pattern_type, description, frequency, confidence_score, metadata, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range patterns {
		metadata, err := encodeMetadata(p.Metadata)
		if err != nil {
			return err
		}
		detectedAt := p.DetectedAt
		if detectedAt.IsZero() {
			detectedAt = s.timestamp()
		}
		if _, err := stmt.ExecContext(ctx,
			p.Module, p.PatternType, p.Description, p.Frequency, p.ConfidenceScore,
			metadata, detectedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert pattern: %w", err)
		}
	}
	return tx.Commit()
}

// RecentPatterns returns stored snapshots, newest first. An empty module
// means every module.
func (s *Store) RecentPatterns(ctx context.Context, module string, limit int) ([]domain.Pattern, error) {
	query := `SELECT id, module, pattern_type, description, frequency, confidence_score, metadata, detected_at FROM patterns`
	var args []any
	if module != "" {
		query += ` WHERE module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY detected_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	out := []domain.Pattern{}
	for rows.Next() {
		var p domain.Pattern
		var metadata string
		if err := rows.Scan(&p.ID, &p.Module, &p.PatternType, &p.Description, &p.Frequency,
			&p.ConfidenceScore, &metadata, &p.DetectedAt); err != nil {
			return nil, err
		}
		p.Metadata = decodeMetadata(metadata)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) InsertInsights(ctx context.Context, insights []domain.Insight) error {
	if len(insights) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO insights (module, insight_type, title, body, metadata, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.timestamp()
	for _, in := range insights {
		metadata, err := encodeMetadata(in.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			in.Module, in.InsightType, in.Title, in.Body, metadata, now,
		); err != nil {
			return fmt.Errorf("insert insight: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) RecentInsights(ctx context.Context, module string, limit int) ([]domain.Insight, error) {
	query := `SELECT id, module, insight_type, title, body, metadata, generated_at FROM insights`
	var args []any
	if module != "" {
		query += ` WHERE module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY generated_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	out := []domain.Insight{}
	for rows.Next() {
		var in domain.Insight
		var metadata string
		if err := rows.Scan(&in.ID, &in.Module, &in.InsightType, &in.Title, &in.Body,
			&metadata, &in.GeneratedAt); err != nil {
			return nil, err
		}
		in.Metadata = decodeMetadata(metadata)
		out = append(out, in)
	}
	return out, rows.Err()
}
