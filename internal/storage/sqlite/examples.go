package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kbengine/internal/domain"
)

const exampleColumns = `id, module, category, scenario_type, specialty, content_hash,
	anonymized_input, validated_output, metadata, quality_score, usage_count,
	created_at, created_by, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExample(row rowScanner) (domain.Example, error) {
	var ex domain.Example
	var specialty sql.NullString
	var metadata string
	var active int
	err := row.Scan(
		&ex.ID, &ex.Module, &ex.Category, &ex.ScenarioType, &specialty, &ex.ContentHash,
		&ex.AnonymizedInput, &ex.ValidatedOutput, &metadata, &ex.QualityScore, &ex.UsageCount,
		&ex.CreatedAt, &ex.CreatedBy, &active,
	)
	if err != nil {
		return ex, err
	}
	ex.Specialty = specialty.String
	ex.Metadata = decodeMetadata(metadata)
	ex.IsActive = active == 1
	return ex, nil
}

// UpsertExample inserts ex or, when a row with the same content hash exists,
// bumps that row's usage_count. The existence check is the UNIQUE constraint
// on content_hash, so concurrent callers never produce two rows.
// created is false when an existing row was touched.
func (s *Store) UpsertExample(ctx context.Context, ex domain.Example) (id int64, created bool, err error) {
	metadata, err := encodeMetadata(ex.Metadata)
	if err != nil {
		return 0, false, err
	}
	quality := ex.QualityScore
	if quality == 0 {
		quality = domain.DefaultQualityScore
	}

	var usage int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO examples
		 (module, category, scenario_type, specialty, content_hash, anonymized_input,
		  validated_output, metadata, quality_score, usage_count, created_at, created_by, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 1)
		 ON CONFLICT(content_hash) DO UPDATE SET usage_count = usage_count + 1
		 RETURNING id, usage_count`,
		ex.Module, ex.Category, ex.ScenarioType, nullString(ex.Specialty), ex.ContentHash,
		ex.AnonymizedInput, ex.ValidatedOutput, metadata, quality, s.timestamp(), ex.CreatedBy,
	).Scan(&id, &usage)
	if err != nil {
		return 0, false, fmt.Errorf("upsert example: %w", err)
	}
	// A fresh row starts at zero; a conflict always leaves the row at >= 1.
	return id, usage == 0, nil
}

func (s *Store) GetExample(ctx context.Context, id int64) (domain.Example, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+exampleColumns+` FROM examples WHERE id = ?`, id)
	ex, err := scanExample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ex, fmt.Errorf("example %d: %w", id, domain.ErrNotFound)
	}
	return ex, err
}

// CandidateExamples is the read-only half of retrieval: filter and rank
// without touching usage counts.
func (s *Store) CandidateExamples(ctx context.Context, q domain.ExampleQuery) ([]domain.Example, error) {
	if q.Limit <= 0 {
		return []domain.Example{}, nil
	}

	query := `SELECT ` + exampleColumns + ` FROM examples WHERE module = ? AND is_active = 1`
	args := []any{q.Module}
	if q.Category != "" {
		query += ` AND category = ?`
		args = append(args, q.Category)
	}
	if q.Specialty != "" {
		query += ` AND (specialty = ? OR specialty IS NULL)`
		args = append(args, q.Specialty)
	}
	query += ` ORDER BY quality_score DESC, usage_count DESC, id ASC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query examples: %w", err)
	}
	defer rows.Close()

	out := []domain.Example{}
	for rows.Next() {
		ex, err := scanExample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// IncrementUsage adds one to usage_count for every id in a single statement
// and returns the resulting counts keyed by id. Ids that no longer exist are
// absent from the result.
func (s *Store) IncrementUsage(ctx context.Context, ids []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`UPDATE examples SET usage_count = usage_count + 1
		 WHERE id IN (`+placeholders(len(ids))+`)
		 RETURNING id, usage_count`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, usage int64
		if err := rows.Scan(&id, &usage); err != nil {
			return nil, err
		}
		counts[id] = usage
	}
	return counts, rows.Err()
}

func (s *Store) SetExampleActive(ctx context.Context, id int64, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE examples SET is_active = ? WHERE id = ?`, flag, id)
	if err != nil {
		return fmt.Errorf("set example active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("example %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) CountExamples(ctx context.Context, module string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM examples WHERE module = ?`, module,
	).Scan(&count)
	return count, err
}
