package sqlite

import (
	"context"
	"fmt"
	"time"

	"kbengine/internal/domain"
)

func (s *Store) InsertMetric(ctx context.Context, m domain.MetricSample) error {
	metadata, err := encodeMetadata(m.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metrics (module, metric_name, metric_value, metadata, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.Module, m.MetricName, m.MetricValue, metadata, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// MetricRollup groups samples recorded since the given time by module and
// metric name. An empty module means every module. The result is never nil.
func (s *Store) MetricRollup(ctx context.Context, module string, since time.Time) (domain.Summary, error) {
	query := `SELECT module, metric_name, COUNT(*), COALESCE(AVG(metric_value), 0), COALESCE(SUM(metric_value), 0)
		 FROM metrics
		 WHERE recorded_at >= ?`
	args := []any{since.UTC()}
	if module != "" {
		query += ` AND module = ?`
		args = append(args, module)
	}
	query += ` GROUP BY module, metric_name ORDER BY module, metric_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metric rollup: %w", err)
	}
	defer rows.Close()

	out := domain.Summary{}
	for rows.Next() {
		var mod, name string
		var stat domain.MetricStat
		if err := rows.Scan(&mod, &name, &stat.Count, &stat.Average, &stat.Sum); err != nil {
			return nil, err
		}
		if out[mod] == nil {
			out[mod] = make(map[string]domain.MetricStat)
		}
		out[mod][name] = stat
	}
	return out, rows.Err()
}
