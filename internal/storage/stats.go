package storage

import (
	"context"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
)

// EngineStats rolls up pattern quality per suggested engine across all casos.
func (db *DB) EngineStats(ctx context.Context) ([]model.EngineStats, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT suggested_engine,
		        COUNT(*),
		        COALESCE(AVG(reliability), 0),
		        COALESCE(SUM(observation_count), 0),
		        COUNT(*) FILTER (WHERE deprecated)
		 FROM patterns
		 GROUP BY suggested_engine
		 ORDER BY suggested_engine`,
	)
	if err != nil {
		return nil, unavailable("engine stats", err)
	}
	defer rows.Close()

	var stats []model.EngineStats
	for rows.Next() {
		var s model.EngineStats
		if err := rows.Scan(
			&s.Engine, &s.TotalPatterns, &s.AvgReliability,
			&s.TotalObservations, &s.DeprecatedCount,
		); err != nil {
			return nil, unavailable("scan engine stats", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("engine stats", err)
	}
	return stats, nil
}
