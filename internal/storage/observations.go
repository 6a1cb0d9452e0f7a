package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
)

// insertObservation appends one immutable row to the observation log inside
// the caller's transaction. There is no update or delete path for this table.
func insertObservation(ctx context.Context, tx pgx.Tx, obs model.Observation) error {
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	if obs.RecordedAt.IsZero() {
		obs.RecordedAt = time.Now().UTC()
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO observations (id, caso_id, pattern_id, engine_used, success,
		 quality_score, bbox_used, page_num, pattern_type, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		obs.ID, obs.CasoID, obs.PatternID, obs.Result.EngineUsed, obs.Result.Success,
		obs.Result.QualityScore, obs.Result.BBoxUsed, obs.Result.PageNum,
		obs.Result.PatternType, obs.RecordedAt,
	)
	if err != nil {
		return unavailable("insert observation", err)
	}
	return nil
}

// CountObservations returns the number of observation-log rows for a caso.
func (db *DB) CountObservations(ctx context.Context, casoID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM observations WHERE caso_id = $1`, casoID,
	).Scan(&n)
	if err != nil {
		return 0, unavailable("count observations", err)
	}
	return n, nil
}

// ListObservations returns the most recent observation-log rows for a caso,
// newest first.
func (db *DB) ListObservations(ctx context.Context, casoID uuid.UUID, limit int) ([]model.Observation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, caso_id, pattern_id, engine_used, success, quality_score,
		 bbox_used, page_num, pattern_type, recorded_at
		 FROM observations WHERE caso_id = $1
		 ORDER BY recorded_at DESC LIMIT $2`,
		casoID, limit,
	)
	if err != nil {
		return nil, unavailable("list observations", err)
	}
	defer rows.Close()

	var observations []model.Observation
	for rows.Next() {
		var obs model.Observation
		if err := rows.Scan(
			&obs.ID, &obs.CasoID, &obs.PatternID, &obs.Result.EngineUsed,
			&obs.Result.Success, &obs.Result.QualityScore, &obs.Result.BBoxUsed,
			&obs.Result.PageNum, &obs.Result.PatternType, &obs.RecordedAt,
		); err != nil {
			return nil, unavailable("scan observation", err)
		}
		obs.Result.Timestamp = obs.RecordedAt
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list observations", err)
	}
	return observations, nil
}
