package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
)

func insertObservation(ctx context.Context, tx *sql.Tx, obs model.Observation) error {
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	if obs.RecordedAt.IsZero() {
		obs.RecordedAt = time.Now().UTC()
	}

	var patternID any
	if obs.PatternID != nil {
		patternID = obs.PatternID.String()
	}
	bbox, err := encodeBBox(obs.Result.BBoxUsed)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO observations (id, caso_id, pattern_id, engine_used, success,
		 quality_score, bbox_used, page_num, pattern_type, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID.String(), obs.CasoID.String(), patternID, obs.Result.EngineUsed,
		obs.Result.Success, obs.Result.QualityScore, bbox, obs.Result.PageNum,
		obs.Result.PatternType, obs.RecordedAt,
	)
	if err != nil {
		return unavailable("insert observation", err)
	}
	return nil
}

// CountObservations returns the number of observation-log rows for a caso.
func (s *Store) CountObservations(ctx context.Context, casoID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE caso_id = ?`, casoID.String(),
	).Scan(&n)
	if err != nil {
		return 0, unavailable("count observations", err)
	}
	return n, nil
}

// ListObservations returns the most recent observation-log rows for a caso,
// newest first.
func (s *Store) ListObservations(ctx context.Context, casoID uuid.UUID, limit int) ([]model.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, caso_id, pattern_id, engine_used, success, quality_score,
		 bbox_used, page_num, pattern_type, recorded_at
		 FROM observations WHERE caso_id = ?
		 ORDER BY recorded_at DESC, id LIMIT ?`,
		casoID.String(), limit,
	)
	if err != nil {
		return nil, unavailable("list observations", err)
	}
	defer rows.Close()

	var observations []model.Observation
	for rows.Next() {
		var obs model.Observation
		var rawID, rawCaso string
		var rawPattern, rawBBox sql.NullString
		if err := rows.Scan(
			&rawID, &rawCaso, &rawPattern, &obs.Result.EngineUsed,
			&obs.Result.Success, &obs.Result.QualityScore, &rawBBox,
			&obs.Result.PageNum, &obs.Result.PatternType, &obs.RecordedAt,
		); err != nil {
			return nil, unavailable("scan observation", err)
		}
		if obs.ID, err = uuid.Parse(rawID); err != nil {
			return nil, unavailable("parse observation id", err)
		}
		if obs.CasoID, err = uuid.Parse(rawCaso); err != nil {
			return nil, unavailable("parse caso id", err)
		}
		if rawPattern.Valid {
			pid, err := uuid.Parse(rawPattern.String)
			if err != nil {
				return nil, unavailable("parse pattern id", err)
			}
			obs.PatternID = &pid
		}
		if obs.Result.BBoxUsed, err = decodeBBox(rawBBox); err != nil {
			return nil, err
		}
		obs.Result.Timestamp = obs.RecordedAt
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list observations", err)
	}
	return observations, nil
}

// EngineStats rolls up pattern quality per suggested engine across all casos.
func (s *Store) EngineStats(ctx context.Context) ([]model.EngineStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT suggested_engine,
		        COUNT(*),
		        COALESCE(AVG(reliability), 0),
		        COALESCE(SUM(observation_count), 0),
		        COALESCE(SUM(deprecated), 0)
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
		var st model.EngineStats
		if err := rows.Scan(
			&st.Engine, &st.TotalPatterns, &st.AvgReliability,
			&st.TotalObservations, &st.DeprecatedCount,
		); err != nil {
			return nil, unavailable("scan engine stats", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("engine stats", err)
	}
	return stats, nil
}
