package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
)

const patternColumns = `id, caso_id, signature_hash, signature, pattern_type,
	suggested_engine, suggested_bbox, reliability, observation_count,
	deprecated, last_used_at, created_at, updated_at`

func scanPattern(row pgx.Row) (model.PatternRecord, error) {
	var rec model.PatternRecord
	err := row.Scan(
		&rec.ID, &rec.CasoID, &rec.Signature.Hash, &rec.Signature.Features,
		&rec.PatternType, &rec.SuggestedEngine, &rec.SuggestedBBox,
		&rec.Reliability, &rec.ObservationCount, &rec.Deprecated,
		&rec.LastUsedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

// ListActivePatterns returns all non-deprecated patterns owned by a caso.
// Deprecated records stay in the table for audit but are excluded here,
// which is what keeps them out of every future candidate search.
func (db *DB) ListActivePatterns(ctx context.Context, casoID uuid.UUID) ([]model.PatternRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+patternColumns+` FROM patterns
		 WHERE caso_id = $1 AND NOT deprecated`, casoID,
	)
	if err != nil {
		return nil, unavailable("list active patterns", err)
	}
	defer rows.Close()

	var records []model.PatternRecord
	for rows.Next() {
		rec, err := scanPattern(rows)
		if err != nil {
			return nil, unavailable("scan pattern", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list active patterns", err)
	}
	return records, nil
}

// GetPattern retrieves a pattern by ID, deprecated or not.
func (db *DB) GetPattern(ctx context.Context, id uuid.UUID) (model.PatternRecord, error) {
	rec, err := scanPattern(db.pool.QueryRow(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PatternRecord{}, ErrPatternNotFound
		}
		return model.PatternRecord{}, unavailable("get pattern", err)
	}
	return rec, nil
}

// CreatePattern inserts a new pattern and its founding observation in one
// transaction. Both land or neither does.
func (db *DB) CreatePattern(ctx context.Context, rec model.PatternRecord, obs model.Observation) (model.PatternRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastUsedAt.IsZero() {
		rec.LastUsedAt = now
	}
	rec.UpdatedAt = now

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.PatternRecord{}, unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO patterns (id, caso_id, signature_hash, signature, pattern_type,
		 suggested_engine, suggested_bbox, reliability, observation_count,
		 deprecated, last_used_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.CasoID, rec.Signature.Hash, rec.Signature.Features,
		rec.PatternType, rec.SuggestedEngine, rec.SuggestedBBox,
		rec.Reliability, rec.ObservationCount, rec.Deprecated,
		rec.LastUsedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return model.PatternRecord{}, unavailable("insert pattern", err)
	}

	if err := insertObservation(ctx, tx, obs); err != nil {
		return model.PatternRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.PatternRecord{}, unavailable("commit create pattern", err)
	}
	return rec, nil
}

// UpdatePattern persists a learner mutation and appends the observation that
// caused it, atomically.
func (db *DB) UpdatePattern(ctx context.Context, rec model.PatternRecord, obs model.Observation) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE patterns SET
		 suggested_engine = $2, suggested_bbox = $3, reliability = $4,
		 observation_count = $5, deprecated = $6, last_used_at = $7,
		 updated_at = now()
		 WHERE id = $1`,
		rec.ID, rec.SuggestedEngine, rec.SuggestedBBox, rec.Reliability,
		rec.ObservationCount, rec.Deprecated, rec.LastUsedAt,
	)
	if err != nil {
		return unavailable("update pattern", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatternNotFound
	}

	if err := insertObservation(ctx, tx, obs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit update pattern", err)
	}
	return nil
}

// PatternCount returns how many patterns a caso owns in the given
// deprecation state.
func (db *DB) PatternCount(ctx context.Context, casoID uuid.UUID, deprecated bool) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM patterns WHERE caso_id = $1 AND deprecated = $2`,
		casoID, deprecated,
	).Scan(&n)
	if err != nil {
		return 0, unavailable("count patterns", err)
	}
	return n, nil
}
