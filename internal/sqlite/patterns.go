package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
	"github.com/PedroGiudice/lex-vector-sub003/internal/storage"
)

const patternColumns = `id, caso_id, signature_hash, signature, pattern_type,
	suggested_engine, suggested_bbox, reliability, observation_count,
	deprecated, last_used_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (model.PatternRecord, error) {
	var rec model.PatternRecord
	var rawID, rawCaso, rawFeatures string
	var rawBBox sql.NullString
	err := row.Scan(
		&rawID, &rawCaso, &rec.Signature.Hash, &rawFeatures, &rec.PatternType,
		&rec.SuggestedEngine, &rawBBox, &rec.Reliability, &rec.ObservationCount,
		&rec.Deprecated, &rec.LastUsedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return model.PatternRecord{}, err
	}
	if rec.ID, err = uuid.Parse(rawID); err != nil {
		return model.PatternRecord{}, err
	}
	if rec.CasoID, err = uuid.Parse(rawCaso); err != nil {
		return model.PatternRecord{}, err
	}
	if rec.Signature.Features, err = decodeFeatures(rawFeatures); err != nil {
		return model.PatternRecord{}, err
	}
	if rec.SuggestedBBox, err = decodeBBox(rawBBox); err != nil {
		return model.PatternRecord{}, err
	}
	return rec, nil
}

// ListActivePatterns returns all non-deprecated patterns owned by a caso.
func (s *Store) ListActivePatterns(ctx context.Context, casoID uuid.UUID) ([]model.PatternRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM patterns
		 WHERE caso_id = ? AND deprecated = 0`, casoID.String(),
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
func (s *Store) GetPattern(ctx context.Context, id uuid.UUID) (model.PatternRecord, error) {
	rec, err := scanPattern(s.db.QueryRowContext(ctx,
		`SELECT `+patternColumns+` FROM patterns WHERE id = ?`, id.String(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PatternRecord{}, storage.ErrPatternNotFound
	}
	if err != nil {
		return model.PatternRecord{}, unavailable("get pattern", err)
	}
	return rec, nil
}

// CreatePattern inserts a new pattern and its founding observation in one
// transaction.
func (s *Store) CreatePattern(ctx context.Context, rec model.PatternRecord, obs model.Observation) (model.PatternRecord, error) {
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

	features, err := encodeFeatures(rec.Signature.Features)
	if err != nil {
		return model.PatternRecord{}, err
	}
	bbox, err := encodeBBox(rec.SuggestedBBox)
	if err != nil {
		return model.PatternRecord{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.PatternRecord{}, unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO patterns (id, caso_id, signature_hash, signature, pattern_type,
		 suggested_engine, suggested_bbox, reliability, observation_count,
		 deprecated, last_used_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.CasoID.String(), rec.Signature.Hash, features,
		rec.PatternType, rec.SuggestedEngine, bbox, rec.Reliability,
		rec.ObservationCount, rec.Deprecated, rec.LastUsedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return model.PatternRecord{}, unavailable("insert pattern", err)
	}

	if err := insertObservation(ctx, tx, obs); err != nil {
		return model.PatternRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.PatternRecord{}, unavailable("commit create pattern", err)
	}
	return rec, nil
}

// UpdatePattern persists a learner mutation and appends the observation that
// caused it, atomically.
func (s *Store) UpdatePattern(ctx context.Context, rec model.PatternRecord, obs model.Observation) error {
	bbox, err := encodeBBox(rec.SuggestedBBox)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE patterns SET
		 suggested_engine = ?, suggested_bbox = ?, reliability = ?,
		 observation_count = ?, deprecated = ?, last_used_at = ?, updated_at = ?
		 WHERE id = ?`,
		rec.SuggestedEngine, bbox, rec.Reliability, rec.ObservationCount,
		rec.Deprecated, rec.LastUsedAt, time.Now().UTC(), rec.ID.String(),
	)
	if err != nil {
		return unavailable("update pattern", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable("update pattern", err)
	}
	if affected == 0 {
		return storage.ErrPatternNotFound
	}

	if err := insertObservation(ctx, tx, obs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit update pattern", err)
	}
	return nil
}

// PatternCount returns how many patterns a caso owns in the given
// deprecation state.
func (s *Store) PatternCount(ctx context.Context, casoID uuid.UUID, deprecated bool) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM patterns WHERE caso_id = ? AND deprecated = ?`,
		casoID.String(), deprecated,
	).Scan(&n)
	if err != nil {
		return 0, unavailable("count patterns", err)
	}
	return n, nil
}
