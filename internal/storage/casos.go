package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
)

// GetOrCreateCaso upserts a caso keyed by (numero_cnj, sistema). Concurrent
// first-sight callers resolve through the unique constraint: the insert is
// ON CONFLICT DO NOTHING, and losers re-read the surviving row. Exactly one
// row is ever created per key.
func (db *DB) GetOrCreateCaso(ctx context.Context, numeroCNJ, sistema string) (model.Caso, error) {
	var caso model.Caso
	err := WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		c, err := db.getOrCreateCaso(ctx, numeroCNJ, sistema)
		if err != nil {
			return err
		}
		caso = c
		return nil
	})
	if err != nil {
		return model.Caso{}, unavailable("get or create caso", err)
	}
	return caso, nil
}

func (db *DB) getOrCreateCaso(ctx context.Context, numeroCNJ, sistema string) (model.Caso, error) {
	caso := model.Caso{
		ID:        uuid.New(),
		NumeroCNJ: numeroCNJ,
		Sistema:   sistema,
		CreatedAt: time.Now().UTC(),
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO casos (id, numero_cnj, sistema, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (numero_cnj, sistema) DO NOTHING
		 RETURNING id, created_at`,
		caso.ID, numeroCNJ, sistema, caso.CreatedAt,
	).Scan(&caso.ID, &caso.CreatedAt)
	if err == nil {
		return caso, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Caso{}, err
	}

	// Conflict: another caller created the row first. Read it back.
	err = db.pool.QueryRow(ctx,
		`SELECT id, numero_cnj, sistema, created_at FROM casos
		 WHERE numero_cnj = $1 AND sistema = $2`,
		numeroCNJ, sistema,
	).Scan(&caso.ID, &caso.NumeroCNJ, &caso.Sistema, &caso.CreatedAt)
	if err != nil {
		return model.Caso{}, err
	}
	return caso, nil
}

// GetCaso retrieves a caso by ID.
func (db *DB) GetCaso(ctx context.Context, id uuid.UUID) (model.Caso, error) {
	var caso model.Caso
	err := db.pool.QueryRow(ctx,
		`SELECT id, numero_cnj, sistema, created_at FROM casos WHERE id = $1`, id,
	).Scan(&caso.ID, &caso.NumeroCNJ, &caso.Sistema, &caso.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Caso{}, ErrCasoNotFound
		}
		return model.Caso{}, unavailable("get caso", err)
	}
	return caso, nil
}

// GetCasoByNumero retrieves a caso by its (numero_cnj, sistema) natural key.
func (db *DB) GetCasoByNumero(ctx context.Context, numeroCNJ, sistema string) (model.Caso, error) {
	var caso model.Caso
	err := db.pool.QueryRow(ctx,
		`SELECT id, numero_cnj, sistema, created_at FROM casos
		 WHERE numero_cnj = $1 AND sistema = $2`,
		numeroCNJ, sistema,
	).Scan(&caso.ID, &caso.NumeroCNJ, &caso.Sistema, &caso.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Caso{}, ErrCasoNotFound
		}
		return model.Caso{}, unavailable("get caso by numero", err)
	}
	return caso, nil
}
