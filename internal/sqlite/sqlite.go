// Package sqlite provides an embedded storage backend for the pattern cache,
// backed by modernc.org/sqlite. It implements the same contract as the
// Postgres layer in internal/storage and serves single-process deployments
// where running Postgres is not worth it, plus in-memory stores for tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
	"github.com/PedroGiudice/lex-vector-sub003/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS casos (
    id TEXT PRIMARY KEY,
    numero_cnj TEXT NOT NULL,
    sistema TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (numero_cnj, sistema)
);

CREATE TABLE IF NOT EXISTS patterns (
    id TEXT PRIMARY KEY,
    caso_id TEXT NOT NULL REFERENCES casos(id),
    signature_hash TEXT NOT NULL,
    signature TEXT NOT NULL,
    pattern_type TEXT NOT NULL DEFAULT 'unknown',
    suggested_engine TEXT NOT NULL,
    suggested_bbox TEXT,
    reliability REAL NOT NULL,
    observation_count INTEGER NOT NULL DEFAULT 1,
    deprecated INTEGER NOT NULL DEFAULT 0,
    last_used_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patterns_caso_active ON patterns (caso_id, deprecated);
CREATE INDEX IF NOT EXISTS idx_patterns_caso_hash ON patterns (caso_id, signature_hash);

CREATE TABLE IF NOT EXISTS observations (
    id TEXT PRIMARY KEY,
    caso_id TEXT NOT NULL REFERENCES casos(id),
    pattern_id TEXT REFERENCES patterns(id),
    engine_used TEXT NOT NULL,
    success INTEGER NOT NULL,
    quality_score REAL NOT NULL,
    bbox_used TEXT,
    page_num INTEGER NOT NULL DEFAULT 0,
    pattern_type TEXT NOT NULL DEFAULT 'unknown',
    recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_caso ON observations (caso_id);
CREATE INDEX IF NOT EXISTS idx_observations_pattern ON observations (pattern_id);
`

// Store is an embedded SQLite store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (or opens) a SQLite store at path and applies the schema.
// Use ":memory:" for an in-process store, e.g. in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite allows one writer at a time; a single connection sidesteps
	// SQLITE_BUSY entirely and is also what keeps ":memory:" stores coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Ping checks the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", errors.Join(storage.ErrUnavailable, err))
	}
	return nil
}

// Close shuts down the store.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("sqlite: %s: %w", op, errors.Join(storage.ErrUnavailable, err))
}

// GetOrCreateCaso upserts a caso keyed by (numero_cnj, sistema). The unique
// constraint guarantees a single surviving row under concurrent first sight.
func (s *Store) GetOrCreateCaso(ctx context.Context, numeroCNJ, sistema string) (model.Caso, error) {
	caso := model.Caso{
		ID:        uuid.New(),
		NumeroCNJ: numeroCNJ,
		Sistema:   sistema,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO casos (id, numero_cnj, sistema, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (numero_cnj, sistema) DO NOTHING`,
		caso.ID.String(), numeroCNJ, sistema, caso.CreatedAt,
	)
	if err != nil {
		return model.Caso{}, unavailable("insert caso", err)
	}

	// Read back whichever row survived.
	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM casos WHERE numero_cnj = ? AND sistema = ?`,
		numeroCNJ, sistema,
	).Scan(&id, &caso.CreatedAt)
	if err != nil {
		return model.Caso{}, unavailable("read caso", err)
	}
	caso.ID, err = uuid.Parse(id)
	if err != nil {
		return model.Caso{}, fmt.Errorf("sqlite: parse caso id: %w", err)
	}
	return caso, nil
}

// GetCaso retrieves a caso by ID.
func (s *Store) GetCaso(ctx context.Context, id uuid.UUID) (model.Caso, error) {
	var caso model.Caso
	var rawID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, numero_cnj, sistema, created_at FROM casos WHERE id = ?`,
		id.String(),
	).Scan(&rawID, &caso.NumeroCNJ, &caso.Sistema, &caso.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Caso{}, storage.ErrCasoNotFound
	}
	if err != nil {
		return model.Caso{}, unavailable("get caso", err)
	}
	caso.ID = id
	return caso, nil
}

// GetCasoByNumero retrieves a caso by its (numero_cnj, sistema) natural key.
func (s *Store) GetCasoByNumero(ctx context.Context, numeroCNJ, sistema string) (model.Caso, error) {
	var caso model.Caso
	var rawID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, numero_cnj, sistema, created_at FROM casos
		 WHERE numero_cnj = ? AND sistema = ?`,
		numeroCNJ, sistema,
	).Scan(&rawID, &caso.NumeroCNJ, &caso.Sistema, &caso.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Caso{}, storage.ErrCasoNotFound
	}
	if err != nil {
		return model.Caso{}, unavailable("get caso by numero", err)
	}
	caso.ID, err = uuid.Parse(rawID)
	if err != nil {
		return model.Caso{}, fmt.Errorf("sqlite: parse caso id: %w", err)
	}
	return caso, nil
}

func encodeFeatures(v pgvector.Vector) (string, error) {
	b, err := json.Marshal(v.Slice())
	if err != nil {
		return "", fmt.Errorf("sqlite: encode features: %w", err)
	}
	return string(b), nil
}

func decodeFeatures(raw string) (pgvector.Vector, error) {
	var features []float32
	if err := json.Unmarshal([]byte(raw), &features); err != nil {
		return pgvector.Vector{}, fmt.Errorf("sqlite: decode features: %w", err)
	}
	return pgvector.NewVector(features), nil
}

func encodeBBox(b *model.BBox) (any, error) {
	if b == nil {
		return nil, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode bbox: %w", err)
	}
	return string(raw), nil
}

func decodeBBox(raw sql.NullString) (*model.BBox, error) {
	if !raw.Valid {
		return nil, nil
	}
	var b model.BBox
	if err := json.Unmarshal([]byte(raw.String), &b); err != nil {
		return nil, fmt.Errorf("sqlite: decode bbox: %w", err)
	}
	return &b, nil
}
