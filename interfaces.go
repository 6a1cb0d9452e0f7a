package lexvector

import (
	"context"

	"github.com/google/uuid"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
)

// store is the persistence contract shared by the Postgres backend
// (internal/storage) and the embedded SQLite backend (internal/sqlite).
// It is injected into the matcher and learner rather than reached through
// a singleton, so both stay testable against an in-memory store.
type store interface {
	GetOrCreateCaso(ctx context.Context, numeroCNJ, sistema string) (model.Caso, error)
	GetCaso(ctx context.Context, id uuid.UUID) (model.Caso, error)
	GetCasoByNumero(ctx context.Context, numeroCNJ, sistema string) (model.Caso, error)

	ListActivePatterns(ctx context.Context, casoID uuid.UUID) ([]model.PatternRecord, error)
	GetPattern(ctx context.Context, id uuid.UUID) (model.PatternRecord, error)
	CreatePattern(ctx context.Context, rec model.PatternRecord, obs model.Observation) (model.PatternRecord, error)
	UpdatePattern(ctx context.Context, rec model.PatternRecord, obs model.Observation) error
	PatternCount(ctx context.Context, casoID uuid.UUID, deprecated bool) (int, error)

	CountObservations(ctx context.Context, casoID uuid.UUID) (int, error)
	ListObservations(ctx context.Context, casoID uuid.UUID, limit int) ([]model.Observation, error)

	EngineStats(ctx context.Context) ([]model.EngineStats, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
