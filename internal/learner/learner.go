// Package learner implements the write path of the pattern cache: deciding
// whether an observation creates a new pattern, reinforces an existing one,
// is rejected by engine-tier protection, or triggers deprecation.
//
// Callers must serialize LearnFromPage per caso (see internal/keylock); the
// learner itself performs read-modify-write on pattern records and assumes
// it is the only writer for the caso while a call is in flight.
package learner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
	"github.com/PedroGiudice/lex-vector-sub003/internal/storage"
)

// Store is the store access the learner needs. Every mutation carries the
// observation that caused it so the store can commit both atomically.
type Store interface {
	GetCaso(ctx context.Context, id uuid.UUID) (model.Caso, error)
	GetPattern(ctx context.Context, id uuid.UUID) (model.PatternRecord, error)
	CreatePattern(ctx context.Context, rec model.PatternRecord, obs model.Observation) (model.PatternRecord, error)
	UpdatePattern(ctx context.Context, rec model.PatternRecord, obs model.Observation) error
}

// Config holds the learning tunables.
type Config struct {
	Dimensions int
	// DecayAlpha weights history in the reliability EMA; (1-alpha) weights
	// the single new observation.
	DecayAlpha       float64
	ReliabilityFloor float64
	// MinObservationsForDeprecation keeps young patterns from being retired
	// off a couple of unlucky pages.
	MinObservationsForDeprecation int
}

// Learner applies observations to the pattern store.
type Learner struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// New creates a Learner.
func New(store Store, cfg Config, logger *slog.Logger) *Learner {
	return &Learner{store: store, cfg: cfg, logger: logger}
}

// initialReliability seeds a fresh pattern from its founding observation.
// A pattern born from a failed extraction starts barely above zero rather
// than at it, so one later success can still resurrect it.
func initialReliability(result model.ObservationResult) float32 {
	if result.Success {
		return result.QualityScore
	}
	return 0.2
}

// clamp01 keeps reliability inside [0,1] against float drift.
func clamp01(v float64) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return float32(v)
}

// LearnFromPage records the outcome of extracting one page.
//
// With no prior hint it anchors a new pattern at the signature. With a prior
// hint it reinforces the matched pattern: reliability moves by exponential
// moving average toward the observed quality (or toward zero on failure),
// the suggested engine only ever ratchets up in tier, and a pattern whose
// reliability falls through the floor after enough observations is
// deprecated — flagged out of future hints, never deleted.
//
// Exactly one observation row is appended per call, in the same transaction
// as the pattern mutation.
func (l *Learner) LearnFromPage(
	ctx context.Context,
	casoID uuid.UUID,
	signature model.SignatureVector,
	result model.ObservationResult,
	priorHint *model.PatternHint,
) (model.LearnOutcome, error) {
	if err := model.CheckDimensions(signature.Features.Slice(), l.cfg.Dimensions); err != nil {
		return model.LearnOutcome{}, err
	}
	if err := result.Validate(); err != nil {
		return model.LearnOutcome{}, err
	}
	if _, err := l.store.GetCaso(ctx, casoID); err != nil {
		return model.LearnOutcome{}, err
	}

	if priorHint == nil {
		return l.createPattern(ctx, casoID, signature, result)
	}
	return l.updatePattern(ctx, casoID, priorHint.PatternID, result)
}

func (l *Learner) createPattern(
	ctx context.Context,
	casoID uuid.UUID,
	signature model.SignatureVector,
	result model.ObservationResult,
) (model.LearnOutcome, error) {
	patternType := result.PatternType
	if patternType == "" {
		patternType = model.PatternUnknown
	}

	rec := model.PatternRecord{
		CasoID:           casoID,
		Signature:        signature,
		PatternType:      patternType,
		SuggestedEngine:  result.EngineUsed,
		SuggestedBBox:    result.BBoxUsed,
		Reliability:      initialReliability(result),
		ObservationCount: 1,
	}

	// The founding observation carries a nil pattern reference: the log row
	// marks "a new pattern was created here", not a reinforcement.
	obs := model.Observation{CasoID: casoID, PatternID: nil, Result: result}

	created, err := l.store.CreatePattern(ctx, rec, obs)
	if err != nil {
		return model.LearnOutcome{}, fmt.Errorf("learner: create pattern: %w", err)
	}

	l.logger.Info("learner: pattern created",
		"caso_id", casoID,
		"pattern_id", created.ID,
		"engine", created.SuggestedEngine,
		"reliability", created.Reliability,
	)
	return model.LearnOutcome{
		PatternID:   created.ID,
		Transition:  model.TransitionCreated,
		Reliability: created.Reliability,
	}, nil
}

func (l *Learner) updatePattern(
	ctx context.Context,
	casoID uuid.UUID,
	patternID uuid.UUID,
	result model.ObservationResult,
) (model.LearnOutcome, error) {
	rec, err := l.store.GetPattern(ctx, patternID)
	if err != nil {
		return model.LearnOutcome{}, err
	}
	if rec.CasoID != casoID {
		// Patterns are owned per caso. A hint that crossed caso boundaries
		// must not mutate the other caso's pattern under this caso's lock,
		// nor log an observation against the wrong caso.
		return model.LearnOutcome{}, storage.ErrPatternNotFound
	}

	// Reliability EMA: history weighted by alpha, the new observation by
	// (1-alpha). Failure contributes a zero signal.
	var signal float64
	if result.Success {
		signal = float64(result.QualityScore)
	}
	rec.Reliability = clamp01(l.cfg.DecayAlpha*float64(rec.Reliability) + (1-l.cfg.DecayAlpha)*signal)
	rec.ObservationCount++

	transition := model.TransitionReinforced
	switch {
	case result.Success:
		rec.LastUsedAt = time.Now().UTC()
		if result.EngineUsed.Tier() >= rec.SuggestedEngine.Tier() {
			// Equal or higher tier succeeded: adopt it as the suggestion.
			rec.SuggestedEngine = result.EngineUsed
			if result.BBoxUsed != nil {
				rec.SuggestedBBox = result.BBoxUsed
			}
		} else {
			// A lower-tier engine also happened to work this time. Keep the
			// superior engine's suggestion — engines only ratchet up.
			transition = model.TransitionProtected
		}
	case !rec.Deprecated &&
		float64(rec.Reliability) < l.cfg.ReliabilityFloor &&
		rec.ObservationCount >= l.cfg.MinObservationsForDeprecation:
		rec.Deprecated = true
		transition = model.TransitionDeprecated
	}

	obs := model.Observation{CasoID: casoID, PatternID: &rec.ID, Result: result}
	if err := l.store.UpdatePattern(ctx, rec, obs); err != nil {
		return model.LearnOutcome{}, fmt.Errorf("learner: update pattern: %w", err)
	}

	if transition == model.TransitionDeprecated {
		l.logger.Warn("learner: pattern deprecated",
			"caso_id", casoID,
			"pattern_id", rec.ID,
			"reliability", rec.Reliability,
			"observations", rec.ObservationCount,
		)
	} else {
		l.logger.Debug("learner: pattern updated",
			"caso_id", casoID,
			"pattern_id", rec.ID,
			"transition", transition,
			"reliability", rec.Reliability,
		)
	}

	return model.LearnOutcome{
		PatternID:   rec.ID,
		Transition:  transition,
		Reliability: rec.Reliability,
	}, nil
}
