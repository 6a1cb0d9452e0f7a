// Package model defines the domain entities of the pattern cache: casos
// (legal cases), signature vectors, learned patterns, observations, and the
// hints served back to the extraction pipeline.
package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ErrDimensionMismatch is returned when a signature vector's length does not
// match the deployment-configured dimensionality.
var ErrDimensionMismatch = errors.New("model: signature dimension mismatch")

// CheckDimensions validates a raw feature vector against the configured
// dimensionality d.
func CheckDimensions(features []float32, d int) error {
	if len(features) != d {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(features), d)
	}
	return nil
}

// Caso is a legal case, the unit of pattern ownership. Created on first
// sight, immutable thereafter, never deleted (audit requirement).
type Caso struct {
	ID        uuid.UUID `json:"id"`
	NumeroCNJ string    `json:"numero_cnj"`
	Sistema   string    `json:"sistema"` // source system: "pje", "eproc", ...
	CreatedAt time.Time `json:"created_at"`
}

// SignatureVector is a page's structural fingerprint: a fixed-dimension
// feature vector plus a cheap structural hash used for O(1) pre-filtering
// before the full similarity computation. Immutable value object.
type SignatureVector struct {
	Features pgvector.Vector `json:"-"`
	Hash     string          `json:"hash"`
}

// NewSignatureVector wraps raw features and computes the structural hash.
func NewSignatureVector(features []float32) SignatureVector {
	return SignatureVector{
		Features: pgvector.NewVector(features),
		Hash:     SignatureHash(features),
	}
}

// SignatureHash is the SHA-256 digest of the little-endian float32 encoding
// of a feature vector, hex-encoded. Deterministic across processes.
func SignatureHash(features []float32) string {
	buf := make([]byte, 4*len(features))
	for i, f := range features {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Dims returns the vector's dimensionality.
func (s SignatureVector) Dims() int {
	return len(s.Features.Slice())
}

// BBox is a page-region rectangle: [x0, y0, x1, y1] in page points.
type BBox [4]float64

// PatternRecord is a remembered (signature → engine/bbox) suggestion owned
// by a caso. Mutated only by the learner; never physically deleted —
// deprecation is a flag, not a removal.
type PatternRecord struct {
	ID               uuid.UUID       `json:"id"`
	CasoID           uuid.UUID       `json:"caso_id"`
	Signature        SignatureVector `json:"-"`
	PatternType      PatternType     `json:"pattern_type"`
	SuggestedEngine  EngineType      `json:"suggested_engine"`
	SuggestedBBox    *BBox           `json:"suggested_bbox,omitempty"`
	Reliability      float32         `json:"reliability"`
	ObservationCount int             `json:"observation_count"`
	Deprecated       bool            `json:"deprecated"`
	LastUsedAt       time.Time       `json:"last_used_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ObservationResult is the extraction pipeline's report for one page:
// which engine ran, whether it succeeded, and the engine's own confidence.
type ObservationResult struct {
	EngineUsed   EngineType  `json:"engine_used"`
	Success      bool        `json:"success"`
	QualityScore float32     `json:"quality_score"`
	BBoxUsed     *BBox       `json:"bbox_used,omitempty"`
	PageNum      int         `json:"page_num"`
	PatternType  PatternType `json:"pattern_type,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Validate checks field ranges before the result enters the write path.
func (r ObservationResult) Validate() error {
	if !r.EngineUsed.Valid() {
		return fmt.Errorf("model: unknown engine %q", r.EngineUsed)
	}
	if r.QualityScore < 0 || r.QualityScore > 1 {
		return fmt.Errorf("model: quality score out of range: %v", r.QualityScore)
	}
	if r.PageNum < 0 {
		return fmt.Errorf("model: negative page number: %d", r.PageNum)
	}
	return nil
}

// Observation is a persisted, immutable audit row in the observation log.
// PatternID is nil when the observation created a new pattern.
type Observation struct {
	ID     uuid.UUID `json:"id"`
	CasoID uuid.UUID `json:"caso_id"`
	// PatternID references the record the observation reinforced, or nil
	// when a fresh pattern was created from it.
	PatternID  *uuid.UUID        `json:"pattern_id,omitempty"`
	Result     ObservationResult `json:"result"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// PatternHint is the suggestion served on the query path. Computed fresh on
// every query; never persisted.
type PatternHint struct {
	PatternID        uuid.UUID   `json:"pattern_id"`
	PatternType      PatternType `json:"pattern_type"`
	SuggestedEngine  EngineType  `json:"suggested_engine"`
	SuggestedBBox    *BBox       `json:"suggested_bbox,omitempty"`
	Confidence       float32     `json:"confidence"` // similarity score, [0,1]
	Reliability      float32     `json:"reliability"`
	ObservationCount int         `json:"observation_count"`
	ShouldUse        bool        `json:"should_use"`
}

// Transition names the learner state-machine branch a call took.
type Transition string

const (
	// TransitionCreated: no prior hint, a new pattern was anchored.
	TransitionCreated Transition = "created"
	// TransitionReinforced: an existing pattern's reliability moved.
	TransitionReinforced Transition = "reinforced"
	// TransitionProtected: reinforced, but a lower-tier engine's suggestion
	// was rejected in favor of the stored higher-tier one.
	TransitionProtected Transition = "protected"
	// TransitionDeprecated: reliability fell through the floor and the
	// pattern was retired from future hints.
	TransitionDeprecated Transition = "deprecated"
)

// LearnOutcome reports what learning from a page did to the store.
type LearnOutcome struct {
	PatternID   uuid.UUID  `json:"pattern_id"`
	Transition  Transition `json:"transition"`
	Reliability float32    `json:"reliability"`
}

// EngineStats is the per-engine quality rollup over all learned patterns.
type EngineStats struct {
	Engine            EngineType `json:"engine"`
	TotalPatterns     int        `json:"total_patterns"`
	AvgReliability    float32    `json:"avg_reliability"`
	TotalObservations int        `json:"total_observations"`
	DeprecatedCount   int        `json:"deprecated_count"`
}

// ReliabilityScore combines mean reliability with the inverted deprecation
// rate into a single [0,1] score for the engine.
func (s EngineStats) ReliabilityScore() float32 {
	if s.TotalPatterns == 0 {
		return 0
	}
	deprecationRate := float32(s.DeprecatedCount) / float32(s.TotalPatterns)
	return s.AvgReliability*0.7 + (1-deprecationRate)*0.3
}
