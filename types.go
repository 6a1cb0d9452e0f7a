package lexvector

import (
	"time"

	"github.com/google/uuid"
)

// Engine names accepted by the cache, lowest tier first. The cache ranks
// them internally; a suggestion only ever moves up this list.
const (
	EngineNativeText     = "native_text"
	EngineOCRFast        = "ocr_fast"
	EngineOCRHighQuality = "ocr_high_quality"
	EngineLLMVision      = "llm_vision"
)

// Pattern type names, matching the region classes the extraction pipeline reports.
const (
	PatternHeader    = "header"
	PatternFooter    = "footer"
	PatternTable     = "table"
	PatternTextBlock = "text_block"
	PatternImage     = "image"
	PatternSignature = "signature"
	PatternStamp     = "stamp"
	PatternUnknown   = "unknown"
)

// Transition names reported in LearnOutcome.
const (
	TransitionCreated    = "created"
	TransitionReinforced = "reinforced"
	TransitionProtected  = "protected"
	TransitionDeprecated = "deprecated"
)

// Caso is a legal case, the unit of pattern ownership.
type Caso struct {
	ID        uuid.UUID
	NumeroCNJ string
	Sistema   string
	CreatedAt time.Time
}

// BBox is a page-region rectangle: [x0, y0, x1, y1] in page points.
type BBox [4]float64

// ObservationResult is the pipeline's report for one extracted page.
type ObservationResult struct {
	EngineUsed   string
	Success      bool
	QualityScore float32 // extraction confidence reported by the engine itself, [0,1]
	BBoxUsed     *BBox
	PageNum      int
	PatternType  string
	Timestamp    time.Time
}

// PatternHint is the suggestion served on the query path. Pass it back to
// LearnFromPage as the prior hint once the page has been extracted.
type PatternHint struct {
	PatternID        uuid.UUID
	PatternType      string
	SuggestedEngine  string
	SuggestedBBox    *BBox
	Confidence       float32 // similarity score, [0,1]
	Reliability      float32
	ObservationCount int
	ShouldUse        bool
}

// LearnOutcome reports which state-machine branch a learn call took.
type LearnOutcome struct {
	PatternID   uuid.UUID
	Transition  string
	Reliability float32
}

// EngineStats is the per-engine quality rollup over all learned patterns.
type EngineStats struct {
	Engine            string
	TotalPatterns     int
	AvgReliability    float32
	TotalObservations int
	DeprecatedCount   int
	ReliabilityScore  float32
}
