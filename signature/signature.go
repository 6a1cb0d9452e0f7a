// Package signature computes page signatures for pattern matching.
//
// A signature is a fixed-length feature vector capturing the visual and
// structural characteristics of a page, enabling similarity matching
// against previously observed patterns. The cache itself treats signatures
// as opaque vectors; this package is the reference codec for pipelines that
// don't bring their own feature engineering.
//
// Feature vector components (each normalized to [0,1]):
//
//  1. Page dimensions ratio (width/height, capped at 2)
//  2. Text area ratio (safe bbox area / page area)
//  3. Character density (chars per safe-bbox square point, scaled)
//  4. Has tarja (lateral court stripe) as 0/1
//  5. Tarja position ratio (x cut / page width)
//  6. Complexity score
//  7. Recommended engine score
//  8. Needs cleaning as 0/1
//  9. Page kind (native text 0, rasterized 1)
//  10. Cleaning reasons count (capped at 5)
package signature

// Dimensions is the length of vectors produced by Compute.
const Dimensions = 10

// Page kinds.
const (
	KindNative = "native"
	KindRaster = "raster"
)

// Complexity classes, in increasing order of extraction difficulty.
const (
	ComplexityNativeClean         = "native_clean"
	ComplexityNativeWithArtifacts = "native_with_artifacts"
	ComplexityRasterClean         = "raster_clean"
	ComplexityRasterDirty         = "raster_dirty"
	ComplexityRasterDegraded      = "raster_degraded"
)

var complexityScores = map[string]float32{
	ComplexityNativeClean:         0.0,
	ComplexityNativeWithArtifacts: 0.25,
	ComplexityRasterClean:         0.5,
	ComplexityRasterDirty:         0.75,
	ComplexityRasterDegraded:      1.0,
}

var engineScores = map[string]float32{
	"native_text":      0.0,
	"ocr_fast":         0.4,
	"ocr_high_quality": 0.7,
	"llm_vision":       1.0,
}

// Page is the layout data a signature is computed from.
type Page struct {
	Kind      string     // KindNative or KindRaster
	SafeBBox  [4]float64 // [x0, y0, x1, y1] of the usable text region
	HasTarja  bool       // lateral stripe printed by some court systems
	CharCount int

	PageWidth  float64 // points; zero falls back to letter (612)
	PageHeight float64 // points; zero falls back to letter (792)

	TarjaXCut         float64 // x coordinate where the tarja begins; 0 if unknown
	Complexity        string  // one of the Complexity* constants; empty is inferred from Kind
	RecommendedEngine string  // engine name the layout pass suggested; empty means native_text
	NeedsCleaning     bool
	CleaningReasons   []string
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Compute produces the page's feature vector. Deterministic: the same page
// always yields the same vector, so structural hashes line up across runs.
func Compute(p Page) []float32 {
	width, height := p.PageWidth, p.PageHeight
	if width <= 0 {
		width = 612.0
	}
	if height <= 0 {
		height = 792.0
	}

	features := make([]float32, 0, Dimensions)

	// 1. Page dimensions ratio.
	dimRatio := width / height
	if dimRatio > 2.0 {
		dimRatio = 2.0
	}
	features = append(features, float32(dimRatio/2.0))

	// 2. Text area ratio.
	bboxArea := (p.SafeBBox[2] - p.SafeBBox[0]) * (p.SafeBBox[3] - p.SafeBBox[1])
	if bboxArea < 0 {
		bboxArea = 0
	}
	features = append(features, clamp01(float32(bboxArea/(width*height))))

	// 3. Character density. Typical density is 0.01-0.1 chars per square
	// point, so scale by 10 and cap.
	var density float32
	if bboxArea > 0 {
		density = clamp01(float32(float64(p.CharCount) / bboxArea * 10))
	}
	features = append(features, density)

	// 4. Has tarja.
	features = append(features, boolFeature(p.HasTarja))

	// 5. Tarja position ratio. Unknown cut on a tarja page defaults to 85%
	// of the width, where court systems usually print the stripe.
	var tarjaRatio float32
	switch {
	case p.TarjaXCut > 0:
		tarjaRatio = clamp01(float32(p.TarjaXCut / width))
	case p.HasTarja:
		tarjaRatio = 0.85
	}
	features = append(features, tarjaRatio)

	// 6. Complexity score.
	complexity := p.Complexity
	if complexity == "" {
		if p.Kind == KindNative {
			complexity = ComplexityNativeClean
		} else {
			complexity = ComplexityRasterDirty
		}
	}
	score, ok := complexityScores[complexity]
	if !ok {
		score = 0.5
	}
	features = append(features, score)

	// 7. Recommended engine score.
	engine := p.RecommendedEngine
	if engine == "" {
		engine = "native_text"
	}
	engineScore, ok := engineScores[engine]
	if !ok {
		engineScore = 0.5
	}
	features = append(features, engineScore)

	// 8. Needs cleaning.
	features = append(features, boolFeature(p.NeedsCleaning))

	// 9. Page kind.
	features = append(features, boolFeature(p.Kind != KindNative))

	// 10. Cleaning reasons count, capped at 5.
	reasons := float32(len(p.CleaningReasons)) / 5.0
	features = append(features, clamp01(reasons))

	return features
}

func boolFeature(b bool) float32 {
	if b {
		return 1.0
	}
	return 0.0
}
