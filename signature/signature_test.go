package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDimensions(t *testing.T) {
	features := Compute(Page{})
	assert.Len(t, features, Dimensions)
}

func TestComputeDeterministic(t *testing.T) {
	page := Page{
		Kind:            KindRaster,
		SafeBBox:        [4]float64{36, 50, 520, 742},
		HasTarja:        true,
		CharCount:       1800,
		TarjaXCut:       520,
		Complexity:      ComplexityRasterDirty,
		NeedsCleaning:   true,
		CleaningReasons: []string{"tarja", "stamp"},
	}
	assert.Equal(t, Compute(page), Compute(page))
}

func TestComputeAllFeaturesInRange(t *testing.T) {
	pages := []Page{
		{},
		{Kind: KindNative, SafeBBox: [4]float64{0, 0, 612, 792}, CharCount: 5000},
		{Kind: KindRaster, SafeBBox: [4]float64{36, 50, 520, 742}, HasTarja: true, CharCount: 100000},
		{PageWidth: 2000, PageHeight: 100, SafeBBox: [4]float64{0, 0, 2000, 100}},
		{SafeBBox: [4]float64{500, 500, 100, 100}}, // inverted bbox
		{CleaningReasons: []string{"a", "b", "c", "d", "e", "f", "g"}},
	}
	for _, page := range pages {
		features := Compute(page)
		require.Len(t, features, Dimensions)
		for i, f := range features {
			assert.GreaterOrEqual(t, f, float32(0), "feature %d", i)
			assert.LessOrEqual(t, f, float32(1), "feature %d", i)
		}
	}
}

func TestComputeDefaultsToLetterSize(t *testing.T) {
	implicit := Compute(Page{SafeBBox: [4]float64{0, 0, 612, 792}, CharCount: 2000})
	explicit := Compute(Page{PageWidth: 612, PageHeight: 792, SafeBBox: [4]float64{0, 0, 612, 792}, CharCount: 2000})
	assert.Equal(t, explicit, implicit)
}

func TestComputeDimensionRatioCapped(t *testing.T) {
	wide := Compute(Page{PageWidth: 5000, PageHeight: 100})
	assert.Equal(t, float32(1.0), wide[0], "ratio caps at 2, normalized to 1")

	letter := Compute(Page{})
	assert.InDelta(t, 612.0/792.0/2.0, letter[0], 1e-5)
}

func TestComputeTextAreaRatio(t *testing.T) {
	full := Compute(Page{SafeBBox: [4]float64{0, 0, 612, 792}})
	assert.InDelta(t, 1.0, full[1], 1e-5)

	half := Compute(Page{SafeBBox: [4]float64{0, 0, 612, 396}})
	assert.InDelta(t, 0.5, half[1], 1e-5)

	inverted := Compute(Page{SafeBBox: [4]float64{612, 0, 0, 792}})
	assert.Equal(t, float32(0), inverted[1], "degenerate bbox reads as no text area")
}

func TestComputeTarjaFeatures(t *testing.T) {
	none := Compute(Page{})
	assert.Equal(t, float32(0), none[3])
	assert.Equal(t, float32(0), none[4])

	known := Compute(Page{HasTarja: true, TarjaXCut: 306})
	assert.Equal(t, float32(1), known[3])
	assert.InDelta(t, 0.5, known[4], 1e-5)

	unknown := Compute(Page{HasTarja: true})
	assert.Equal(t, float32(1), unknown[3])
	assert.InDelta(t, 0.85, unknown[4], 1e-5, "unknown cut defaults to the usual stripe position")
}

func TestComputeComplexityInferredFromKind(t *testing.T) {
	native := Compute(Page{Kind: KindNative})
	assert.Equal(t, complexityScores[ComplexityNativeClean], native[5])

	raster := Compute(Page{Kind: KindRaster})
	assert.Equal(t, complexityScores[ComplexityRasterDirty], raster[5])

	explicit := Compute(Page{Kind: KindRaster, Complexity: ComplexityRasterDegraded})
	assert.Equal(t, float32(1.0), explicit[5])

	unrecognized := Compute(Page{Complexity: "handwritten"})
	assert.Equal(t, float32(0.5), unrecognized[5], "unknown classes land mid-scale")
}

func TestComputeEngineScore(t *testing.T) {
	assert.Equal(t, float32(0), Compute(Page{})[6], "empty defaults to native_text")
	assert.Equal(t, float32(1.0), Compute(Page{RecommendedEngine: "llm_vision"})[6])
	assert.Equal(t, float32(0.5), Compute(Page{RecommendedEngine: "abbyy"})[6])
}

func TestComputePageKindFlag(t *testing.T) {
	assert.Equal(t, float32(0), Compute(Page{Kind: KindNative})[8])
	assert.Equal(t, float32(1), Compute(Page{Kind: KindRaster})[8])
}

func TestComputeCleaningReasonsCapped(t *testing.T) {
	two := Compute(Page{CleaningReasons: []string{"tarja", "stamp"}})
	assert.InDelta(t, 0.4, two[9], 1e-5)

	many := Compute(Page{CleaningReasons: make([]string, 12)})
	assert.Equal(t, float32(1.0), many[9])
}
