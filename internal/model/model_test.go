package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineTierOrdering(t *testing.T) {
	ordered := []EngineType{EngineNativeText, EngineOCRFast, EngineOCRHighQuality, EngineLLMVision}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Tier(), ordered[i-1].Tier(),
			"%s should outrank %s", ordered[i], ordered[i-1])
	}
}

func TestEngineTierUnknown(t *testing.T) {
	assert.Equal(t, 0, EngineType("tesseract").Tier())
	assert.Equal(t, 0, EngineType("").Tier())
	assert.False(t, EngineType("tesseract").Valid())
	assert.True(t, EngineOCRFast.Valid())
}

func TestSignatureHashDeterministic(t *testing.T) {
	features := []float32{0.1, 0.2, 0.3, 0.4}

	h1 := SignatureHash(features)
	h2 := SignatureHash([]float32{0.1, 0.2, 0.3, 0.4})
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex sha256

	h3 := SignatureHash([]float32{0.1, 0.2, 0.3, 0.40001})
	assert.NotEqual(t, h1, h3)
}

func TestNewSignatureVector(t *testing.T) {
	features := []float32{1, 0, 0.5}
	sig := NewSignatureVector(features)

	assert.Equal(t, features, sig.Features.Slice())
	assert.Equal(t, SignatureHash(features), sig.Hash)
	assert.Equal(t, 3, sig.Dims())
}

func TestCheckDimensions(t *testing.T) {
	require.NoError(t, CheckDimensions([]float32{1, 2, 3}, 3))

	err := CheckDimensions([]float32{1, 2}, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = CheckDimensions(nil, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestObservationResultValidate(t *testing.T) {
	valid := ObservationResult{EngineUsed: EngineOCRFast, Success: true, QualityScore: 0.9}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		result ObservationResult
	}{
		{"unknown engine", ObservationResult{EngineUsed: "abbyy", QualityScore: 0.5}},
		{"empty engine", ObservationResult{QualityScore: 0.5}},
		{"quality above one", ObservationResult{EngineUsed: EngineOCRFast, QualityScore: 1.5}},
		{"negative quality", ObservationResult{EngineUsed: EngineOCRFast, QualityScore: -0.1}},
		{"negative page", ObservationResult{EngineUsed: EngineOCRFast, QualityScore: 0.5, PageNum: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.result.Validate())
		})
	}
}

func TestEngineStatsReliabilityScore(t *testing.T) {
	t.Run("no patterns", func(t *testing.T) {
		assert.Zero(t, EngineStats{}.ReliabilityScore())
	})

	t.Run("no deprecations", func(t *testing.T) {
		s := EngineStats{TotalPatterns: 10, AvgReliability: 0.8}
		assert.InDelta(t, 0.8*0.7+0.3, s.ReliabilityScore(), 1e-6)
	})

	t.Run("half deprecated", func(t *testing.T) {
		s := EngineStats{TotalPatterns: 10, AvgReliability: 0.6, DeprecatedCount: 5}
		assert.InDelta(t, 0.6*0.7+0.5*0.3, s.ReliabilityScore(), 1e-6)
	})

	t.Run("all deprecated", func(t *testing.T) {
		s := EngineStats{TotalPatterns: 4, AvgReliability: 0.1, DeprecatedCount: 4}
		assert.InDelta(t, 0.1*0.7, s.ReliabilityScore(), 1e-6)
	})
}
