package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
	"github.com/PedroGiudice/lex-vector-sub003/internal/search"
	"github.com/PedroGiudice/lex-vector-sub003/internal/sqlite"
	"github.com/PedroGiudice/lex-vector-sub003/internal/storage"
	"github.com/PedroGiudice/lex-vector-sub003/internal/testutil"
)

const testDims = 3

func testConfig() Config {
	return Config{
		Dimensions:          testDims,
		SimilarityThreshold: 0.85,
		ReliabilityFloor:    0.3,
		MaxCandidates:       50,
	}
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:", testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

func newTestCaso(t *testing.T, st *sqlite.Store) model.Caso {
	t.Helper()
	caso, err := st.GetOrCreateCaso(context.Background(), "0000001-12.2024.5.01.0001", "pje")
	require.NoError(t, err)
	return caso
}

func insertPattern(t *testing.T, st *sqlite.Store, casoID uuid.UUID, features []float32, engine model.EngineType, reliability float32) model.PatternRecord {
	t.Helper()
	rec := model.PatternRecord{
		CasoID:           casoID,
		Signature:        model.NewSignatureVector(features),
		PatternType:      model.PatternTextBlock,
		SuggestedEngine:  engine,
		Reliability:      reliability,
		ObservationCount: 1,
	}
	obs := model.Observation{
		CasoID: casoID,
		Result: model.ObservationResult{EngineUsed: engine, Success: true, QualityScore: reliability},
	}
	created, err := st.CreatePattern(context.Background(), rec, obs)
	require.NoError(t, err)
	return created
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"parallel scaled", []float32{1, 0, 0}, []float32{5, 0, 0}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"zero left", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"zero right", []float32{1, 2, 3}, []float32{0, 0, 0}, 0},
		{"both zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosineSymmetric(t *testing.T) {
	a := []float32{0.3, 0.7, 0.1}
	b := []float32{0.9, 0.2, 0.5}
	assert.InDelta(t, Cosine(a, b), Cosine(b, a), 1e-12)
}

func TestFindSimilarPatternDimensionMismatch(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	_, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector([]float32{1, 0}))
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
}

func TestFindSimilarPatternCasoNotFound(t *testing.T) {
	st := newTestStore(t)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	_, err := m.FindSimilarPattern(context.Background(), uuid.New(), model.NewSignatureVector([]float32{1, 0, 0}))
	assert.ErrorIs(t, err, storage.ErrCasoNotFound)
}

func TestFindSimilarPatternColdStart(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector([]float32{1, 0, 0}))
	require.NoError(t, err)
	assert.Nil(t, hint, "no patterns learned yet: nil hint, no error")
}

func TestFindSimilarPatternExactMatch(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	features := []float32{0.5, 0.3, 0.8}
	rec := insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.9)

	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(features))
	require.NoError(t, err)
	require.NotNil(t, hint)
	assert.Equal(t, rec.ID, hint.PatternID)
	assert.Equal(t, model.EngineOCRFast, hint.SuggestedEngine)
	assert.Equal(t, float32(1.0), hint.Confidence, "identical structural hash scores exactly 1")
	assert.True(t, hint.ShouldUse)
}

func TestFindSimilarPatternThresholdInclusive(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)

	cfg := testConfig()
	cfg.SimilarityThreshold = 1.0 // only a perfect score survives
	m := New(st, nil, cfg, testutil.TestLogger())

	features := []float32{1, 0, 0}
	insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.9)

	// Identical vector: score == threshold, must be included.
	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(features))
	require.NoError(t, err)
	assert.NotNil(t, hint)

	// Slightly different vector: score < threshold, must be excluded.
	hint, err = m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector([]float32{1, 0.1, 0}))
	require.NoError(t, err)
	assert.Nil(t, hint)
}

func TestFindSimilarPatternBelowThreshold(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	insertPattern(t, st, caso.ID, []float32{1, 0, 0}, model.EngineOCRFast, 0.9)

	// Orthogonal query: similarity 0, far under 0.85.
	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector([]float32{0, 1, 0}))
	require.NoError(t, err)
	assert.Nil(t, hint)
}

func TestFindSimilarPatternZeroVectorNeverMatches(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	zero := []float32{0, 0, 0}
	insertPattern(t, st, caso.ID, zero, model.EngineOCRFast, 0.9)

	// Equal structural hash notwithstanding, a zero query scores 0 against
	// everything and must not be served.
	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(zero))
	require.NoError(t, err)
	assert.Nil(t, hint)

	// A zero stored signature is equally unreachable from a nonzero query.
	hint, err = m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector([]float32{1, 0, 0}))
	require.NoError(t, err)
	assert.Nil(t, hint)
}

func TestFindSimilarPatternSkipsDeprecated(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	features := []float32{1, 0, 0}
	rec := insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.9)

	rec.Deprecated = true
	obs := model.Observation{
		CasoID:    caso.ID,
		PatternID: &rec.ID,
		Result:    model.ObservationResult{EngineUsed: model.EngineOCRFast, Success: false, QualityScore: 0},
	}
	require.NoError(t, st.UpdatePattern(context.Background(), rec, obs))

	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(features))
	require.NoError(t, err)
	assert.Nil(t, hint, "deprecated patterns never serve hints")
}

func TestFindSimilarPatternLowReliabilityNotShouldUse(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	features := []float32{1, 0, 0}
	insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.25) // below the 0.3 floor

	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(features))
	require.NoError(t, err)
	require.NotNil(t, hint, "the hint is still served; the caller decides")
	assert.False(t, hint.ShouldUse)
}

func TestFindCandidatesOrdering(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)

	cfg := testConfig()
	cfg.SimilarityThreshold = 0.5
	m := New(st, nil, cfg, testutil.TestLogger())

	query := []float32{1, 0, 0}
	exact := insertPattern(t, st, caso.ID, query, model.EngineOCRFast, 0.5)
	near := insertPattern(t, st, caso.ID, []float32{1, 0.3, 0}, model.EngineLLMVision, 0.9)

	candidates, err := m.FindCandidates(context.Background(), caso.ID, model.NewSignatureVector(query))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, exact.ID, candidates[0].Record.ID, "higher similarity wins regardless of reliability")
	assert.Equal(t, near.ID, candidates[1].Record.ID)
}

func TestFindCandidatesTieBrokenByReliability(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	features := []float32{1, 0, 0}
	weak := insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.4)
	strong := insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.95)

	candidates, err := m.FindCandidates(context.Background(), caso.ID, model.NewSignatureVector(features))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, strong.ID, candidates[0].Record.ID)
	assert.Equal(t, weak.ID, candidates[1].Record.ID)
}

// fakeIndex is a scripted search.Index for exercising the hydration path.
type fakeIndex struct {
	results   []search.Result
	err       error
	healthErr error
	findCalls int
}

func (f *fakeIndex) FindSimilar(ctx context.Context, casoID uuid.UUID, features []float32, limit int) ([]search.Result, error) {
	f.findCalls++
	return f.results, f.err
}
func (f *fakeIndex) Upsert(ctx context.Context, p search.Point) error { return nil }
func (f *fakeIndex) Delete(ctx context.Context, id uuid.UUID) error   { return nil }
func (f *fakeIndex) Healthy(ctx context.Context) error                { return f.healthErr }

func TestIndexResultsHydratedFromStore(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)

	features := []float32{1, 0, 0}
	rec := insertPattern(t, st, caso.ID, features, model.EngineOCRHighQuality, 0.8)

	idx := &fakeIndex{results: []search.Result{
		{PatternID: rec.ID, Score: 0.99},
		{PatternID: uuid.New(), Score: 0.95}, // stale: not in the store, must be skipped
	}}
	m := New(st, idx, testConfig(), testutil.TestLogger())

	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(features))
	require.NoError(t, err)
	require.NotNil(t, hint)
	assert.Equal(t, rec.ID, hint.PatternID)
	assert.Equal(t, float32(1.0), hint.Confidence, "score is recomputed exactly, not taken from the index")
}

func TestIndexFailureFallsBackToFullScan(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)

	features := []float32{1, 0, 0}
	rec := insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.9)

	idx := &fakeIndex{err: errors.New("connection refused")}
	m := New(st, idx, testConfig(), testutil.TestLogger())

	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(features))
	require.NoError(t, err)
	require.NotNil(t, hint)
	assert.Equal(t, rec.ID, hint.PatternID)
}

func TestUnhealthyIndexFallsBackToFullScan(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)

	features := []float32{1, 0, 0}
	rec := insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.9)

	idx := &fakeIndex{healthErr: errors.New("deadline exceeded")}
	m := New(st, idx, testConfig(), testutil.TestLogger())

	hint, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(features))
	require.NoError(t, err)
	require.NotNil(t, hint)
	assert.Equal(t, rec.ID, hint.PatternID)
	assert.Zero(t, idx.findCalls, "an unhealthy index is never queried")
}

func TestReadPathDoesNotMutate(t *testing.T) {
	st := newTestStore(t)
	caso := newTestCaso(t, st)
	m := New(st, nil, testConfig(), testutil.TestLogger())

	features := []float32{1, 0, 0}
	rec := insertPattern(t, st, caso.ID, features, model.EngineOCRFast, 0.9)

	before, err := st.GetPattern(context.Background(), rec.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := m.FindSimilarPattern(context.Background(), caso.ID, model.NewSignatureVector(features))
		require.NoError(t, err)
	}

	after, err := st.GetPattern(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ObservationCount, after.ObservationCount)
	assert.Equal(t, before.Reliability, after.Reliability)
	assert.WithinDuration(t, before.LastUsedAt, after.LastUsedAt, time.Millisecond)
}
