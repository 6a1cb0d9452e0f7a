package lexvector

import "log/slog"

// Option configures a Cache.
type Option func(*resolvedOptions)

// resolvedOptions holds all knobs after applying env defaults and options.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger *slog.Logger

	databaseURL string
	sqlitePath  string

	dimensions          int
	similarityThreshold float64
	reliabilityFloor    float64
	maxCandidates       int

	decayAlpha                    float64
	minObservationsForDeprecation int

	qdrantURL        string
	qdrantAPIKey     string
	qdrantCollection string
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithDatabaseURL selects the Postgres backend, overriding DATABASE_URL.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithSQLitePath selects the embedded SQLite backend at path, overriding
// LEXVECTOR_SQLITE_PATH. Use ":memory:" for an in-process store. Ignored
// when a database URL is set.
func WithSQLitePath(path string) Option {
	return func(o *resolvedOptions) {
		o.sqlitePath = path
		o.databaseURL = ""
	}
}

// WithDimensions fixes the signature dimensionality d. Every query and
// learn call is validated against it.
func WithDimensions(d int) Option {
	return func(o *resolvedOptions) { o.dimensions = d }
}

// WithSimilarityThreshold overrides the minimum cosine similarity for a
// candidate to survive (default 0.85).
func WithSimilarityThreshold(t float64) Option {
	return func(o *resolvedOptions) { o.similarityThreshold = t }
}

// WithReliabilityFloor overrides the reliability below which a pattern is
// not suggested for use and may be deprecated (default 0.3).
func WithReliabilityFloor(f float64) Option {
	return func(o *resolvedOptions) { o.reliabilityFloor = f }
}

// WithDecayAlpha overrides the EMA weight on reliability history
// (default 0.7).
func WithDecayAlpha(a float64) Option {
	return func(o *resolvedOptions) { o.decayAlpha = a }
}

// WithMinObservationsForDeprecation overrides how many observations a
// pattern needs before failures can deprecate it (default 5).
func WithMinObservationsForDeprecation(n int) Option {
	return func(o *resolvedOptions) { o.minObservationsForDeprecation = n }
}

// WithQdrant enables the ANN candidate index, overriding QDRANT_URL,
// QDRANT_API_KEY, and QDRANT_COLLECTION.
func WithQdrant(url, apiKey, collection string) Option {
	return func(o *resolvedOptions) {
		o.qdrantURL = url
		o.qdrantAPIKey = apiKey
		o.qdrantCollection = collection
	}
}
