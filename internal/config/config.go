// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all tunables of the pattern cache. The decay constants and
// thresholds are deployment configuration, not contracts — see the matcher
// and learner packages for how they are applied.
type Config struct {
	// Database settings.
	DatabaseURL string // Postgres DSN; leave empty to run on the embedded SQLite store.
	SQLitePath  string // Path for the embedded store when DatabaseURL is empty.

	// Signature settings.
	Dimensions int // Fixed vector dimensionality; every query and learn call is checked against it.

	// Matching settings.
	SimilarityThreshold float64 // Minimum cosine similarity for a candidate to survive.
	ReliabilityFloor    float64 // Below this a pattern is not worth using, and may be deprecated.
	MaxCandidates       int     // Cap on candidates pulled from the ANN index, when one is configured.

	// Learning settings.
	DecayAlpha                    float64 // EMA weight on history; (1-alpha) weighs the new observation.
	MinObservationsForDeprecation int

	// Qdrant ANN index (optional — disabled if QdrantURL is empty).
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:                   envStr("DATABASE_URL", ""),
		SQLitePath:                    envStr("LEXVECTOR_SQLITE_PATH", "lexvector.db"),
		Dimensions:                    envInt("LEXVECTOR_DIMENSIONS", 10),
		SimilarityThreshold:           envFloat("LEXVECTOR_SIMILARITY_THRESHOLD", 0.85),
		ReliabilityFloor:              envFloat("LEXVECTOR_RELIABILITY_FLOOR", 0.3),
		MaxCandidates:                 envInt("LEXVECTOR_MAX_CANDIDATES", 50),
		DecayAlpha:                    envFloat("LEXVECTOR_DECAY_ALPHA", 0.7),
		MinObservationsForDeprecation: envInt("LEXVECTOR_MIN_OBSERVATIONS_FOR_DEPRECATION", 5),
		QdrantURL:                     envStr("QDRANT_URL", ""),
		QdrantAPIKey:                  envStr("QDRANT_API_KEY", ""),
		QdrantCollection:              envStr("QDRANT_COLLECTION", "lexvector_patterns"),
		OTELEndpoint:                  envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:                  envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:                   envStr("OTEL_SERVICE_NAME", "lexvector"),
		LogLevel:                      envStr("LEXVECTOR_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("config: LEXVECTOR_DIMENSIONS must be positive")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("config: LEXVECTOR_SIMILARITY_THRESHOLD must be in (0,1]")
	}
	if c.ReliabilityFloor < 0 || c.ReliabilityFloor > 1 {
		return fmt.Errorf("config: LEXVECTOR_RELIABILITY_FLOOR must be in [0,1]")
	}
	if c.DecayAlpha < 0 || c.DecayAlpha >= 1 {
		return fmt.Errorf("config: LEXVECTOR_DECAY_ALPHA must be in [0,1)")
	}
	if c.MinObservationsForDeprecation < 1 {
		return fmt.Errorf("config: LEXVECTOR_MIN_OBSERVATIONS_FOR_DEPRECATION must be at least 1")
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("config: LEXVECTOR_MAX_CANDIDATES must be positive")
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		return fmt.Errorf("config: either DATABASE_URL or LEXVECTOR_SQLITE_PATH is required")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
