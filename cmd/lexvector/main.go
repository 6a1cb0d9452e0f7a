package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	lexvector "github.com/PedroGiudice/lex-vector-sub003"
	"github.com/PedroGiudice/lex-vector-sub003/internal/config"
	"github.com/PedroGiudice/lex-vector-sub003/internal/storage"
	"github.com/PedroGiudice/lex-vector-sub003/internal/telemetry"
	"github.com/PedroGiudice/lex-vector-sub003/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

const usage = `usage: lexvector <command> [args]

commands:
  migrate              apply pending schema migrations
  stats                print per-engine reliability rollup as JSON
  patterns <caso-id>   print active/deprecated pattern counts for a caso
`

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("LEXVECTOR_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	switch os.Args[1] {
	case "migrate":
		return runMigrate(ctx, cfg, logger)
	case "stats":
		return runStats(ctx)
	case "patterns":
		if len(os.Args) < 3 {
			return fmt.Errorf("patterns: missing caso id")
		}
		return runPatterns(ctx, os.Args[2])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func runMigrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migrate: DATABASE_URL is required")
	}

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() { _ = db.Close(ctx) }()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("migrations applied", "version", version)
	return nil
}

func runStats(ctx context.Context) error {
	cache, err := lexvector.New(ctx)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = cache.Close(ctx) }()

	stats, err := cache.EngineStats(ctx)
	if err != nil {
		return fmt.Errorf("engine stats: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func runPatterns(ctx context.Context, rawID string) error {
	casoID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("patterns: invalid caso id %q: %w", rawID, err)
	}

	cache, err := lexvector.New(ctx)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = cache.Close(ctx) }()

	active, err := cache.PatternCount(ctx, casoID, false)
	if err != nil {
		return fmt.Errorf("patterns: %w", err)
	}
	deprecated, err := cache.PatternCount(ctx, casoID, true)
	if err != nil {
		return fmt.Errorf("patterns: %w", err)
	}
	observations, err := cache.ObservationCount(ctx, casoID)
	if err != nil {
		return fmt.Errorf("patterns: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]int{
		"active":       active,
		"deprecated":   deprecated,
		"observations": observations,
	})
}
