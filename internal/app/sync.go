package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/showpipe/internal/catalog"
	"horse.fit/showpipe/internal/cli"
	"horse.fit/showpipe/internal/config"
	"horse.fit/showpipe/internal/db"
	"horse.fit/showpipe/internal/kv"
	"horse.fit/showpipe/internal/logging"
	"horse.fit/showpipe/internal/pipeline"
	"horse.fit/showpipe/internal/reconcile"
	"horse.fit/showpipe/internal/source"
)

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall run timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("sync failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	kvClient, err := kv.New(cfg.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("sync failed to connect to redis")
		fmt.Fprintf(os.Stderr, "Failed to connect to redis: %v\n", err)
		return 1
	}
	defer kvClient.Close()

	coordinator, err := buildCoordinator(cfg, logger, pool, kvClient)
	if err != nil {
		logger.Error().Err(err).Msg("sync setup failed")
		fmt.Fprintf(os.Stderr, "Failed to set up pipeline: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := coordinator.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Str("run_id", result.RunID).Msg("sync run failed")
		fmt.Fprintf(os.Stderr, "Sync run failed: %v\n", err)
		return 1
	}

	fmt.Printf("%s: fetched=%d created=%d added=%d duplicates=%d unresolved=%d rejected=%d\n",
		result.Status, result.Fetched, result.Created, result.Added,
		result.Duplicates, result.Unresolved, result.Rejected)
	return 0
}

// buildCoordinator wires the store, catalog client, source client, and
// redis-backed lock and checkpoint into one pipeline coordinator.
func buildCoordinator(cfg *config.Config, logger zerolog.Logger, pool *db.Pool, kvClient *kv.Client) (*pipeline.Coordinator, error) {
	store := db.NewStore(pool)

	catalogClient, err := catalog.New(catalog.Options{
		BaseURL:        cfg.CatalogBaseURL,
		ImageBaseURL:   cfg.CatalogImageBaseURL,
		APIKeys:        cfg.CatalogAPIKeyList(),
		Language:       cfg.CatalogLanguage,
		RatePerSecond:  cfg.CatalogRatePerSecond,
		MatchThreshold: cfg.CatalogMatchThreshold,
		CacheTTL:       cfg.ResolveCacheTTL,
	}, kvClient, logger)
	if err != nil {
		return nil, fmt.Errorf("build catalog client: %w", err)
	}

	engine := reconcile.NewEngine(store, catalogClient, logger)
	src := source.NewClient(cfg.TelegramAPIBase, cfg.TelegramBotToken, cfg.SourcePollTimeout, logger)

	return pipeline.NewCoordinator(pipeline.Options{
		PipelineName: cfg.PipelineName,
		ChannelID:    cfg.TelegramChannelID,
		PageSize:     cfg.SourcePageSize,
		LockTTL:      cfg.LockTTL,
		RetryMin:     cfg.RunRetryMin,
		RetryMax:     cfg.RunRetryMax,
		MaxAttempts:  cfg.RunMaxAttempts,
	}, src, pipeline.RedisLocker{Client: kvClient}, kvClient, engine, logger), nil
}
