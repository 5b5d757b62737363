package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"horse.fit/showpipe/internal/cli"
	"horse.fit/showpipe/internal/config"
	"horse.fit/showpipe/internal/db"
	"horse.fit/showpipe/internal/kv"
	"horse.fit/showpipe/internal/logging"
)

func runSchedule(args []string) int {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	cronExpr := fs.String("cron", "", "Cron expression (overrides SCHEDULE_CRON)")
	runTimeout := fs.Duration("run-timeout", 10*time.Minute, "Timeout per scheduled run")

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

	schedule := cfg.ScheduleCron
	if *cronExpr != "" {
		schedule = *cronExpr
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid cron expression %q: %v\n", schedule, err)
		return 2
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
		logger.Error().Err(err).Msg("schedule failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	kvClient, err := kv.New(cfg.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("schedule failed to connect to redis")
		fmt.Fprintf(os.Stderr, "Failed to connect to redis: %v\n", err)
		return 1
	}
	defer kvClient.Close()

	coordinator, err := buildCoordinator(cfg, logger, pool, kvClient)
	if err != nil {
		logger.Error().Err(err).Msg("schedule setup failed")
		fmt.Fprintf(os.Stderr, "Failed to set up pipeline: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	runJob := func() {
		runCtx, runCancel := context.WithTimeout(ctx, *runTimeout)
		defer runCancel()

		result, err := coordinator.Run(runCtx)
		if err != nil {
			logger.Error().Err(err).Str("run_id", result.RunID).Msg("scheduled run failed")
			return
		}
		logger.Info().
			Str("run_id", result.RunID).
			Str("status", string(result.Status)).
			Int("fetched", result.Fetched).
			Msg("scheduled run finished")
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, runJob); err != nil {
		logger.Error().Err(err).Str("cron", schedule).Msg("cron registration failed")
		fmt.Fprintf(os.Stderr, "Failed to register schedule: %v\n", err)
		return 1
	}

	logger.Info().Str("cron", schedule).Msg("scheduler started")
	scheduler.Start()

	<-ctx.Done()

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(*runTimeout):
		logger.Warn().Msg("scheduler stop timed out with a run still in flight")
	}

	logger.Info().Msg("scheduler stopped")
	return 0
}
