// Package pipeline drives one ingestion run end to end: lease acquisition,
// paging new channel messages past the checkpoint, parsing, reconciling,
// and checkpoint advancement, with run-level retry on transient failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/showpipe/internal/kv"
	"horse.fit/showpipe/internal/parser"
	"horse.fit/showpipe/internal/reconcile"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusCompleted: the run processed its page and released the lease.
	StatusCompleted Status = "completed"
	// StatusSkipped: another run holds the lease; nothing was done.
	StatusSkipped Status = "skipped"
	// StatusFailed: all attempts exhausted; the lease was still released.
	StatusFailed Status = "failed"
)

// Source lists new channel messages past a sequence checkpoint.
type Source interface {
	ListNewMessages(ctx context.Context, channelID string, afterSequence int64, limit int) ([]parser.Message, error)
}

// Lease is a held run lock; Release is safe to call after expiry.
type Lease interface {
	Release(ctx context.Context) error
	Token() string
}

// Locker hands out the run-scoped mutual-exclusion lease. Acquisition is
// non-blocking; contention surfaces as kv.ErrLeaseHeld.
type Locker interface {
	AcquireLease(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Checkpoints reads and advances the per-channel sequence checkpoint.
type Checkpoints interface {
	Checkpoint(ctx context.Context, channel string) (int64, error)
	SetCheckpoint(ctx context.Context, channel string, sequence int64) error
}

// Reconciler applies one parsed record to the store.
type Reconciler interface {
	Apply(ctx context.Context, record *parser.Record) (reconcile.Outcome, error)
}

type Options struct {
	PipelineName string
	ChannelID    string
	PageSize     int
	LockTTL      time.Duration
	RetryMin     time.Duration
	RetryMax     time.Duration
	MaxAttempts  int
}

// RunResult summarizes one run for logs and callers.
type RunResult struct {
	RunID      string
	Status     Status
	Attempts   int
	Fetched    int
	Created    int
	Added      int
	Duplicates int
	Unresolved int
	Rejected   int
}

type Coordinator struct {
	opts        Options
	source      Source
	locker      Locker
	checkpoints Checkpoints
	engine      Reconciler
	logger      zerolog.Logger

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewCoordinator(opts Options, src Source, locker Locker, checkpoints Checkpoints, engine Reconciler, logger zerolog.Logger) *Coordinator {
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = 60 * time.Second
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = 2 * opts.RetryMin
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}

	return &Coordinator{
		opts:        opts,
		source:      src,
		locker:      locker,
		checkpoints: checkpoints,
		engine:      engine,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Run executes one pipeline run. Lock contention is an expected outcome,
// not an error. Whatever happens, the lease is released before return.
func (c *Coordinator) Run(ctx context.Context) (RunResult, error) {
	result := RunResult{RunID: uuid.NewString()[:8]}
	logger := c.logger.With().Str("run_id", result.RunID).Logger()

	lease, err := c.locker.AcquireLease(ctx, c.opts.PipelineName, c.opts.LockTTL)
	if err != nil {
		if errors.Is(err, kv.ErrLeaseHeld) {
			logger.Info().Str("pipeline", c.opts.PipelineName).Msg("run lease held elsewhere, skipping")
			result.Status = StatusSkipped
			return result, nil
		}
		result.Status = StatusFailed
		return result, fmt.Errorf("acquire run lease: %w", err)
	}
	defer func() {
		// Release must survive caller cancellation or the lease leaks
		// until TTL expiry.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to release run lease")
		}
	}()

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := c.runOnce(ctx, logger, &result)
		if err == nil {
			result.Status = StatusCompleted
			logger.Info().
				Int("fetched", result.Fetched).
				Int("created", result.Created).
				Int("added", result.Added).
				Int("duplicates", result.Duplicates).
				Int("unresolved", result.Unresolved).
				Int("rejected", result.Rejected).
				Int("attempts", attempt).
				Msg("pipeline run completed")
			return result, nil
		}

		lastErr = err
		logger.Error().Err(err).Int("attempt", attempt).Msg("pipeline run attempt failed")

		if attempt == c.opts.MaxAttempts {
			break
		}
		delay := c.retryDelay()
		logger.Info().Dur("backoff", delay).Msg("retrying run after backoff")
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("backoff interrupted: %w", err)
			break
		}
	}

	result.Status = StatusFailed
	return result, lastErr
}

// runOnce processes a single page of new messages. The checkpoint is
// advanced per message, only after that message's effects are committed,
// so a crash re-processes at most the in-flight message.
func (c *Coordinator) runOnce(ctx context.Context, logger zerolog.Logger, result *RunResult) error {
	// Counters describe a single attempt; a retry starts them over so the
	// completion log does not inflate across attempts.
	result.Fetched, result.Created, result.Added = 0, 0, 0
	result.Duplicates, result.Unresolved, result.Rejected = 0, 0, 0

	after, err := c.checkpoints.Checkpoint(ctx, c.opts.ChannelID)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	messages, err := c.source.ListNewMessages(ctx, c.opts.ChannelID, after, c.opts.PageSize)
	if err != nil {
		return fmt.Errorf("list new messages: %w", err)
	}

	// Ascending order is a correctness requirement: it decides which
	// message looks like the first episode and triggers enrichment.
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Sequence < messages[j].Sequence
	})

	for _, msg := range messages {
		if msg.Sequence <= after {
			continue
		}
		result.Fetched++

		record, parseErr := parser.Parse(msg)
		if parseErr != nil {
			logger.Warn().Err(parseErr).Int64("sequence", msg.Sequence).Msg("message rejected by parser")
			result.Rejected++
			// A rejection has no store effects; the message still counts
			// as processed.
			if err := c.checkpoints.SetCheckpoint(ctx, c.opts.ChannelID, msg.Sequence); err != nil {
				return fmt.Errorf("advance checkpoint past rejected message: %w", err)
			}
			after = msg.Sequence
			continue
		}

		outcome, err := c.engine.Apply(ctx, record)
		if err != nil {
			return fmt.Errorf("reconcile message %d: %w", msg.Sequence, err)
		}
		switch outcome {
		case reconcile.OutcomeCreatedShow:
			result.Created++
		case reconcile.OutcomeAddedEpisode:
			result.Added++
		case reconcile.OutcomeDuplicate:
			result.Duplicates++
		case reconcile.OutcomeUnresolved:
			result.Unresolved++
		}

		if err := c.checkpoints.SetCheckpoint(ctx, c.opts.ChannelID, msg.Sequence); err != nil {
			return fmt.Errorf("advance checkpoint: %w", err)
		}
		after = msg.Sequence
	}

	return nil
}

// retryDelay picks a jittered backoff in [RetryMin, RetryMax].
func (c *Coordinator) retryDelay() time.Duration {
	spread := c.opts.RetryMax - c.opts.RetryMin
	if spread <= 0 {
		return c.opts.RetryMin
	}
	return c.opts.RetryMin + time.Duration(rand.Int63n(int64(spread)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
