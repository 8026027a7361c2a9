// Package main is the entry point for the slotbook maintenance worker.
//
// The worker runs two periodic jobs on the configured sweep interval:
//
//   - subscription sweep: downgrades organizations whose paid plan expired
//   - slot reap: deletes slots that ended more than the grace period ago,
//     cascading their bookings
//
// Multiple worker replicas may run concurrently; a database job lock ensures
// only one executes each job per tick. Every run is recorded in job history.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"slotbook/internal/config"
	"slotbook/internal/db"
	"slotbook/internal/plans"
	"slotbook/internal/scheduling"
)

const (
	jobSweep = "subscription_sweep"
	jobReap  = "slot_reap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	workerID := "maintenance-" + uuid.New().String()
	logger.Info("maintenance worker starting",
		"worker_id", workerID,
		"sweep_interval", cfg.Engine.SweepInterval.String(),
		"reap_grace", cfg.Engine.ReapGrace.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	orgRepo := db.NewOrganizationRepository(pool)
	slotRepo := db.NewSlotRepository(pool)
	svcRepo := db.NewServiceRepository(pool)
	bookingRepo := db.NewBookingRepository(pool)
	engineDB := db.NewEngineDBImpl(orgRepo, svcRepo, slotRepo, bookingRepo)
	locks := db.NewJobLockRepository(pool)
	history := db.NewJobHistoryRepository(pool)

	sweeper := plans.NewSweepService(orgRepo, logger)
	reaper := scheduling.NewReaperService(engineDB, cfg.Engine.ReapGrace, cfg.Engine.ReapBatch, logger)

	runner := &jobRunner{
		locks:    locks,
		history:  history,
		workerID: workerID,
		lockTTL:  cfg.Engine.JobLockTTL,
		logger:   logger,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop(ctx, cfg.Engine.SweepInterval, func(now time.Time) {
			runner.execute(ctx, jobSweep, func(ctx context.Context) (int, error) {
				return sweeper.SweepExpiredSubscriptions(ctx, now)
			})
		})
	})

	g.Go(func() error {
		return loop(ctx, cfg.Engine.SweepInterval, func(now time.Time) {
			runner.execute(ctx, jobReap, func(ctx context.Context) (int, error) {
				return reaper.ReapPastSlots(ctx, now)
			})
		})
	})

	err = g.Wait()
	logger.Info("maintenance worker stopped")
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// loop invokes fn once per interval until the context is cancelled. The
// first run happens immediately so a freshly deployed worker does not wait a
// full interval to catch up on overdue maintenance.
func loop(ctx context.Context, interval time.Duration, fn func(now time.Time)) error {
	fn(time.Now().UTC())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			fn(now.UTC())
		}
	}
}

// jobRunner wraps one maintenance job execution with the distributed lock
// and job history bookkeeping.
type jobRunner struct {
	locks    *db.JobLockRepository
	history  *db.JobHistoryRepository
	workerID string
	lockTTL  time.Duration
	logger   *slog.Logger
}

func (r *jobRunner) execute(ctx context.Context, jobType string, fn func(ctx context.Context) (int, error)) {
	acquired, err := r.locks.Acquire(ctx, jobType, r.workerID, r.lockTTL)
	if err != nil {
		r.logger.Error("job lock acquisition failed", "job", jobType, "error", err)
		return
	}
	if !acquired {
		r.logger.Debug("job lock held elsewhere, skipping", "job", jobType)
		return
	}

	historyID, err := r.history.Start(ctx, jobType)
	if err != nil {
		r.logger.Error("job history start failed", "job", jobType, "error", err)
		// Run the job anyway; history is observability, not a gate.
	}

	start := time.Now()
	items, jobErr := fn(ctx)
	duration := time.Since(start)

	status := "completed"
	if jobErr != nil {
		status = "failed"
		r.logger.Error("maintenance job failed",
			"job", jobType,
			"items", items,
			"duration", duration.String(),
			"error", jobErr,
		)
	} else {
		r.logger.Info("maintenance job completed",
			"job", jobType,
			"items", items,
			"duration", duration.String(),
		)
	}

	if historyID != 0 {
		if err := r.history.Finish(ctx, historyID, status, items, jobErr); err != nil {
			r.logger.Error("job history finish failed", "job", jobType, "error", err)
		}
	}
}
