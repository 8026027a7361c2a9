package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultReapGrace is how long an ended slot is kept before the reap may
// remove it. The grace window keeps very recent history queryable.
const DefaultReapGrace = 24 * time.Hour

// DefaultReapBatch bounds the rows deleted per reap pass.
const DefaultReapBatch = 500

// ReapDB provides the delete statement the slot reap needs.
type ReapDB interface {
	// DeleteSlotsEndedBefore removes up to limit slots whose end_at fell
	// before the cutoff. Bookings cascade with their slot.
	//
	// SQL: DELETE FROM slots WHERE id IN (
	//        SELECT id FROM slots WHERE end_at < $1
	//        ORDER BY end_at ASC LIMIT $2)
	DeleteSlotsEndedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// reaperService removes slots that ended before now minus the grace
// window, in bounded batches. Deleting the slot cascades to its bookings,
// so the reap is the platform's retention boundary for booking history.
type reaperService struct {
	db     ReapDB
	grace  time.Duration
	batch  int
	logger *slog.Logger
}

// NewReaperService creates the past-slot reaper. Zero grace or batch
// values fall back to the defaults.
func NewReaperService(db ReapDB, grace time.Duration, batch int, logger *slog.Logger) *reaperService {
	if grace <= 0 {
		grace = DefaultReapGrace
	}
	if batch <= 0 {
		batch = DefaultReapBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &reaperService{db: db, grace: grace, batch: batch, logger: logger}
}

// ReapPastSlots deletes ended slots in batches until a pass comes back
// short, meaning the backlog is drained. Each batch is its own statement,
// so an interrupted run leaves the table consistent and the next run picks
// up where this one stopped.
func (r *reaperService) ReapPastSlots(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-r.grace)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("reap interrupted: %w", err)
		}

		deleted, err := r.db.DeleteSlotsEndedBefore(ctx, cutoff, r.batch)
		if err != nil {
			return total, fmt.Errorf("deleting ended slots: %w", err)
		}
		total += int(deleted)
		if deleted < int64(r.batch) {
			break
		}
	}

	if total > 0 {
		r.logger.InfoContext(ctx, "reaped past slots",
			"deleted", total,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	return total, nil
}
