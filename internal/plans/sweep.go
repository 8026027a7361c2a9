package plans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"slotbook/internal/types"
)

// SweepDB provides the single statement the subscription sweep needs.
type SweepDB interface {
	// SweepExpired downgrades every organization whose expires_at has
	// passed to the free plan and marks the subscription expired. The
	// statement clears expires_at, so re-running it is a no-op.
	//
	// SQL: UPDATE organizations
	//      SET plan = 'free', subscription_status = 'expired',
	//          expires_at = NULL, updated_at = NOW()
	//      WHERE expires_at IS NOT NULL AND expires_at < $1
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// sweepService downgrades lapsed subscriptions. It runs from the
// maintenance worker on a fixed interval; correctness does not depend on
// the interval because the sweep is idempotent and the guard reads the
// plan column live.
type sweepService struct {
	db     SweepDB
	logger *slog.Logger
}

// NewSweepService creates a subscription sweep service.
func NewSweepService(db SweepDB, logger *slog.Logger) *sweepService {
	if logger == nil {
		logger = slog.Default()
	}
	return &sweepService{db: db, logger: logger}
}

// SweepExpiredSubscriptions downgrades all organizations whose paid
// subscription lapsed before now. Returns the number of organizations
// downgraded.
func (s *sweepService) SweepExpiredSubscriptions(ctx context.Context, now time.Time) (int, error) {
	downgraded, err := s.db.SweepExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired subscriptions: %w", err)
	}

	if downgraded > 0 {
		s.logger.InfoContext(ctx, "downgraded expired subscriptions",
			"count", downgraded,
			"target_plan", string(types.PlanFree),
			"reference_time", now.Format(time.RFC3339),
		)
	}
	return int(downgraded), nil
}
