package plans

import (
	"context"
	"log/slog"
	"time"

	"slotbook/internal/types"
)

// OrgLookup resolves the plan tier for an organization.
type OrgLookup interface {
	// GetPlan returns the plan tier for the given organization.
	//
	// SQL: SELECT plan FROM organizations
	//      WHERE id = $1 AND disabled_at IS NULL
	GetPlan(ctx context.Context, orgID string) (types.PlanTier, error)
}

// UsageDB provides the current-usage counts the guard compares against
// plan limits. Counts are always read live; the guard holds no state.
type UsageDB interface {
	// CountActiveServices returns the organization's active service count.
	//
	// SQL: SELECT COUNT(*) FROM services
	//      WHERE organization_id = $1 AND active = TRUE
	CountActiveServices(ctx context.Context, orgID string) (int, error)

	// CountBookingsCreatedSince counts bookings created at or after the
	// period start, regardless of current status.
	//
	// SQL: SELECT COUNT(*) FROM bookings
	//      WHERE organization_id = $1 AND created_at >= $2
	CountBookingsCreatedSince(ctx context.Context, orgID string, periodStart time.Time) (int, error)

	// CountOrganizationsByOwner counts the active organizations an
	// account owns.
	//
	// SQL: SELECT COUNT(*) FROM organizations
	//      WHERE owner_id = $1 AND disabled_at IS NULL
	CountOrganizationsByOwner(ctx context.Context, ownerID string) (int, error)
}

// Guard enforces plan limits before resource creation. Checks run outside
// the booking transaction; the count-then-insert window is accepted because
// limit enforcement is a business control, not a capacity invariant.
type Guard struct {
	registry Registry
	orgs     OrgLookup
	usage    UsageDB
	logger   *slog.Logger
}

// NewGuard creates a plan guard backed by the given registry and usage
// source.
func NewGuard(registry Registry, orgs OrgLookup, usage UsageDB, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		registry: registry,
		orgs:     orgs,
		usage:    usage,
		logger:   logger,
	}
}

// PeriodStart returns the start of the booking quota period containing the
// given instant: the first moment of its UTC calendar month.
func PeriodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CheckServiceCreate verifies the organization can create one more active
// service without exceeding its plan's service cap.
func (g *Guard) CheckServiceCreate(ctx context.Context, orgID string) error {
	plan, err := g.orgs.GetPlan(ctx, orgID)
	if err != nil {
		return err
	}
	limits := g.registry.GetLimits(plan)

	limit := limits.MaxServices
	if limit.IsUnlimited() {
		return nil
	}

	current, err := g.usage.CountActiveServices(ctx, orgID)
	if err != nil {
		return err
	}
	if !limit.Allows(current) {
		return limitExceeded("service limit exceeded for current plan", plan, current, limit)
	}
	return nil
}

// CheckBookingCreate verifies the organization can record one more booking
// in the quota period containing now.
func (g *Guard) CheckBookingCreate(ctx context.Context, orgID string, now time.Time) error {
	plan, err := g.orgs.GetPlan(ctx, orgID)
	if err != nil {
		return err
	}
	limits := g.registry.GetLimits(plan)

	limit := limits.MaxBookingsPerPeriod
	if limit.IsUnlimited() {
		return nil
	}

	current, err := g.usage.CountBookingsCreatedSince(ctx, orgID, PeriodStart(now))
	if err != nil {
		return err
	}
	if !limit.Allows(current) {
		return limitExceeded("booking limit exceeded for current period", plan, current, limit)
	}
	return nil
}

// CheckOrganizationCreate verifies the owner can create one more
// organization under the tier the new organization will start on.
func (g *Guard) CheckOrganizationCreate(ctx context.Context, ownerID string, tier types.PlanTier) error {
	limits := g.registry.GetLimits(tier)

	limit := limits.MaxOrganizations
	if limit.IsUnlimited() {
		return nil
	}

	current, err := g.usage.CountOrganizationsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if !limit.Allows(current) {
		return limitExceeded("organization limit exceeded for plan", tier, current, limit)
	}
	return nil
}

func limitExceeded(msg string, plan types.PlanTier, current int, limit types.Limit) error {
	max, _ := limit.Value()
	return types.NewAppErrorWithDetails(
		types.ErrCodeLimitExceeded,
		msg,
		nil,
		map[string]any{
			"current": current,
			"limit":   max,
			"plan":    string(plan),
		},
	)
}
