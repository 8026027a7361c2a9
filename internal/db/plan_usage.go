package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"slotbook/internal/types"
)

// PlanUsageImpl provides the concrete count queries needed by the plan
// guard. It implements the plans.UsageDB and plans.OrgLookup interfaces.
//
// These queries are intentionally separated from the standard repository
// pattern because they are read-only counts that serve one specific domain
// need (plan limit enforcement) and are always consulted together.
type PlanUsageImpl struct {
	db DBTX
}

// NewPlanUsageImpl creates a new PlanUsageImpl backed by the given database
// connection.
func NewPlanUsageImpl(db DBTX) *PlanUsageImpl {
	return &PlanUsageImpl{db: db}
}

// CountActiveServices performs the direct count query against the services
// table. This is the authoritative count used for limit enforcement;
// deactivated services release their quota.
//
// SQL: SELECT COUNT(*) FROM services
//
//	WHERE organization_id = $1 AND active = TRUE
func (u *PlanUsageImpl) CountActiveServices(ctx context.Context, orgID string) (int, error) {
	var count int
	err := u.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM services
		 WHERE organization_id = $1
		   AND active = TRUE`,
		orgID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count active services", err)
	}
	return count, nil
}

// CountBookingsCreatedSince counts bookings created at or after the period
// start, regardless of current status. Cancellation does not refund quota.
//
// SQL: SELECT COUNT(*) FROM bookings
//
//	WHERE organization_id = $1 AND created_at >= $2
func (u *PlanUsageImpl) CountBookingsCreatedSince(ctx context.Context, orgID string, periodStart time.Time) (int, error) {
	var count int
	err := u.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM bookings
		 WHERE organization_id = $1
		   AND created_at >= $2`,
		orgID, periodStart,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count period bookings", err)
	}
	return count, nil
}

// CountOrganizationsByOwner counts the active organizations an account owns.
//
// SQL: SELECT COUNT(*) FROM organizations
//
//	WHERE owner_id = $1 AND disabled_at IS NULL
func (u *PlanUsageImpl) CountOrganizationsByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := u.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM organizations
		 WHERE owner_id = $1
		   AND disabled_at IS NULL`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count owned organizations", err)
	}
	return count, nil
}

// GetPlan returns the plan tier for the given organization. Implements the
// plans.OrgLookup interface.
func (u *PlanUsageImpl) GetPlan(ctx context.Context, orgID string) (types.PlanTier, error) {
	var plan types.PlanTier
	err := u.db.QueryRow(ctx,
		`SELECT plan
		 FROM organizations
		 WHERE id = $1 AND disabled_at IS NULL`,
		orgID,
	).Scan(&plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to get organization plan", err)
	}
	return plan, nil
}
