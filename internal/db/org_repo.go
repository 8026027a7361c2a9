package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"slotbook/internal/types"
)

// OrganizationRepository provides data access for the organizations table.
type OrganizationRepository struct {
	db DBTX
}

// NewOrganizationRepository creates a new OrganizationRepository backed by the
// given database connection (pool or transaction).
func NewOrganizationRepository(db DBTX) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// orgColumns defines the standard set of columns selected for organization
// queries. Used consistently across all query methods to avoid column drift.
const orgColumns = `o.id, o.owner_id, o.name, o.plan, o.subscription_status,
	o.subscribed_at, o.expires_at, o.overlap_policy, o.settings,
	o.created_at, o.updated_at, o.disabled_at`

// scanOrg scans a single organization row into a types.Organization struct.
// The columns must match the order defined in orgColumns.
func scanOrg(row pgx.Row) (*types.Organization, error) {
	var org types.Organization
	err := row.Scan(
		&org.ID,
		&org.OwnerID,
		&org.Name,
		&org.Plan,
		&org.SubscriptionStatus,
		&org.SubscribedAt,
		&org.ExpiresAt,
		&org.OverlapPolicy,
		&org.Settings,
		&org.CreatedAt,
		&org.UpdatedAt,
		&org.DisabledAt,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Create inserts a new organization record. The caller must set the ID
// (prefixed UUID, e.g. "org_...") and required fields before calling.
func (r *OrganizationRepository) Create(ctx context.Context, org *types.Organization) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO organizations (id, owner_id, name, plan, subscription_status,
		 subscribed_at, expires_at, overlap_policy, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7, $8, $9,
		         COALESCE($10, NOW()), COALESCE($11, NOW()))`,
		org.ID,
		org.OwnerID,
		org.Name,
		org.Plan,
		org.SubscriptionStatus,
		nilIfZeroTime(org.SubscribedAt),
		org.ExpiresAt,
		org.OverlapPolicy,
		org.Settings,
		nilIfZeroTime(org.CreatedAt),
		nilIfZeroTime(org.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create organization", err)
	}
	return nil
}

// GetByID retrieves an organization by its ID. Excludes disabled
// organizations. Returns ErrCodeNotFoundOrg if no active organization exists.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*types.Organization, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orgColumns+`
		 FROM organizations o
		 WHERE o.id = $1 AND o.disabled_at IS NULL`,
		id,
	)

	org, err := scanOrg(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve organization", err)
	}
	return org, nil
}

// Update applies changes to an organization's mutable fields (name, overlap
// policy, settings). The updated_at timestamp is set by the database.
func (r *OrganizationRepository) Update(ctx context.Context, org *types.Organization) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET name = $1,
		     overlap_policy = $2,
		     settings = $3,
		     updated_at = NOW()
		 WHERE id = $4 AND disabled_at IS NULL`,
		org.Name,
		org.OverlapPolicy,
		org.Settings,
		org.ID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update organization", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
	}
	return nil
}

// UpdatePlan updates the organization's plan tier, subscription status, and
// expiry in one statement. Used when a subscription is purchased or lapses.
// A nil expiresAt clears the expiry (free plan and enterprise contracts).
func (r *OrganizationRepository) UpdatePlan(ctx context.Context, id string, plan types.PlanTier, status types.SubscriptionStatus, expiresAt *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET plan = $1,
		     subscription_status = $2,
		     subscribed_at = NOW(),
		     expires_at = $3,
		     updated_at = NOW()
		 WHERE id = $4 AND disabled_at IS NULL`,
		plan,
		status,
		expiresAt,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update organization plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found", nil)
	}
	return nil
}

// CountByOwner returns the number of active organizations owned by the given
// account. Feeds the per-owner organization cap check.
func (r *OrganizationRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM organizations
		 WHERE owner_id = $1 AND disabled_at IS NULL`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count organizations", err)
	}
	return count, nil
}

// Disable performs a soft disable by setting disabled_at = NOW(). Bookings
// referencing the organization survive; the org simply stops resolving.
func (r *OrganizationRepository) Disable(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations SET disabled_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND disabled_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to disable organization", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrg, "organization not found or already disabled", nil)
	}
	return nil
}

// SweepExpired downgrades every organization whose subscription expiry has
// passed in a single statement. The WHERE clause makes the sweep idempotent:
// rows downgraded by a previous run have expires_at cleared and no longer
// match.
//
// Returns the number of organizations downgraded.
func (r *OrganizationRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE organizations
		 SET plan = $1,
		     subscription_status = $2,
		     expires_at = NULL,
		     updated_at = NOW()
		 WHERE expires_at IS NOT NULL AND expires_at < $3`,
		types.PlanFree,
		types.SubStatusExpired,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sweep expired subscriptions", err)
	}
	return tag.RowsAffected(), nil
}
