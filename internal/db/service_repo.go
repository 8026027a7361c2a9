package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"slotbook/internal/types"
)

// ServiceRepository provides data access for the services table. All reads
// are scoped by organization ID so one tenant can never address another
// tenant's catalog.
type ServiceRepository struct {
	db DBTX
}

// NewServiceRepository creates a new ServiceRepository backed by the given
// database connection (pool or transaction).
func NewServiceRepository(db DBTX) *ServiceRepository {
	return &ServiceRepository{db: db}
}

const serviceColumns = `s.id, s.organization_id, s.name, s.duration_minutes,
	s.active, s.created_at, s.updated_at`

func scanService(row pgx.Row) (*types.Service, error) {
	var svc types.Service
	err := row.Scan(
		&svc.ID,
		&svc.OrganizationID,
		&svc.Name,
		&svc.DurationMinutes,
		&svc.Active,
		&svc.CreatedAt,
		&svc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// Create inserts a new service record. The caller must set the ID
// (prefixed UUID, e.g. "svc_...") before calling.
func (r *ServiceRepository) Create(ctx context.Context, svc *types.Service) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO services (id, organization_id, name, duration_minutes, active,
		 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), COALESCE($7, NOW()))`,
		svc.ID,
		svc.OrganizationID,
		svc.Name,
		svc.DurationMinutes,
		svc.Active,
		nilIfZeroTime(svc.CreatedAt),
		nilIfZeroTime(svc.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create service", err)
	}
	return nil
}

// GetByID retrieves a service by ID within the given organization.
// Returns ErrCodeNotFoundService when the ID does not exist or belongs to a
// different organization; the two cases are indistinguishable to the caller.
func (r *ServiceRepository) GetByID(ctx context.Context, id, orgID string) (*types.Service, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+serviceColumns+`
		 FROM services s
		 WHERE s.id = $1 AND s.organization_id = $2`,
		id, orgID,
	)

	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundService, "service not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve service", err)
	}
	return svc, nil
}

// List returns all services of an organization, newest first. Inactive
// services are included so staff can reactivate them.
func (r *ServiceRepository) List(ctx context.Context, orgID string) ([]types.Service, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+serviceColumns+`
		 FROM services s
		 WHERE s.organization_id = $1
		 ORDER BY s.created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list services", err)
	}
	defer rows.Close()

	var services []types.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan service row", err)
		}
		services = append(services, *svc)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate service rows", err)
	}
	return services, nil
}

// Update applies changes to a service's mutable fields (name, duration,
// active flag). Duration changes do not touch already-generated slots.
func (r *ServiceRepository) Update(ctx context.Context, svc *types.Service) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE services
		 SET name = $1,
		     duration_minutes = $2,
		     active = $3,
		     updated_at = NOW()
		 WHERE id = $4 AND organization_id = $5`,
		svc.Name,
		svc.DurationMinutes,
		svc.Active,
		svc.ID,
		svc.OrganizationID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update service", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundService, "service not found", nil)
	}
	return nil
}

// Deactivate marks a service inactive. Existing slots and bookings are left
// untouched; the service stops accepting slot generation and new bookings.
func (r *ServiceRepository) Deactivate(ctx context.Context, id, orgID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE services SET active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2 AND active = TRUE`,
		id, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate service", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundService, "service not found or already inactive", nil)
	}
	return nil
}

// CountActive returns the number of active services for an organization.
// This is the authoritative count used for plan limit enforcement.
func (r *ServiceRepository) CountActive(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM services
		 WHERE organization_id = $1 AND active = TRUE`,
		orgID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count active services", err)
	}
	return count, nil
}
