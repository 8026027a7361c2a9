package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"slotbook/internal/types"
)

// BookingRepository provides data access for the bookings table. Row
// insertion during a reservation goes through the reservation store instead
// so it happens under the slot lock; this repository covers everything
// outside that critical section.
type BookingRepository struct {
	db DBTX
}

// NewBookingRepository creates a new BookingRepository backed by the given
// database connection (pool or transaction).
func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `b.id, b.slot_id, b.service_id, b.organization_id,
	b.requester_id, b.status, b.created_at, b.updated_at`

func scanBooking(row pgx.Row) (*types.Booking, error) {
	var bk types.Booking
	err := row.Scan(
		&bk.ID,
		&bk.SlotID,
		&bk.ServiceID,
		&bk.OrganizationID,
		&bk.RequesterID,
		&bk.Status,
		&bk.CreatedAt,
		&bk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bk, nil
}

// GetByID retrieves a booking by ID within the given organization.
// Returns ErrCodeNotFoundBooking when the row does not exist or belongs to
// another organization.
func (r *BookingRepository) GetByID(ctx context.Context, id, orgID string) (*types.Booking, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.id = $1 AND b.organization_id = $2`,
		id, orgID,
	)

	bk, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundBooking, "booking not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve booking", err)
	}
	return bk, nil
}

// ListByOrg returns an organization's bookings, newest first. A non-empty
// requesterID narrows the result to one requester's bookings.
func (r *BookingRepository) ListByOrg(ctx context.Context, orgID, requesterID string, limit int) ([]types.Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.organization_id = $1
		   AND ($2::text IS NULL OR b.requester_id = $2)
		 ORDER BY b.created_at DESC
		 LIMIT $3`,
		orgID, nilIfEmpty(requesterID), limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list bookings", err)
	}
	defer rows.Close()

	var bookings []types.Booking
	for rows.Next() {
		bk, err := scanBooking(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan booking row", err)
		}
		bookings = append(bookings, *bk)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate booking rows", err)
	}
	return bookings, nil
}

// ListOrgBusy returns the time windows inside [from, to) occupied by the
// organization's blocking bookings, across every service and requester.
// Used by the availability resolver's advisory overlap filter.
func (r *BookingRepository) ListOrgBusy(ctx context.Context, orgID string, policy types.OverlapPolicy, from, to time.Time) ([]types.BusyInterval, error) {
	return listOrgBusy(ctx, r.db, orgID, policy, from, to)
}

// CountCreatedSince returns the number of bookings an organization created
// at or after the period start, regardless of their current status. This is
// the authoritative count for the per-period booking limit: cancelling a
// booking does not refund plan quota.
func (r *BookingRepository) CountCreatedSince(ctx context.Context, orgID string, periodStart time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM bookings
		 WHERE organization_id = $1 AND created_at >= $2`,
		orgID, periodStart,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count bookings for period", err)
	}
	return count, nil
}

// UpdateStatus transitions a booking from one status to another. The WHERE
// clause pins the expected current status so two concurrent transitions
// cannot both succeed; the loser sees zero rows affected and receives
// ErrCodeConflictStatusTerminal.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id, orgID string, from, to types.BookingStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE bookings
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND organization_id = $3 AND status = $4`,
		to, id, orgID, from,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update booking status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictStatusTerminal, "booking status changed concurrently", nil)
	}
	return nil
}
