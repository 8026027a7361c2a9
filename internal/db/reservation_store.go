package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"slotbook/internal/types"
)

// pgLockNotAvailable is the PostgreSQL error code raised by FOR UPDATE
// NOWAIT when another transaction holds the row lock.
const pgLockNotAvailable = "55P03"

// ReservationStoreImpl provides the transactional operations the booking
// engine runs under a slot row lock. It implements the
// scheduling.ReservationStore interface.
//
// These queries are intentionally separated from the standard repository
// pattern because they must all execute inside one transaction with the
// slot row locked for its duration.
type ReservationStoreImpl struct {
	pool TxBeginner
}

// NewReservationStoreImpl creates a new ReservationStoreImpl backed by the
// given transaction source (normally *pgxpool.Pool).
func NewReservationStoreImpl(pool TxBeginner) *ReservationStoreImpl {
	return &ReservationStoreImpl{pool: pool}
}

// BeginTx starts a reservation transaction. The returned transaction must
// be committed or rolled back by the caller.
func (s *ReservationStoreImpl) BeginTx(ctx context.Context) (*ReservationTxImpl, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to begin reservation transaction", err)
	}
	return &ReservationTxImpl{tx: tx}, nil
}

// ReservationTxImpl wraps a pgx.Tx with the reservation queries. It
// implements the scheduling.ReservationTx interface.
type ReservationTxImpl struct {
	tx pgx.Tx
}

// LockSlot loads a slot under FOR UPDATE NOWAIT, serializing concurrent
// reservations against the same slot. A held lock surfaces as
// ErrCodeBusy so the caller can ask the client to retry instead of
// queueing behind the lock.
func (t *ReservationTxImpl) LockSlot(ctx context.Context, slotID string) (*types.Slot, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+slotColumns+`
		 FROM slots sl
		 WHERE sl.id = $1
		 FOR UPDATE NOWAIT`,
		slotID,
	)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSlot, "slot not found", nil)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, types.NewAppError(types.ErrCodeBusy, "slot is being booked by another request, try again", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock slot", err)
	}
	return slot, nil
}

// CountActiveBookings returns the slot's current non-cancelled booking
// count. Called with the slot row locked, so the count cannot move before
// the transaction commits.
func (t *ReservationTxImpl) CountActiveBookings(ctx context.Context, slotID string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM bookings
		 WHERE slot_id = $1 AND status != 'cancelled'`,
		slotID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count slot bookings", err)
	}
	return count, nil
}

// ListOrgBusy returns the time windows inside [from, to) already occupied
// by the organization's blocking bookings, across every service and
// requester. Which statuses block is decided by the organization's overlap
// policy.
func (t *ReservationTxImpl) ListOrgBusy(ctx context.Context, orgID string, policy types.OverlapPolicy, from, to time.Time) ([]types.BusyInterval, error) {
	return listOrgBusy(ctx, t.tx, orgID, policy, from, to)
}

// listOrgBusy is shared between the reservation transaction and the
// availability resolver's non-transactional read.
func listOrgBusy(ctx context.Context, db DBTX, orgID string, policy types.OverlapPolicy, from, to time.Time) ([]types.BusyInterval, error) {
	statusFilter := `b.status != 'cancelled'`
	if policy == types.OverlapBlockConfirmed {
		statusFilter = `b.status = 'confirmed'`
	}

	rows, err := db.Query(ctx,
		`SELECT b.slot_id, b.requester_id, sl.start_at, sl.end_at
		 FROM bookings b
		 JOIN slots sl ON sl.id = b.slot_id
		 WHERE b.organization_id = $1
		   AND `+statusFilter+`
		   AND sl.start_at < $2 AND sl.end_at > $3`,
		orgID, to, from,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query blocking bookings", err)
	}
	defer rows.Close()

	var busy []types.BusyInterval
	for rows.Next() {
		var b types.BusyInterval
		if err := rows.Scan(&b.SlotID, &b.RequesterID, &b.Start, &b.End); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan busy interval", err)
		}
		busy = append(busy, b)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate busy intervals", err)
	}
	return busy, nil
}

// InsertBooking persists the new booking inside the reservation
// transaction. The caller must set the ID (prefixed UUID, e.g. "bk_...").
func (t *ReservationTxImpl) InsertBooking(ctx context.Context, bk *types.Booking) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bookings (id, slot_id, service_id, organization_id,
		 requester_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), COALESCE($8, NOW()))`,
		bk.ID,
		bk.SlotID,
		bk.ServiceID,
		bk.OrganizationID,
		bk.RequesterID,
		bk.Status,
		nilIfZeroTime(bk.CreatedAt),
		nilIfZeroTime(bk.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert booking", err)
	}
	return nil
}

// Commit commits the reservation transaction.
func (t *ReservationTxImpl) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit reservation", err)
	}
	return nil
}

// Rollback rolls back the reservation transaction. Safe to call after
// Commit (no-op).
func (t *ReservationTxImpl) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to roll back reservation", err)
	}
	return nil
}
