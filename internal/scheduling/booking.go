package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"slotbook/internal/types"
)

// BookingDB defines the non-transactional data access the booking engine
// needs.
type BookingDB interface {
	// GetOrganization retrieves an active organization with its settings
	// and overlap policy.
	GetOrganization(ctx context.Context, id string) (*types.Organization, error)

	// GetService retrieves a service scoped to the organization.
	GetService(ctx context.Context, id, orgID string) (*types.Service, error)

	// GetSlot retrieves a slot without locking it. Used for the advisory
	// pre-checks before the reservation transaction opens.
	GetSlot(ctx context.Context, id string) (*types.Slot, error)

	// GetBooking retrieves a booking scoped to the organization.
	GetBooking(ctx context.Context, id, orgID string) (*types.Booking, error)

	// UpdateBookingStatus transitions a booking between states. The
	// expected current status is pinned in the WHERE clause; losing a
	// race surfaces as ErrCodeConflictStatusTerminal.
	UpdateBookingStatus(ctx context.Context, id, orgID string, from, to types.BookingStatus) error
}

// PlanGuard enforces the per-period booking quota before a reservation is
// attempted.
type PlanGuard interface {
	CheckBookingCreate(ctx context.Context, orgID string, now time.Time) error
}

// ReservationStore opens the transaction a reservation commits under.
type ReservationStore interface {
	// BeginTx starts a reservation transaction. The returned transaction
	// must be committed or rolled back by the caller.
	BeginTx(ctx context.Context) (ReservationTx, error)
}

// ReservationTx defines the operations that run with the slot row locked.
// Every check the engine performed outside the transaction is repeated here
// against locked state; only this copy of the checks is authoritative.
type ReservationTx interface {
	// LockSlot loads the slot under FOR UPDATE NOWAIT. A lock held by a
	// concurrent reservation surfaces as ErrCodeBusy.
	LockSlot(ctx context.Context, slotID string) (*types.Slot, error)

	// CountActiveBookings returns the slot's non-cancelled booking count.
	CountActiveBookings(ctx context.Context, slotID string) (int, error)

	// ListOrgBusy returns the organization's blocking busy windows
	// intersecting [from, to), across every service and requester.
	ListOrgBusy(ctx context.Context, orgID string, policy types.OverlapPolicy, from, to time.Time) ([]types.BusyInterval, error)

	// InsertBooking persists the new booking.
	InsertBooking(ctx context.Context, bk *types.Booking) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ReserveParams identifies the slot being claimed and for whom.
type ReserveParams struct {
	OrganizationID string
	SlotID         string
	RequesterID    string
}

// Engine is the booking engine. It owns the only code path that creates
// bookings, so the capacity and overlap invariants are enforced in exactly
// one place: inside the reservation transaction, with the slot row locked.
//
// A circuit breaker guards the transactional path. Domain conflicts (full
// slot, overlap, expired) count as successes; only infrastructure failures
// and lock contention trip it, so a database brownout degrades to fast
// retryable rejections instead of a pile-up of waiting transactions.
type Engine struct {
	db      BookingDB
	guard   PlanGuard
	store   ReservationStore
	breaker *gobreaker.CircuitBreaker[*types.Booking]
	logger  *slog.Logger
}

// NewEngine creates a booking engine.
func NewEngine(db BookingDB, guard PlanGuard, store ReservationStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[*types.Booking](gobreaker.Settings{
		Name:        "booking-reserve",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var appErr *types.AppError
			if errors.As(err, &appErr) {
				switch appErr.Code {
				case types.ErrCodeBusy, types.ErrCodeInternalDB, types.ErrCodeInternalUnexpected:
					return false
				}
				// Domain outcomes are the engine working as intended.
				return true
			}
			return false
		},
	})
	return &Engine{
		db:      db,
		guard:   guard,
		store:   store,
		breaker: cb,
		logger:  logger,
	}
}

// Reserve claims one capacity unit of a slot for the requester.
//
// The flow runs in two phases. The advisory phase resolves the organization
// and slot, rejects obviously doomed requests (expired slot, inactive
// service, quota exhausted) without opening a transaction, and costs
// nothing under contention. The transactional phase locks the slot row and
// repeats every check against locked state before inserting: expiry first,
// then capacity, then the cross-service overlap scan. Two concurrent
// requests for the last unit of a slot serialize on the row lock, and the
// loser's capacity re-check fails.
func (e *Engine) Reserve(ctx context.Context, params ReserveParams, now time.Time) (*types.Booking, error) {
	if params.SlotID == "" || params.RequesterID == "" || params.OrganizationID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "slot, requester, and organization are required", nil)
	}

	org, err := e.db.GetOrganization(ctx, params.OrganizationID)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(org.Settings.LeadTime())

	slot, err := e.db.GetSlot(ctx, params.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.OrganizationID != org.ID {
		// Cross-tenant probes look identical to missing slots.
		return nil, types.NewAppError(types.ErrCodeNotFoundSlot, "slot not found", nil)
	}
	if slot.StartAt.Before(cutoff) {
		return nil, types.NewAppError(types.ErrCodeConflictSlotExpired, "slot is no longer bookable", nil)
	}

	svc, err := e.db.GetService(ctx, slot.ServiceID, org.ID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, types.NewAppError(types.ErrCodeConflictServiceInactive, "service is not accepting bookings", nil)
	}

	if err := e.guard.CheckBookingCreate(ctx, org.ID, now); err != nil {
		return nil, err
	}

	booking, err := e.breaker.Execute(func() (*types.Booking, error) {
		return e.reserveTx(ctx, org, params, cutoff, now)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.NewAppError(types.ErrCodeBusy, "booking engine is shedding load, try again shortly", err)
		}
		return nil, err
	}

	e.logger.InfoContext(ctx, "booking reserved",
		"booking_id", booking.ID,
		"slot_id", slot.ID,
		"organization_id", org.ID,
		"status", string(booking.Status),
	)
	return booking, nil
}

// reserveTx is the critical section: every admission check re-run under the
// slot row lock, then the insert, then the commit.
func (e *Engine) reserveTx(ctx context.Context, org *types.Organization, params ReserveParams, cutoff, now time.Time) (*types.Booking, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	slot, err := tx.LockSlot(ctx, params.SlotID)
	if err != nil {
		return nil, err
	}

	if slot.StartAt.Before(cutoff) {
		return nil, types.NewAppError(types.ErrCodeConflictSlotExpired, "slot is no longer bookable", nil)
	}

	active, err := tx.CountActiveBookings(ctx, slot.ID)
	if err != nil {
		return nil, err
	}
	if active >= slot.Capacity {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictSlotFull, "slot has no remaining capacity", nil,
			map[string]any{"capacity": slot.Capacity},
		)
	}

	busy, err := tx.ListOrgBusy(ctx, org.ID, org.OverlapPolicy, slot.StartAt, slot.EndAt)
	if err != nil {
		return nil, err
	}
	for _, b := range busy {
		if !b.Intersects(slot.StartAt, slot.EndAt) {
			continue
		}
		if b.SlotID == slot.ID {
			// Concurrent use of the same slot is governed by its
			// capacity, not by the overlap rule. The same requester
			// holding a second unit is still rejected.
			if b.RequesterID == params.RequesterID {
				return nil, types.NewAppError(types.ErrCodeConflictDuplicate, "requester already holds a booking on this slot", nil)
			}
			continue
		}
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictBookingOverlap,
			"organization has a conflicting booking in this time window", nil,
			map[string]any{"conflicting_slot_id": b.SlotID},
		)
	}

	status := types.BookingPending
	if org.Settings.AutoConfirm {
		status = types.BookingConfirmed
	}

	booking := &types.Booking{
		ID:             "bk_" + uuid.New().String(),
		SlotID:         slot.ID,
		ServiceID:      slot.ServiceID,
		OrganizationID: org.ID,
		RequesterID:    params.RequesterID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.InsertBooking(ctx, booking); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return booking, nil
}

// Confirm transitions a pending booking to confirmed.
func (e *Engine) Confirm(ctx context.Context, orgID, bookingID string) (*types.Booking, error) {
	return e.transition(ctx, orgID, bookingID, types.BookingConfirmed)
}

// Cancel transitions a pending or confirmed booking to cancelled, releasing
// its capacity unit. Cancelled is terminal; a cancelled booking's quota is
// not refunded.
func (e *Engine) Cancel(ctx context.Context, orgID, bookingID string) (*types.Booking, error) {
	return e.transition(ctx, orgID, bookingID, types.BookingCancelled)
}

func (e *Engine) transition(ctx context.Context, orgID, bookingID string, target types.BookingStatus) (*types.Booking, error) {
	bk, err := e.db.GetBooking(ctx, bookingID, orgID)
	if err != nil {
		return nil, err
	}
	if !bk.Status.CanTransition(target) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictStatusTerminal,
			"booking cannot move to the requested status", nil,
			map[string]any{"status": string(bk.Status), "requested": string(target)},
		)
	}

	if err := e.db.UpdateBookingStatus(ctx, bookingID, orgID, bk.Status, target); err != nil {
		return nil, err
	}

	bk.Status = target
	e.logger.InfoContext(ctx, "booking status changed",
		"booking_id", bk.ID,
		"organization_id", orgID,
		"status", string(target),
	)
	return bk, nil
}
