package scheduling

import (
	"context"
	"log/slog"
	"time"

	"slotbook/internal/types"
)

// MaxAvailabilityWindow caps the time span of one availability query.
const MaxAvailabilityWindow = 31 * 24 * time.Hour

// MaxCutoffOverride caps a per-query lead-time override at one day.
const MaxCutoffOverride = 24 * time.Hour

// AvailabilityQuery scopes one availability resolution.
type AvailabilityQuery struct {
	OrganizationID string
	ServiceID      string
	From           time.Time
	To             time.Time

	// CutoffOverride replaces the organization's configured lead time for
	// this query when positive. Zero keeps the organization's value.
	CutoffOverride time.Duration
}

// AvailabilityDB defines the data access the availability resolver needs.
type AvailabilityDB interface {
	// GetOrganization retrieves an active organization with its settings.
	//
	// SQL: SELECT ... FROM organizations
	//      WHERE id = $1 AND disabled_at IS NULL
	GetOrganization(ctx context.Context, id string) (*types.Organization, error)

	// GetService retrieves a service scoped to the organization.
	GetService(ctx context.Context, id, orgID string) (*types.Service, error)

	// ListAvailability returns the service's slots inside [from, to)
	// together with their non-cancelled booking counts.
	ListAvailability(ctx context.Context, serviceID string, from, to time.Time) ([]types.SlotAvailability, error)

	// ListOrgBusy returns the organization's blocking busy windows inside
	// [from, to), across every service and requester.
	ListOrgBusy(ctx context.Context, orgID string, policy types.OverlapPolicy, from, to time.Time) ([]types.BusyInterval, error)
}

// Resolver answers "what can still be booked" for one service. Results are
// advisory: the booking engine re-validates everything under a row lock, so
// a stale answer costs the client a conflict response, never an overbooked
// slot.
type Resolver struct {
	db     AvailabilityDB
	logger *slog.Logger
}

// NewResolver creates an availability resolver.
func NewResolver(db AvailabilityDB, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{db: db, logger: logger}
}

// Resolve returns the service's bookable slots inside [q.From, q.To),
// ordered by start time. A slot is bookable when it starts at or after the
// lead-time cutoff (now + lead time), has free capacity, and does not
// overlap any of the organization's blocking bookings on other slots,
// whatever service those belong to.
func (r *Resolver) Resolve(ctx context.Context, q AvailabilityQuery, now time.Time) ([]types.SlotAvailability, error) {
	if q.To.Before(q.From) || q.To.Equal(q.From) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidRange, "availability window is empty", nil)
	}
	if q.To.Sub(q.From) > MaxAvailabilityWindow {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidRange, "availability window exceeds 31 days", nil)
	}
	if q.CutoffOverride < 0 || q.CutoffOverride > MaxCutoffOverride {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidRange, "lead-time override is out of range", nil)
	}

	org, err := r.db.GetOrganization(ctx, q.OrganizationID)
	if err != nil {
		return nil, err
	}
	svc, err := r.db.GetService(ctx, q.ServiceID, q.OrganizationID)
	if err != nil {
		return nil, err
	}

	leadTime := org.Settings.LeadTime()
	if q.CutoffOverride > 0 {
		leadTime = q.CutoffOverride
	}

	// Clamp the window's lower bound to the cutoff before querying so the
	// database never returns slots the filter would discard anyway.
	cutoff := now.Add(leadTime)
	queryFrom := q.From
	if cutoff.After(queryFrom) {
		queryFrom = cutoff
	}
	if !queryFrom.Before(q.To) {
		return []types.SlotAvailability{}, nil
	}

	candidates, err := r.db.ListAvailability(ctx, svc.ID, queryFrom, q.To)
	if err != nil {
		return nil, err
	}
	busy, err := r.db.ListOrgBusy(ctx, org.ID, org.OverlapPolicy, queryFrom, q.To)
	if err != nil {
		return nil, err
	}

	bookable := make([]types.SlotAvailability, 0, len(candidates))
	for _, c := range candidates {
		if c.StartAt.Before(cutoff) {
			continue
		}
		if !c.Free() {
			continue
		}
		if overlapsOtherSlot(busy, c.Slot) {
			continue
		}
		bookable = append(bookable, c)
	}
	return bookable, nil
}

// overlapsOtherSlot reports whether the slot's window intersects a blocking
// booking held on a different slot. Bookings on the slot itself do not count
// here; the capacity filter already accounts for them.
func overlapsOtherSlot(busy []types.BusyInterval, slot types.Slot) bool {
	for _, b := range busy {
		if b.SlotID == slot.ID {
			continue
		}
		if b.Intersects(slot.StartAt, slot.EndAt) {
			return true
		}
	}
	return false
}
