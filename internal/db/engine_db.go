package db

import (
	"context"
	"time"

	"slotbook/internal/types"
)

// EngineDBImpl aggregates the repositories into the single data access
// surface the scheduling engine consumes. It implements the
// scheduling.BookingDB, scheduling.GeneratorDB, scheduling.AvailabilityDB,
// and scheduling.ReapDB interfaces by delegating to the repositories, so the
// engine never learns which table a call lands on.
type EngineDBImpl struct {
	orgs     *OrganizationRepository
	services *ServiceRepository
	slots    *SlotRepository
	bookings *BookingRepository
}

// NewEngineDBImpl creates an EngineDBImpl over the given repositories.
func NewEngineDBImpl(
	orgs *OrganizationRepository,
	services *ServiceRepository,
	slots *SlotRepository,
	bookings *BookingRepository,
) *EngineDBImpl {
	return &EngineDBImpl{orgs: orgs, services: services, slots: slots, bookings: bookings}
}

// GetOrganization retrieves an active organization with its settings.
func (d *EngineDBImpl) GetOrganization(ctx context.Context, id string) (*types.Organization, error) {
	return d.orgs.GetByID(ctx, id)
}

// GetService retrieves a service scoped to the organization.
func (d *EngineDBImpl) GetService(ctx context.Context, id, orgID string) (*types.Service, error) {
	return d.services.GetByID(ctx, id, orgID)
}

// GetSlot retrieves a slot without locking it.
func (d *EngineDBImpl) GetSlot(ctx context.Context, id string) (*types.Slot, error) {
	return d.slots.GetByID(ctx, id)
}

// GetBooking retrieves a booking scoped to the organization.
func (d *EngineDBImpl) GetBooking(ctx context.Context, id, orgID string) (*types.Booking, error) {
	return d.bookings.GetByID(ctx, id, orgID)
}

// UpdateBookingStatus transitions a booking with the expected current status
// pinned in the WHERE clause.
func (d *EngineDBImpl) UpdateBookingStatus(ctx context.Context, id, orgID string, from, to types.BookingStatus) error {
	return d.bookings.UpdateStatus(ctx, id, orgID, from, to)
}

// CountSlotsOnDay counts a service's slots with start_at in [dayStart, dayEnd).
func (d *EngineDBImpl) CountSlotsOnDay(ctx context.Context, serviceID string, dayStart, dayEnd time.Time) (int, error) {
	return d.slots.CountOnDay(ctx, serviceID, dayStart, dayEnd)
}

// InsertSlots inserts a batch of slots in one statement.
func (d *EngineDBImpl) InsertSlots(ctx context.Context, slots []types.Slot) error {
	return d.slots.InsertBatch(ctx, slots)
}

// ListAvailability returns the service's slots inside [from, to) with their
// non-cancelled booking counts.
func (d *EngineDBImpl) ListAvailability(ctx context.Context, serviceID string, from, to time.Time) ([]types.SlotAvailability, error) {
	return d.slots.ListAvailability(ctx, serviceID, from, to)
}

// ListOrgBusy returns the organization's blocking busy windows inside
// [from, to) per its overlap policy.
func (d *EngineDBImpl) ListOrgBusy(ctx context.Context, orgID string, policy types.OverlapPolicy, from, to time.Time) ([]types.BusyInterval, error) {
	return d.bookings.ListOrgBusy(ctx, orgID, policy, from, to)
}

// DeleteSlotsEndedBefore removes up to limit slots whose end_at fell before
// the cutoff. Bookings cascade with their slot.
func (d *EngineDBImpl) DeleteSlotsEndedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return d.slots.DeleteEndedBefore(ctx, cutoff, limit)
}
