package types

import "time"

// Organization is the tenant root. Every service, slot, and booking hangs
// off exactly one organization. Organizations are never hard-deleted while
// bookings reference them; DisabledAt marks a soft-disable.
type Organization struct {
	ID      string   `json:"id" db:"id"`
	OwnerID string   `json:"owner_id" db:"owner_id"`
	Name    string   `json:"name" db:"name"`
	Plan    PlanTier `json:"plan" db:"plan"`

	SubscriptionStatus SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	SubscribedAt       time.Time          `json:"subscribed_at" db:"subscribed_at"`
	// ExpiresAt is nil for the free plan; the expiry sweep clears it on
	// downgrade.
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	OverlapPolicy OverlapPolicy `json:"overlap_policy" db:"overlap_policy"`
	Settings      OrgSettings   `json:"settings" db:"settings"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	DisabledAt *time.Time `json:"-" db:"disabled_at"`
}

// OrgSettings is the structured, validated per-organization configuration
// record. It replaces the free-form JSON blob of the previous generation so
// the engine's contracts stay checkable at compile time.
type OrgSettings struct {
	// LeadTimeMinutes is the minimum lead time before a slot's start below
	// which it can no longer be booked. Zero means the platform default.
	LeadTimeMinutes int `json:"lead_time_minutes" validate:"gte=0,lte=1440"`
	// DefaultCapacity seeds the capacity field of the slot generation form.
	DefaultCapacity int `json:"default_capacity" validate:"gte=1,lte=100"`
	// AutoConfirm makes Reserve create bookings directly in the confirmed
	// state instead of pending.
	AutoConfirm bool `json:"auto_confirm"`
	// Greeting is the bot's opening line. Rendering is out of scope here;
	// the field is kept typed so staff edits are validated.
	Greeting string `json:"greeting,omitempty" validate:"max=500"`
}

// DefaultLeadTime is the platform-wide minimum lead time applied when an
// organization has not configured its own.
const DefaultLeadTime = 30 * time.Minute

// LeadTime resolves the effective lead-time cutoff for the organization.
func (s OrgSettings) LeadTime() time.Duration {
	if s.LeadTimeMinutes <= 0 {
		return DefaultLeadTime
	}
	return time.Duration(s.LeadTimeMinutes) * time.Minute
}

// Service is a bookable offering of one organization. Duration is fixed at
// slot-generation time; changing it does not retroactively alter slots that
// were already generated.
type Service struct {
	ID              string    `json:"id" db:"id"`
	OrganizationID  string    `json:"organization_id" db:"organization_id"`
	Name            string    `json:"name" db:"name"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Duration returns the service duration as a time.Duration.
func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Slot is an immutable bookable time window for one service. The
// organization ID is denormalized onto the slot so the cross-service
// overlap scan never needs a join through services.
//
// Invariant: EndAt > StartAt; EndAt = StartAt + service duration at
// generation time. Capacity is the maximum concurrent non-cancelled
// bookings the slot may hold.
type Slot struct {
	ID             string    `json:"id" db:"id"`
	ServiceID      string    `json:"service_id" db:"service_id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	StartAt        time.Time `json:"start_at" db:"start_at"`
	EndAt          time.Time `json:"end_at" db:"end_at"`
	Capacity       int       `json:"capacity" db:"capacity"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Overlaps reports strict interval intersection with the [start, end)
// window: s.StartAt < end AND s.EndAt > start.
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartAt.Before(end) && s.EndAt.After(start)
}

// Booking reserves one unit of a slot's capacity for a requester. The
// service ID is a denormalized copy taken from the slot at booking time so
// history survives catalog edits.
type Booking struct {
	ID             string        `json:"id" db:"id"`
	SlotID         string        `json:"slot_id" db:"slot_id"`
	ServiceID      string        `json:"service_id" db:"service_id"`
	OrganizationID string        `json:"organization_id" db:"organization_id"`
	RequesterID    string        `json:"requester_id" db:"requester_id"`
	Status         BookingStatus `json:"status" db:"status"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// BusyInterval is a time window occupied by a blocking booking somewhere in
// the organization, used by the overlap checks. Intervals are half-open
// [Start, End).
type BusyInterval struct {
	SlotID      string    `db:"slot_id"`
	RequesterID string    `db:"requester_id"`
	Start       time.Time `db:"start_at"`
	End         time.Time `db:"end_at"`
}

// Intersects reports strict interval intersection with [start, end).
func (b BusyInterval) Intersects(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// SlotAvailability pairs a slot with its live non-cancelled booking count.
// Produced by the availability query; the count is only advisory -- the
// booking engine re-reads it under its transaction.
type SlotAvailability struct {
	Slot
	ActiveBookings int `json:"active_bookings" db:"active_bookings"`
}

// Free reports whether at least one capacity unit is unclaimed.
func (a SlotAvailability) Free() bool {
	return a.ActiveBookings < a.Capacity
}

// GenerationReport summarizes one bulk slot-generation run for
// observability. Days already populated for the service are skipped
// wholesale rather than deduplicated slot-by-slot.
type GenerationReport struct {
	ServiceID    string         `json:"service_id"`
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	Created      int            `json:"created"`
	CreatedByDay map[string]int `json:"created_by_day"` // key: YYYY-MM-DD
	SkippedDays  []string       `json:"skipped_days,omitempty"`
}
