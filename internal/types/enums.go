package types

// PlanTier identifies the subscription plan for an organization.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// SubscriptionStatus represents the state of an organization's subscription.
type SubscriptionStatus string

const (
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusCancelled SubscriptionStatus = "cancelled"
	SubStatusExpired   SubscriptionStatus = "expired"
)

// BookingStatus represents the lifecycle state of a booking.
//
// Transitions: pending -> confirmed, pending -> cancelled,
// confirmed -> cancelled. Cancelled is terminal.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Active reports whether the status occupies a capacity unit and blocks
// overlapping bookings under the default overlap policy.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// Terminal reports whether the status admits no further transitions.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled
}

// CanTransition reports whether the state machine permits moving from s to next.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	switch s {
	case BookingPending:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCancelled
	default:
		return false
	}
}

// OverlapPolicy selects which booking states block a cross-service time
// overlap within the same organization. The product default is to treat
// both pending and confirmed bookings as blocking; organizations that
// auto-confirm can relax this to confirmed-only.
type OverlapPolicy string

const (
	// OverlapBlockActive blocks on any non-cancelled booking.
	OverlapBlockActive OverlapPolicy = "block_active"
	// OverlapBlockConfirmed blocks only on confirmed bookings.
	OverlapBlockConfirmed OverlapPolicy = "block_confirmed"
)

// Blocks reports whether a booking in the given status blocks overlapping
// reservations under this policy.
func (p OverlapPolicy) Blocks(s BookingStatus) bool {
	switch p {
	case OverlapBlockConfirmed:
		return s == BookingConfirmed
	default:
		return s.Active()
	}
}

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeStaff  ActorType = "staff"
	ActorTypeClient ActorType = "client"
	ActorTypeSystem ActorType = "system"
)
