package types

import (
	"encoding/json"
	"fmt"
)

// Limit is a tagged plan ceiling: either a finite count or unlimited.
//
// The previous generation of the platform encoded "unlimited" as the
// sentinel value -1, which repeatedly produced off-by-sign bugs in
// count-vs-limit comparisons. Limit keeps the two cases distinct in the
// type system; the sentinel survives only at the JSON boundary for
// wire compatibility.
type Limit struct {
	n         int
	unlimited bool
}

// Finite returns a Limit capped at n. Negative values are clamped to zero.
func Finite(n int) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// Unlimited returns a Limit with no ceiling.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// IsUnlimited reports whether the limit has no ceiling.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Value returns the finite ceiling and true, or 0 and false when unlimited.
func (l Limit) Value() (int, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Allows reports whether a post-mutation count of current+1 would still
// be within the limit.
func (l Limit) Allows(current int) bool {
	if l.unlimited {
		return true
	}
	return current < l.n
}

// Remaining returns how many more entities may be created, and true.
// For unlimited limits it returns 0 and false.
func (l Limit) Remaining(current int) (int, bool) {
	if l.unlimited {
		return 0, false
	}
	r := l.n - current
	if r < 0 {
		r = 0
	}
	return r, true
}

// String implements fmt.Stringer for log output.
func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.n)
}

// MarshalJSON encodes unlimited as -1 for wire compatibility with the
// legacy schema. This is the ONLY place the sentinel appears.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal(-1)
	}
	return json.Marshal(l.n)
}

// UnmarshalJSON decodes the legacy wire encoding: any negative value
// means unlimited.
func (l *Limit) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n < 0 {
		*l = Unlimited()
		return nil
	}
	*l = Finite(n)
	return nil
}

// PlanLimits is the set of ceilings derived from an organization's plan.
// Limits are computed from the plan enum at check time and never stored.
type PlanLimits struct {
	// MaxServices caps active services per organization (total).
	MaxServices Limit `json:"max_services"`
	// MaxBookingsPerPeriod caps non-cancelled bookings created within the
	// current billing period.
	MaxBookingsPerPeriod Limit `json:"max_bookings_per_period"`
	// MaxOrganizations caps organizations per owner (total).
	MaxOrganizations Limit `json:"max_organizations"`
}
