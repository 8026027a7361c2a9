// Package plans provides plan tier management and limit enforcement for
// the scheduling engine.
package plans

import "slotbook/internal/types"

// Registry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type Registry interface {
	// GetLimits returns the resource limits for the given plan tier.
	// For unknown tiers, returns the most restrictive (Free) limits
	// to fail safely.
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// staticRegistry is a compile-time plan registry backed by an in-memory map.
// It implements Registry and is the standard implementation for production use.
type staticRegistry struct {
	limits map[types.PlanTier]types.PlanLimits
}

// planDefaults defines the hardcoded plan limits.
//
//	| Plan       | Services  | Bookings/Period | Orgs/Owner |
//	|------------|-----------|-----------------|------------|
//	| Free       | 15        | 100             | 1          |
//	| Pro        | 50        | 2,000           | 3          |
//	| Enterprise | unlimited | unlimited       | unlimited  |
var planDefaults = map[types.PlanTier]types.PlanLimits{
	types.PlanFree: {
		MaxServices:          types.Finite(15),
		MaxBookingsPerPeriod: types.Finite(100),
		MaxOrganizations:     types.Finite(1),
	},
	types.PlanPro: {
		MaxServices:          types.Finite(50),
		MaxBookingsPerPeriod: types.Finite(2000),
		MaxOrganizations:     types.Finite(3),
	},
	types.PlanEnterprise: {
		MaxServices:          types.Unlimited(),
		MaxBookingsPerPeriod: types.Unlimited(),
		MaxOrganizations:     types.Unlimited(),
	},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = planDefaults[types.PlanFree]

// NewStaticRegistry returns a Registry backed by the hardcoded plan limits.
// This is the standard production implementation; no database or external
// service is required.
func NewStaticRegistry() Registry {
	// Copy the defaults into a new map so callers cannot mutate the
	// package-level variable.
	m := make(map[types.PlanTier]types.PlanLimits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticRegistry{limits: m}
}

// GetLimits returns the resource limits for the given plan tier.
// If the tier is unknown, it returns the Free tier limits as a safe default.
func (r *staticRegistry) GetLimits(tier types.PlanTier) types.PlanLimits {
	if limits, ok := r.limits[tier]; ok {
		return limits
	}
	return freeLimits
}
