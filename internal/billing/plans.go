package billing

import "zoneatlas/internal/types"

func intPtr(v int) *int { return &v }

// planDefaults holds the canonical usage ceilings per tier. A nil limit
// means unlimited.
var planDefaults = map[types.PlanTier]types.PlanLimits{
	types.PlanTierFree: {
		Tier:        types.PlanTierFree,
		SearchLimit: intPtr(3),
		SaveLimit:   intPtr(1),
		ExportLimit: intPtr(0),
	},
	types.PlanTierPro: {
		Tier:        types.PlanTierPro,
		SearchLimit: intPtr(100),
		SaveLimit:   intPtr(50),
		ExportLimit: intPtr(25),
	},
	types.PlanTierBusiness: {
		Tier:        types.PlanTierBusiness,
		SearchLimit: nil,
		SaveLimit:   nil,
		ExportLimit: nil,
	},
}

// PlanRegistry resolves usage limits for a tier.
type PlanRegistry interface {
	Limits(tier types.PlanTier) types.PlanLimits
}

type staticPlanRegistry struct{}

// NewStaticPlanRegistry returns the compiled-in plan registry.
func NewStaticPlanRegistry() PlanRegistry {
	return staticPlanRegistry{}
}

// Limits returns the limits for the given tier. Unknown tiers fall back
// to the free tier so a bad tier value can never grant unlimited usage.
func (staticPlanRegistry) Limits(tier types.PlanTier) types.PlanLimits {
	if limits, ok := planDefaults[tier]; ok {
		return limits
	}
	return planDefaults[types.PlanTierFree]
}
