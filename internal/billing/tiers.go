// Package billing holds the plan tier policy: which data fields each
// subscription tier may see and which usage ceilings apply. Entitlement
// state itself lives in Stripe and is mirrored locally by the webhook
// handlers.
package billing

import "zoneatlas/internal/types"

// tierVisibility is the authoritative map from tier to visible fields.
// Visibility must be monotonic across tiers: everything free sees, pro
// sees; everything pro sees, business sees.
var tierVisibility = map[types.PlanTier]types.FieldVisibility{
	types.PlanTierFree: {
		DimensionalStandards: false,
		Parking:              false,
		DetailedUses:         false,
		FloodZone:            false,
		RequiredPermits:      false,
		OverlayDistricts:     false,
		ZoningContact:        false,
	},
	types.PlanTierPro: {
		DimensionalStandards: true,
		Parking:              true,
		DetailedUses:         true,
		FloodZone:            true,
		RequiredPermits:      false,
		OverlayDistricts:     false,
		ZoningContact:        false,
	},
	types.PlanTierBusiness: {
		DimensionalStandards: true,
		Parking:              true,
		DetailedUses:         true,
		FloodZone:            true,
		RequiredPermits:      true,
		OverlayDistricts:     true,
		ZoningContact:        true,
	},
}

// VisibleFields returns the field visibility for a tier. Unknown tiers
// fail closed to the free tier because this gates data exposure.
func VisibleFields(tier types.PlanTier) types.FieldVisibility {
	if v, ok := tierVisibility[tier]; ok {
		return v
	}
	return tierVisibility[types.PlanTierFree]
}

// FullVisibility grants every field. Used by the report pipeline, where
// the purchaser has paid for the complete data set regardless of their
// subscription tier.
func FullVisibility() types.FieldVisibility {
	return tierVisibility[types.PlanTierBusiness]
}
