package types

// PlanLimits captures the per-tier usage ceilings. A nil limit means
// unlimited.
type PlanLimits struct {
	Tier        PlanTier `json:"tier"`
	SearchLimit *int     `json:"searchLimit"`
	SaveLimit   *int     `json:"saveLimit"`
	ExportLimit *int     `json:"exportLimit"`
}

// FieldVisibility is the set of data fields a tier may see in a zoning
// lookup response.
type FieldVisibility struct {
	DimensionalStandards bool `json:"dimensionalStandards"`
	Parking              bool `json:"parking"`
	DetailedUses         bool `json:"detailedUses"`
	FloodZone            bool `json:"floodZone"`
	RequiredPermits      bool `json:"requiredPermits"`
	OverlayDistricts     bool `json:"overlayDistricts"`
	ZoningContact        bool `json:"zoningContact"`
}

// Includes reports whether every field visible in other is also visible
// in v. Used to verify tier monotonicity.
func (v FieldVisibility) Includes(other FieldVisibility) bool {
	check := func(mine, theirs bool) bool { return mine || !theirs }
	return check(v.DimensionalStandards, other.DimensionalStandards) &&
		check(v.Parking, other.Parking) &&
		check(v.DetailedUses, other.DetailedUses) &&
		check(v.FloodZone, other.FloodZone) &&
		check(v.RequiredPermits, other.RequiredPermits) &&
		check(v.OverlayDistricts, other.OverlayDistricts) &&
		check(v.ZoningContact, other.ZoningContact)
}
