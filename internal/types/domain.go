package types

import (
	"time"

	"github.com/google/uuid"
)

// ZoningDistrict represents an authoritative zoning polygon with its
// code, name, and jurisdiction. Rows are created by the import tooling
// and are read-only at request time.
type ZoningDistrict struct {
	ID             uuid.UUID `json:"id" db:"id"`
	DistrictCode   string    `json:"districtCode" db:"district_code"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description,omitempty" db:"description"`
	County         County    `json:"county" db:"county"`
	Municipality   string    `json:"municipality,omitempty" db:"municipality"`
	State          string    `json:"state" db:"state"`
	IsMock         bool      `json:"-" db:"is_mock"`
	DataSource     string    `json:"dataSource,omitempty" db:"data_source"`
	LastVerifiedAt time.Time `json:"lastVerifiedAt" db:"last_verified_at"`
	CreatedAt      time.Time `json:"-" db:"created_at"`
}

// PermittedUse classifies a land use within a zoning district.
type PermittedUse struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DistrictID uuid.UUID `json:"-" db:"district_id"`
	Category   string    `json:"category" db:"category"`
	UseType    string    `json:"useType" db:"use_type"`
	Status     UseStatus `json:"status" db:"status"`
	Conditions string    `json:"conditions,omitempty" db:"conditions"`
	Notes      string    `json:"notes,omitempty" db:"notes"`
}

// DimensionalStandard holds the numeric building and lot constraints for
// a district. At most one row exists per district.
type DimensionalStandard struct {
	ID                uuid.UUID `json:"id" db:"id"`
	DistrictID        uuid.UUID `json:"-" db:"district_id"`
	FrontSetbackFt    *float64  `json:"frontSetbackFt" db:"front_setback_ft"`
	SideSetbackFt     *float64  `json:"sideSetbackFt" db:"side_setback_ft"`
	RearSetbackFt     *float64  `json:"rearSetbackFt" db:"rear_setback_ft"`
	MaxHeightFt       *float64  `json:"maxHeightFt" db:"max_height_ft"`
	MinLotAreaSqFt    *float64  `json:"minLotAreaSqFt" db:"min_lot_area_sqft"`
	MinLotWidthFt     *float64  `json:"minLotWidthFt" db:"min_lot_width_ft"`
	FloorAreaRatio    *float64  `json:"floorAreaRatio" db:"floor_area_ratio"`
	ParkingRatio      *float64  `json:"parkingRatio,omitempty" db:"parking_ratio"`
	ParkingNotes      string    `json:"parkingNotes,omitempty" db:"parking_notes"`
}

// RequiredPermit describes a permit a district requires or may require.
type RequiredPermit struct {
	ID          uuid.UUID `json:"id" db:"id"`
	DistrictID  uuid.UUID `json:"-" db:"district_id"`
	PermitType  string    `json:"permitType" db:"permit_type"`
	Required    bool      `json:"required" db:"required"`
	Conditional bool      `json:"conditional" db:"conditional"`
	Description string    `json:"description,omitempty" db:"description"`
	ExternalURL string    `json:"externalUrl,omitempty" db:"external_url"`
}

// FloodZone is the FEMA flood classification at a coordinate. It is
// queried per point against a separate layer, not owned by a district.
type FloodZone struct {
	ZoneCode    string `json:"zoneCode" db:"zone_code"`
	RiskLevel   string `json:"riskLevel" db:"risk_level"`
	Description string `json:"description,omitempty" db:"description"`
}

// Coordinates is a latitude/longitude pair in WGS84.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// ZoningResult is the assembled lookup response for one coordinate.
// Fields the requester's tier does not grant are left nil/empty.
type ZoningResult struct {
	Address             string               `json:"address,omitempty"`
	Coordinates         Coordinates          `json:"coordinates"`
	Zoning              ZoningDistrict       `json:"zoning"`
	PermittedUses       []PermittedUse       `json:"permittedUses"`
	DimensionalStandards *DimensionalStandard `json:"dimensionalStandards"`
	RequiredPermits     []RequiredPermit     `json:"requiredPermits"`
	FloodZone           *FloodZone           `json:"floodZone"`
}

// UserSubscription mirrors the Stripe-side subscription state for one
// user. Mutated exclusively by the webhook handlers; read by every
// tier-gated code path.
type UserSubscription struct {
	ID                   uuid.UUID          `json:"id" db:"id"`
	UserID               uuid.UUID          `json:"userId" db:"user_id"`
	Tier                 PlanTier           `json:"tier" db:"tier"`
	Status               SubscriptionStatus `json:"status" db:"status"`
	SearchLimit          *int               `json:"searchLimit" db:"search_limit"`
	SaveLimit            *int               `json:"saveLimit" db:"save_limit"`
	ExportLimit          *int               `json:"exportLimit" db:"export_limit"`
	CurrentPeriodStart   time.Time          `json:"currentPeriodStart" db:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"currentPeriodEnd" db:"current_period_end"`
	StripeCustomerID     string             `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID string             `json:"-" db:"stripe_subscription_id"`
	CreatedAt            time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time          `json:"updatedAt" db:"updated_at"`
}

// SearchHistoryEntry records one completed search by an authenticated
// user. Append-only.
type SearchHistoryEntry struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       uuid.UUID  `json:"userId" db:"user_id"`
	Address      string     `json:"address" db:"address"`
	Latitude     float64    `json:"lat" db:"latitude"`
	Longitude    float64    `json:"lon" db:"longitude"`
	DistrictID   *uuid.UUID `json:"districtId,omitempty" db:"district_id"`
	DistrictCode string     `json:"districtCode,omitempty" db:"district_code"`
	SearchedAt   time.Time  `json:"searchedAt" db:"searched_at"`
}

// UsageDecision is the outcome of one atomic quota consumption attempt.
type UsageDecision struct {
	Allowed   bool     `json:"allowed"`
	Used      int      `json:"used"`
	Limit     *int     `json:"limit"`
	Tier      PlanTier `json:"tier"`
	Unlimited bool     `json:"unlimited"`
}

// ReportPurchase tracks one one-time PDF report purchase through the
// delivery pipeline. State transitions are validated by PurchaseState.
type ReportPurchase struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	UserID          *uuid.UUID    `json:"userId,omitempty" db:"user_id"`
	Email           string        `json:"email" db:"email"`
	Address         string        `json:"address" db:"address"`
	Latitude        float64       `json:"lat" db:"latitude"`
	Longitude       float64       `json:"lon" db:"longitude"`
	StripeSessionID string        `json:"-" db:"stripe_session_id"`
	State           PurchaseState `json:"state" db:"state"`
	ErrorMessage    string        `json:"errorMessage,omitempty" db:"error_message"`
	ErroredState    PurchaseState `json:"erroredState,omitempty" db:"errored_state"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty" db:"completed_at"`
}

// APIToken is a bearer token for programmatic access. The secret is
// stored as a bcrypt hash; the prefix is stored in clear for lookup.
type APIToken struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"userId" db:"user_id"`
	Name       string     `json:"name" db:"name"`
	Prefix     string     `json:"prefix" db:"prefix"`
	SecretHash string     `json:"-" db:"secret_hash"`
	IsTestMode bool       `json:"isTestMode" db:"is_test_mode"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty" db:"revoked_at"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" db:"last_used_at"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

// ReportJob is the queue message that triggers report pipeline
// processing for one purchase.
type ReportJob struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	Source     string    `json:"source"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
