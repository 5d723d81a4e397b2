package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"zoneatlas/internal/types"
)

// ZoningRepo provides read access to the zoning dataset: districts,
// permitted uses, dimensional standards, required permits, and the
// flood zone layer. All tables are written only by the import tooling.
type ZoningRepo struct {
	db     DBTX
	logger types.Logger
}

// NewZoningRepo creates a new ZoningRepo backed by the given database
// connection (pool or transaction).
func NewZoningRepo(db DBTX, logger types.Logger) *ZoningRepo {
	return &ZoningRepo{db: db, logger: logger}
}

// FindDistrictAtPoint returns the zoning district whose polygon contains
// the given coordinate, or a not-found error when the point lies outside
// every polygon.
//
// When overlapping polygons both contain the point (a data integrity
// problem) the first row in insertion order wins and the overlap is
// logged at warn level for the data owner to resolve.
func (r *ZoningRepo) FindDistrictAtPoint(ctx context.Context, lat, lon float64) (*types.ZoningDistrict, error) {
	const query = `
		SELECT id, district_code, name, COALESCE(description, ''),
		       county, COALESCE(municipality, ''), state,
		       is_mock, COALESCE(data_source, ''), last_verified_at, created_at
		FROM zoning_districts
		WHERE ST_Contains(geometry, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY created_at ASC
		LIMIT 2`

	rows, err := r.db.Query(ctx, query, lon, lat)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "zoning point query failed", err)
	}
	defer rows.Close()

	var districts []types.ZoningDistrict
	for rows.Next() {
		var d types.ZoningDistrict
		if err := rows.Scan(
			&d.ID, &d.DistrictCode, &d.Name, &d.Description,
			&d.County, &d.Municipality, &d.State,
			&d.IsMock, &d.DataSource, &d.LastVerifiedAt, &d.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan zoning district row", err)
		}
		districts = append(districts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating zoning district rows", err)
	}

	if len(districts) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundZoning, "no zoning district found at coordinates", nil)
	}
	if len(districts) > 1 {
		r.logger.Warn("overlapping zoning polygons at point, taking first row",
			"lat", lat, "lon", lon,
			"kept", districts[0].DistrictCode, "dropped", districts[1].DistrictCode)
	}
	return &districts[0], nil
}

// FindFloodZoneAtPoint returns the FEMA flood zone containing the
// coordinate, or nil when the point lies outside every flood polygon.
func (r *ZoningRepo) FindFloodZoneAtPoint(ctx context.Context, lat, lon float64) (*types.FloodZone, error) {
	const query = `
		SELECT zone_code, risk_level, COALESCE(description, '')
		FROM flood_zones
		WHERE ST_Contains(geometry, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		LIMIT 1`

	var fz types.FloodZone
	err := r.db.QueryRow(ctx, query, lon, lat).Scan(&fz.ZoneCode, &fz.RiskLevel, &fz.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "flood zone query failed", err)
	}
	return &fz, nil
}

// ListPermittedUses returns all permitted use rows for a district.
func (r *ZoningRepo) ListPermittedUses(ctx context.Context, districtID uuid.UUID) ([]types.PermittedUse, error) {
	const query = `
		SELECT id, district_id, category, use_type, status,
		       COALESCE(conditions, ''), COALESCE(notes, '')
		FROM permitted_uses
		WHERE district_id = $1
		ORDER BY category, use_type`

	rows, err := r.db.Query(ctx, query, districtID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "permitted uses query failed", err)
	}
	defer rows.Close()

	var uses []types.PermittedUse
	for rows.Next() {
		var u types.PermittedUse
		if err := rows.Scan(&u.ID, &u.DistrictID, &u.Category, &u.UseType, &u.Status, &u.Conditions, &u.Notes); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan permitted use row", err)
		}
		uses = append(uses, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating permitted use rows", err)
	}
	return uses, nil
}

// GetDimensionalStandard returns the dimensional standard for a district,
// or nil when none is recorded. At most one row exists per district.
func (r *ZoningRepo) GetDimensionalStandard(ctx context.Context, districtID uuid.UUID) (*types.DimensionalStandard, error) {
	const query = `
		SELECT id, district_id, front_setback_ft, side_setback_ft, rear_setback_ft,
		       max_height_ft, min_lot_area_sqft, min_lot_width_ft, floor_area_ratio,
		       parking_ratio, COALESCE(parking_notes, '')
		FROM dimensional_standards
		WHERE district_id = $1`

	var ds types.DimensionalStandard
	err := r.db.QueryRow(ctx, query, districtID).Scan(
		&ds.ID, &ds.DistrictID, &ds.FrontSetbackFt, &ds.SideSetbackFt, &ds.RearSetbackFt,
		&ds.MaxHeightFt, &ds.MinLotAreaSqFt, &ds.MinLotWidthFt, &ds.FloorAreaRatio,
		&ds.ParkingRatio, &ds.ParkingNotes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "dimensional standard query failed", err)
	}
	return &ds, nil
}

// ListRequiredPermits returns all required permit rows for a district.
func (r *ZoningRepo) ListRequiredPermits(ctx context.Context, districtID uuid.UUID) ([]types.RequiredPermit, error) {
	const query = `
		SELECT id, district_id, permit_type, required, conditional,
		       COALESCE(description, ''), COALESCE(external_url, '')
		FROM required_permits
		WHERE district_id = $1
		ORDER BY permit_type`

	rows, err := r.db.Query(ctx, query, districtID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "required permits query failed", err)
	}
	defer rows.Close()

	var permits []types.RequiredPermit
	for rows.Next() {
		var p types.RequiredPermit
		if err := rows.Scan(&p.ID, &p.DistrictID, &p.PermitType, &p.Required, &p.Conditional, &p.Description, &p.ExternalURL); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan required permit row", err)
		}
		permits = append(permits, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating required permit rows", err)
	}
	return permits, nil
}
