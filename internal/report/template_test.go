package report

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneatlas/internal/types"
)

func float64Ptr(v float64) *float64 { return &v }

func TestBuildReportHTML_FullResult(t *testing.T) {
	result := &types.ZoningResult{
		Address:     "800 N French St, Wilmington, DE",
		Coordinates: types.Coordinates{Latitude: 39.7447, Longitude: -75.5484},
		Zoning: types.ZoningDistrict{
			ID:           uuid.New(),
			DistrictCode: "C-3",
			Name:         "Central Business District",
			County:       types.CountyNewCastle,
			Municipality: "Wilmington",
			State:        "DE",
		},
		PermittedUses: []types.PermittedUse{
			{Category: "Commercial", UseType: "Retail", Status: types.UseStatusAllowed},
			{Category: "Industrial", UseType: "Warehousing", Status: types.UseStatusNotAllowed},
		},
		DimensionalStandards: &types.DimensionalStandard{
			MaxHeightFt:    float64Ptr(85),
			MinLotAreaSqFt: float64Ptr(5000),
		},
		RequiredPermits: []types.RequiredPermit{
			{PermitType: "Building Permit", Required: true},
		},
		FloodZone: &types.FloodZone{ZoneCode: "AE", RiskLevel: "high"},
	}

	html, err := BuildReportHTML(result, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Contains(t, html, "800 N French St, Wilmington, DE")
	assert.Contains(t, html, "C-3")
	assert.Contains(t, html, "Central Business District")
	assert.Contains(t, html, "New Castle County, Wilmington, DE")
	assert.Contains(t, html, "Retail")
	assert.Contains(t, html, "85.0 ft")
	assert.Contains(t, html, "5000 sq ft")
	assert.Contains(t, html, "Building Permit")
	assert.Contains(t, html, "FEMA Zone AE")
	assert.Contains(t, html, "September 1, 2026")
}

func TestBuildReportHTML_SparseResult(t *testing.T) {
	result := &types.ZoningResult{
		Coordinates: types.Coordinates{Latitude: 38.6871, Longitude: -75.3894},
		Zoning: types.ZoningDistrict{
			ID:           uuid.New(),
			DistrictCode: "AR-1",
			Name:         "Agricultural Residential",
			County:       types.CountySussex,
			State:        "DE",
		},
	}

	html, err := BuildReportHTML(result, time.Now())
	require.NoError(t, err)

	assert.Contains(t, html, "AR-1")
	assert.Contains(t, html, "No permitted use records on file")
	assert.Contains(t, html, "No dimensional standards on file")
	assert.Contains(t, html, "No permit requirements on file")
	assert.Contains(t, html, "No mapped FEMA flood zone")
}

func TestBuildReportHTML_EscapesUserInput(t *testing.T) {
	result := &types.ZoningResult{
		Address: `<script>alert("x")</script>`,
		Zoning: types.ZoningDistrict{
			DistrictCode: "C-1",
			County:       types.CountyKent,
			State:        "DE",
		},
	}

	html, err := BuildReportHTML(result, time.Now())
	require.NoError(t, err)

	assert.False(t, strings.Contains(html, `<script>alert`), "address must be HTML-escaped")
}
