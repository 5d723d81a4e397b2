package main

import (
	"context"
	"fmt"
	"io"
)

// CheckStatus grades one verification check.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is one verification result.
type Check struct {
	Name    string
	Status  CheckStatus
	Message string
}

// VerifyReport summarizes a verify-production-data run.
type VerifyReport struct {
	Checks []Check
}

// Failed reports whether any check failed outright. Warnings do not
// fail the run.
func (r *VerifyReport) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == CheckFail {
			return true
		}
	}
	return false
}

// Print renders the report for the operator.
func (r *VerifyReport) Print(w io.Writer) {
	for _, c := range r.Checks {
		fmt.Fprintf(w, "[%-4s] %s: %s\n", c.Status, c.Name, c.Message)
	}
	if r.Failed() {
		fmt.Fprintln(w, "verification FAILED")
	} else {
		fmt.Fprintln(w, "verification passed")
	}
}

func (r *VerifyReport) add(name string, status CheckStatus, format string, args ...any) {
	r.Checks = append(r.Checks, Check{
		Name:    name,
		Status:  status,
		Message: fmt.Sprintf(format, args...),
	})
}

// VerifyProductionData runs the production readiness checks: district
// counts per county, orphaned child rows, leftover mock data, and
// districts missing geometry.
func VerifyProductionData(ctx context.Context, q querier) (*VerifyReport, error) {
	report := &VerifyReport{}

	// Per-county district counts. Zero districts in a Delaware county
	// means the import never ran there.
	for _, county := range cleanupCounties {
		count, err := countRows(ctx, q,
			`SELECT COUNT(*) FROM zoning_districts WHERE county = $1 AND NOT is_mock`, county)
		if err != nil {
			return nil, fmt.Errorf("count districts for %s: %w", county, err)
		}
		if count == 0 {
			report.add("districts/"+county, CheckFail, "no production districts")
		} else {
			report.add("districts/"+county, CheckOK, "%d districts", count)
		}
	}

	// Orphaned children point at deleted districts; they should be
	// impossible with foreign keys enforced.
	for _, table := range mockChildTables {
		count, err := countRows(ctx, q, fmt.Sprintf(
			`SELECT COUNT(*) FROM %s c
			 WHERE NOT EXISTS (SELECT 1 FROM zoning_districts d WHERE d.id = c.district_id)`, table))
		if err != nil {
			return nil, fmt.Errorf("count orphans in %s: %w", table, err)
		}
		if count > 0 {
			report.add("orphans/"+table, CheckFail, "%d rows reference missing districts", count)
		} else {
			report.add("orphans/"+table, CheckOK, "none")
		}
	}

	// Leftover mock rows are a warning: harmless to serving, but the
	// cleanup should be rerun.
	mockCount, err := countRows(ctx, q, `SELECT COUNT(*) FROM zoning_districts WHERE is_mock`)
	if err != nil {
		return nil, fmt.Errorf("count mock districts: %w", err)
	}
	if mockCount > 0 {
		report.add("mock-leftovers", CheckWarn, "%d mock districts remain (run cleanup-mock-data)", mockCount)
	} else {
		report.add("mock-leftovers", CheckOK, "none")
	}

	// Districts without geometry can never match a point lookup.
	missingGeom, err := countRows(ctx, q,
		`SELECT COUNT(*) FROM zoning_districts WHERE geometry IS NULL AND NOT is_mock`)
	if err != nil {
		return nil, fmt.Errorf("count missing geometry: %w", err)
	}
	if missingGeom > 0 {
		report.add("geometry", CheckFail, "%d districts missing geometry", missingGeom)
	} else {
		report.add("geometry", CheckOK, "all districts have geometry")
	}

	return report, nil
}
