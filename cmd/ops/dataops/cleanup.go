package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the slice of the pgx pool API the dataops commands use.
// Tests substitute an in-memory fake.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// cleanupCounties fixes the deletion order. Deleting is idempotent
// either way; the fixed order keeps runs comparable across
// environments.
var cleanupCounties = []string{"New Castle", "Kent", "Sussex"}

// mockChildTables are deleted before their parent districts to respect
// foreign keys.
var mockChildTables = []string{
	"permitted_uses",
	"dimensional_standards",
	"required_permits",
}

// CountyCleanup reports what was (or would be) removed for one county.
type CountyCleanup struct {
	County    string
	Children  int64
	Districts int64
}

// CleanupReport summarizes a cleanup-mock-data run.
type CleanupReport struct {
	Counties []CountyCleanup
}

// Total returns the combined number of rows affected.
func (r *CleanupReport) Total() int64 {
	var n int64
	for _, c := range r.Counties {
		n += c.Children + c.Districts
	}
	return n
}

// Print renders the report for the operator.
func (r *CleanupReport) Print(w io.Writer, dryRun bool) {
	verb := "deleted"
	if dryRun {
		verb = "would delete"
	}
	for _, c := range r.Counties {
		fmt.Fprintf(w, "%s: %s %d child rows, %d districts\n", c.County, verb, c.Children, c.Districts)
	}
	fmt.Fprintf(w, "total: %d rows\n", r.Total())
	if r.Total() == 0 {
		fmt.Fprintln(w, "no mock data found (already clean)")
	}
}

// CleanupMockData removes every row flagged is_mock, child tables
// before districts, county by county. The operation is idempotent:
// rerunning against a clean database deletes nothing.
func CleanupMockData(ctx context.Context, q querier, dryRun bool) (*CleanupReport, error) {
	report := &CleanupReport{}

	for _, county := range cleanupCounties {
		cc := CountyCleanup{County: county}

		for _, table := range mockChildTables {
			if dryRun {
				count, err := countRows(ctx, q, fmt.Sprintf(
					`SELECT COUNT(*) FROM %s
					 WHERE district_id IN (SELECT id FROM zoning_districts WHERE is_mock AND county = $1)`,
					table), county)
				if err != nil {
					return nil, fmt.Errorf("count mock rows in %s for %s: %w", table, county, err)
				}
				cc.Children += count
				continue
			}

			tag, err := q.Exec(ctx, fmt.Sprintf(
				`DELETE FROM %s
				 WHERE district_id IN (SELECT id FROM zoning_districts WHERE is_mock AND county = $1)`,
				table), county)
			if err != nil {
				return nil, fmt.Errorf("delete mock rows from %s for %s: %w", table, county, err)
			}
			cc.Children += tag.RowsAffected()
		}

		if dryRun {
			count, err := countRows(ctx, q,
				`SELECT COUNT(*) FROM zoning_districts WHERE is_mock AND county = $1`, county)
			if err != nil {
				return nil, fmt.Errorf("count mock districts for %s: %w", county, err)
			}
			cc.Districts = count
		} else {
			tag, err := q.Exec(ctx,
				`DELETE FROM zoning_districts WHERE is_mock AND county = $1`, county)
			if err != nil {
				return nil, fmt.Errorf("delete mock districts for %s: %w", county, err)
			}
			cc.Districts = tag.RowsAffected()
		}

		report.Counties = append(report.Counties, cc)
	}

	return report, nil
}

func countRows(ctx context.Context, q querier, sql string, args ...any) (int64, error) {
	var n int64
	if err := q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
