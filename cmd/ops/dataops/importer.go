package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// geoJSONCollection is the subset of the GeoJSON FeatureCollection
// shape the importer reads.
type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties struct {
		DistrictCode string `json:"district_code"`
		Name         string `json:"name"`
		Description  string `json:"description"`
		County       string `json:"county"`
		Municipality string `json:"municipality"`
		DataSource   string `json:"data_source"`
	} `json:"properties"`
}

// DistrictRecord is one parsed zoning district ready for upsert.
type DistrictRecord struct {
	DistrictCode string
	Name         string
	Description  string
	County       string
	Municipality string
	DataSource   string
	Geometry     json.RawMessage
}

// ImportReport summarizes an import-zoning-data run.
type ImportReport struct {
	Files     []string
	Districts int
	Skipped   int
}

// Print renders the report for the operator.
func (r *ImportReport) Print(w io.Writer, dryRun bool) {
	verb := "imported"
	if dryRun {
		verb = "would import"
	}
	for _, f := range r.Files {
		fmt.Fprintf(w, "parsed %s\n", f)
	}
	fmt.Fprintf(w, "%s %d districts (%d features skipped)\n", verb, r.Districts, r.Skipped)
}

// ImportZoningData loads every GeoJSON file in dir (plain or gzipped)
// and upserts the districts it describes. Imported rows are marked
// is_mock = false; the upsert key is (district_code, county) so reruns
// refresh rather than duplicate.
func ImportZoningData(ctx context.Context, q querier, dir string, dryRun bool) (*ImportReport, error) {
	files, err := listGeoJSONFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no GeoJSON files found in %s", dir)
	}

	report := &ImportReport{}
	for _, path := range files {
		records, skipped, err := parseGeoJSONFile(path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		report.Files = append(report.Files, filepath.Base(path))
		report.Skipped += skipped

		for _, rec := range records {
			if !dryRun {
				if err := upsertDistrict(ctx, q, rec); err != nil {
					return nil, fmt.Errorf("upsert district %s (%s): %w", rec.DistrictCode, rec.County, err)
				}
			}
			report.Districts++
		}
	}

	return report, nil
}

// listGeoJSONFiles returns the data files in dir, sorted for
// deterministic runs.
func listGeoJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".geojson") || strings.HasSuffix(name, ".json") ||
			strings.HasSuffix(name, ".geojson.gz") || strings.HasSuffix(name, ".json.gz") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// parseGeoJSONFile decodes one FeatureCollection, transparently
// decompressing gzipped files. Features missing a district code,
// county, or geometry are skipped and counted rather than failing the
// whole file.
func parseGeoJSONFile(path string) ([]DistrictRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, 0, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	var collection geoJSONCollection
	if err := json.NewDecoder(reader).Decode(&collection); err != nil {
		return nil, 0, fmt.Errorf("decode GeoJSON: %w", err)
	}
	if collection.Type != "FeatureCollection" {
		return nil, 0, fmt.Errorf("expected FeatureCollection, got %q", collection.Type)
	}

	var records []DistrictRecord
	skipped := 0
	for _, feat := range collection.Features {
		p := feat.Properties
		if p.DistrictCode == "" || p.County == "" || len(feat.Geometry) == 0 {
			skipped++
			continue
		}
		records = append(records, DistrictRecord{
			DistrictCode: p.DistrictCode,
			Name:         p.Name,
			Description:  p.Description,
			County:       p.County,
			Municipality: p.Municipality,
			DataSource:   p.DataSource,
			Geometry:     feat.Geometry,
		})
	}

	return records, skipped, nil
}

func upsertDistrict(ctx context.Context, q querier, rec DistrictRecord) error {
	const stmt = `
		INSERT INTO zoning_districts
			(district_code, name, description, county, municipality, state,
			 geometry, is_mock, data_source, last_verified_at)
		VALUES ($1, $2, $3, $4, $5, 'DE',
			ST_SetSRID(ST_GeomFromGeoJSON($6), 4326), FALSE, $7, NOW())
		ON CONFLICT (district_code, county) DO UPDATE SET
			name             = EXCLUDED.name,
			description      = EXCLUDED.description,
			municipality     = EXCLUDED.municipality,
			geometry         = EXCLUDED.geometry,
			is_mock          = FALSE,
			data_source      = EXCLUDED.data_source,
			last_verified_at = NOW()`

	_, err := q.Exec(ctx, stmt,
		rec.DistrictCode, rec.Name, rec.Description, rec.County,
		rec.Municipality, string(rec.Geometry), rec.DataSource)
	return err
}
