package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"zoneatlas/internal/types"
)

// reportTemplateData is the view model for the PDF report template.
type reportTemplateData struct {
	Result      *types.ZoningResult
	GeneratedAt string
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"feet": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.1f ft", *v)
	},
	"sqft": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.0f sq ft", *v)
	},
	"ratio": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.2f", *v)
	},
}).Parse(reportHTML))

// BuildReportHTML renders the zoning result into the report document.
// This is deterministic: a failure here is a template or data bug and
// is never retried.
func BuildReportHTML(result *types.ZoningResult, generatedAt time.Time) (string, error) {
	var buf bytes.Buffer
	data := reportTemplateData{
		Result:      result,
		GeneratedAt: generatedAt.UTC().Format("January 2, 2006"),
	}
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalRender,
			"failed to render report template", err)
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; color: #1a202c; margin: 0; font-size: 12px; }
  h1 { font-size: 22px; margin-bottom: 2px; }
  h2 { font-size: 14px; border-bottom: 2px solid #2b6cb0; padding-bottom: 4px; margin-top: 24px; }
  .subtitle { color: #4a5568; margin-bottom: 18px; }
  .badge { display: inline-block; background: #2b6cb0; color: #fff; padding: 3px 10px; border-radius: 3px; font-size: 13px; }
  table { width: 100%; border-collapse: collapse; margin-top: 8px; }
  th, td { text-align: left; padding: 5px 8px; border-bottom: 1px solid #e2e8f0; }
  th { background: #f7fafc; font-weight: 600; }
  .status-allowed { color: #276749; }
  .status-conditional { color: #975a16; }
  .status-not_allowed { color: #9b2c2c; }
  .footer { margin-top: 32px; font-size: 10px; color: #718096; border-top: 1px solid #e2e8f0; padding-top: 8px; }
</style>
</head>
<body>
  <h1>Zoning Report</h1>
  <div class="subtitle">
    {{if .Result.Address}}{{.Result.Address}}<br>{{end}}
    {{printf "%.6f" .Result.Coordinates.Latitude}}, {{printf "%.6f" .Result.Coordinates.Longitude}}
  </div>

  <h2>Zoning District</h2>
  <p>
    <span class="badge">{{.Result.Zoning.DistrictCode}}</span>
    <strong>{{.Result.Zoning.Name}}</strong><br>
    {{.Result.Zoning.County}} County{{if .Result.Zoning.Municipality}}, {{.Result.Zoning.Municipality}}{{end}}, {{.Result.Zoning.State}}
  </p>
  {{if .Result.Zoning.Description}}<p>{{.Result.Zoning.Description}}</p>{{end}}

  <h2>Permitted Uses</h2>
  {{if .Result.PermittedUses}}
  <table>
    <tr><th>Category</th><th>Use</th><th>Status</th><th>Conditions</th></tr>
    {{range .Result.PermittedUses}}
    <tr>
      <td>{{.Category}}</td>
      <td>{{.UseType}}</td>
      <td class="status-{{.Status}}">{{.Status}}</td>
      <td>{{.Conditions}}</td>
    </tr>
    {{end}}
  </table>
  {{else}}<p>No permitted use records on file for this district.</p>{{end}}

  <h2>Dimensional Standards</h2>
  {{with .Result.DimensionalStandards}}
  <table>
    <tr><td>Front setback</td><td>{{feet .FrontSetbackFt}}</td></tr>
    <tr><td>Side setback</td><td>{{feet .SideSetbackFt}}</td></tr>
    <tr><td>Rear setback</td><td>{{feet .RearSetbackFt}}</td></tr>
    <tr><td>Maximum height</td><td>{{feet .MaxHeightFt}}</td></tr>
    <tr><td>Minimum lot area</td><td>{{sqft .MinLotAreaSqFt}}</td></tr>
    <tr><td>Minimum lot width</td><td>{{feet .MinLotWidthFt}}</td></tr>
    <tr><td>Floor-area ratio</td><td>{{ratio .FloorAreaRatio}}</td></tr>
    <tr><td>Parking ratio</td><td>{{ratio .ParkingRatio}}</td></tr>
  </table>
  {{if .ParkingNotes}}<p>{{.ParkingNotes}}</p>{{end}}
  {{else}}<p>No dimensional standards on file for this district.</p>{{end}}

  <h2>Required Permits</h2>
  {{if .Result.RequiredPermits}}
  <table>
    <tr><th>Permit</th><th>Required</th><th>Notes</th></tr>
    {{range .Result.RequiredPermits}}
    <tr>
      <td>{{.PermitType}}</td>
      <td>{{if .Required}}Yes{{else if .Conditional}}Conditional{{else}}No{{end}}</td>
      <td>{{.Description}}</td>
    </tr>
    {{end}}
  </table>
  {{else}}<p>No permit requirements on file for this district.</p>{{end}}

  <h2>Flood Zone</h2>
  {{with .Result.FloodZone}}
  <p><strong>FEMA Zone {{.ZoneCode}}</strong> ({{.RiskLevel}} risk){{if .Description}}<br>{{.Description}}{{end}}</p>
  {{else}}<p>No mapped FEMA flood zone at this location.</p>{{end}}

  <div class="footer">
    Generated by ZoneAtlas on {{.GeneratedAt}}. Zoning data is provided for
    informational purposes and should be verified with the local zoning office
    before making land use decisions.
  </div>
</body>
</html>`
