package service

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
)

const advisorInstructions = `You advise security and compliance teams on the compliance posture of their
Microsoft 365 tenants. You are given posture records retrieved from the index:
control names, categories, scores, points gaps and remediation links.

Cite control names, scores and gaps from the records. Rank recommendations by
points gap, largest first. When comparing tenants, name them and point out the
outliers. If the records do not cover the question, or look stale, say so.
Never invent scores or assessment results.

Answer with a short executive summary, then the key findings as bullets, then the
recommended next actions in priority order.`

const briefingInstructions = `You write compliance posture briefings for a CISO to share with leadership.
Use plain business language and concrete numbers taken only from the JSON data
provided. Structure the briefing as:
1. Executive summary, leading with the compliance score and any urgent risk
2. Trend analysis naming the tenants that moved most this week
3. Department scorecard
4. Assessment coverage by regulation
5. Top five recommended actions with their business justification
6. Items that need leadership attention this week
Stay under 600 words.`

const digestInstructions = `You write the weekly compliance digest for a multi-tenant enterprise. The
readers are security leaders, department heads and compliance managers.
Using only the JSON data provided, cover: a two-sentence summary leading with the
compliance score, which tenants improved or declined and by how much, how the
departments compare, which regulations are at risk, the three actions to take
this week, and one closing sentence on the overall direction. Flag declines
prominently. Stay under 450 words.`

// postureDigest is the data behind briefings and weekly digests.
type postureDigest struct {
	Title            string                     `json:"-"`
	Department       string                     `json:"department,omitempty"`
	GeneratedAt      time.Time                  `json:"generated_at"`
	LatestScores     []models.LatestScore       `json:"latest_scores"`
	WeeklyChanges    []models.WeeklyChange      `json:"weekly_changes"`
	DepartmentRollup []models.Rollup            `json:"department_rollup"`
	Assessments      []models.AssessmentSummary `json:"assessments"`
	TopGaps          []models.ControlGap        `json:"top_gaps"`
}

var fallbackTemplate = template.Must(template.New("briefing").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format("2006-01-02") },
	"pct":  func(p *float64) string { return formatOptionalPct(p) },
}).Parse(`{{.Title}}{{if .Department}} ({{.Department}}){{end}}
Generated {{date .GeneratedAt}} from stored posture data.

Compliance scores, lowest first:
{{range .LatestScores}}- {{.DisplayName}}{{if .Department}} [{{.Department}}]{{end}}: {{printf "%.2f" .Pct}}% as of {{date .SnapshotDate}}
{{else}}- No compliance scores recorded.
{{end}}
Week over week:
{{range .WeeklyChanges}}- {{.DisplayName}}: {{.Direction}} ({{printf "%+.2f" .Delta}} points, now {{printf "%.2f" .CurrentPct}}%)
{{else}}- No weekly history yet.
{{end}}
Departments:
{{range .DepartmentRollup}}- {{.Name}}: avg {{printf "%.2f" .AvgPct}}%, range {{printf "%.2f" .MinPct}}-{{printf "%.2f" .MaxPct}}%, {{.TenantCount}} tenant(s)
{{else}}- No departments with active tenants.
{{end}}
Assessments:
{{range .Assessments}}- {{.TenantName}} / {{.AssessmentName}} ({{.Regulation}}): score {{pct .ComplianceScore}}, {{.PassedControls}}/{{.TotalControls}} controls passed
{{else}}- No active assessments.
{{end}}
Largest control gaps:
{{range .TopGaps}}- {{.TenantName}}: {{.ControlName}} ({{.Regulation}}), {{printf "%.2f" .PointsGap}} points{{if .Owner}}, owner {{.Owner}}{{end}}
{{else}}- No open control gaps.
{{end}}`))

// renderFallback produces the deterministic text used when the model is unavailable.
func renderFallback(d postureDigest) (string, error) {
	var buf bytes.Buffer
	if err := fallbackTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func formatOptionalPct(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(*p, 'f', 2, 64), "0"), ".") + "%"
}
