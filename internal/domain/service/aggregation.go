// Package service holds the read-only posture projections. Every function here is
// a pure function of its inputs: no I/O, no hidden state, safe to recompute.
package service

import (
	"sort"
	"strings"
	"time"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/pkg/constants"
)

// activeTenants indexes the active tenants by id.
func activeTenants(tenants []models.Tenant) map[string]models.Tenant {
	out := make(map[string]models.Tenant, len(tenants))
	for _, t := range tenants {
		if t.IsActive {
			out[t.TenantID] = t
		}
	}
	return out
}

// ================================================================================
// Latest-per-tenant
// ================================================================================

// LatestScores returns, for each active tenant, its most recent snapshot in category.
// Sorted by percentage ascending so the weakest tenants come first.
func LatestScores(tenants []models.Tenant, snaps []models.ScoreSnapshot, category string) []models.LatestScore {
	active := activeTenants(tenants)
	latest := make(map[string]models.ScoreSnapshot)
	for _, s := range snaps {
		if s.Category != category {
			continue
		}
		if _, ok := active[s.TenantID]; !ok {
			continue
		}
		if cur, ok := latest[s.TenantID]; !ok || s.SnapshotDate.After(cur.SnapshotDate) {
			latest[s.TenantID] = s
		}
	}

	out := make([]models.LatestScore, 0, len(latest))
	for id, s := range latest {
		t := active[id]
		out = append(out, models.LatestScore{
			TenantID:     id,
			DisplayName:  t.DisplayName,
			Department:   t.Department,
			RiskTier:     t.RiskTier,
			Category:     category,
			SnapshotDate: s.SnapshotDate,
			CurrentScore: s.CurrentScore,
			MaxScore:     s.MaxScore,
			Pct:          s.Pct(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pct != out[j].Pct {
			return out[i].Pct < out[j].Pct
		}
		return out[i].TenantID < out[j].TenantID
	})
	return out
}

// ================================================================================
// Week-over-week change
// ================================================================================

// WeekStart returns the Monday that opens t's ISO week.
func WeekStart(t time.Time) time.Time {
	d := models.DateOf(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeeklyChanges compares, per active tenant, the latest snapshot of its most recent
// ISO week against the latest snapshot of the ISO week before it. A missing prior
// week yields a zero delta and Stable. Percentages are pre-rounded, so the
// direction uses exact comparison.
func WeeklyChanges(tenants []models.Tenant, snaps []models.ScoreSnapshot, category string) []models.WeeklyChange {
	active := activeTenants(tenants)

	// tenant -> week start -> latest snapshot in that week
	weekly := make(map[string]map[time.Time]models.ScoreSnapshot)
	for _, s := range snaps {
		if s.Category != category {
			continue
		}
		if _, ok := active[s.TenantID]; !ok {
			continue
		}
		weeks, ok := weekly[s.TenantID]
		if !ok {
			weeks = make(map[time.Time]models.ScoreSnapshot)
			weekly[s.TenantID] = weeks
		}
		ws := WeekStart(s.SnapshotDate)
		if cur, ok := weeks[ws]; !ok || s.SnapshotDate.After(cur.SnapshotDate) {
			weeks[ws] = s
		}
	}

	out := make([]models.WeeklyChange, 0, len(weekly))
	for id, weeks := range weekly {
		var currentWeek time.Time
		for ws := range weeks {
			if ws.After(currentWeek) {
				currentWeek = ws
			}
		}
		current := weeks[currentWeek]
		t := active[id]

		change := models.WeeklyChange{
			TenantID:    id,
			DisplayName: t.DisplayName,
			Department:  t.Department,
			Category:    category,
			WeekStart:   currentWeek,
			CurrentPct:  current.Pct(),
			Direction:   constants.DirectionStable,
		}
		if prior, ok := weeks[currentWeek.AddDate(0, 0, -7)]; ok {
			priorPct := prior.Pct()
			change.PriorPct = &priorPct
			change.Delta = models.Round2(change.CurrentPct - priorPct)
			change.Direction = Classify(change.Delta)
		}
		out = append(out, change)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Delta != out[j].Delta {
			return out[i].Delta < out[j].Delta
		}
		return out[i].TenantID < out[j].TenantID
	})
	return out
}

// Classify maps a delta to a trend direction.
func Classify(delta float64) constants.Direction {
	switch {
	case delta > 0:
		return constants.DirectionImproving
	case delta < 0:
		return constants.DirectionDeclining
	default:
		return constants.DirectionStable
	}
}

// ================================================================================
// Rollups
// ================================================================================

// DepartmentRollup groups latest scores by department. Groups without tenants are absent.
func DepartmentRollup(latest []models.LatestScore) []models.Rollup {
	return rollup(latest, func(l models.LatestScore) string { return l.Department })
}

// RiskTierRollup groups latest scores by risk tier.
func RiskTierRollup(latest []models.LatestScore) []models.Rollup {
	return rollup(latest, func(l models.LatestScore) string { return l.RiskTier })
}

func rollup(latest []models.LatestScore, key func(models.LatestScore) string) []models.Rollup {
	groups := make(map[string][]float64)
	for _, l := range latest {
		k := key(l)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], l.Pct)
	}

	out := make([]models.Rollup, 0, len(groups))
	for name, pcts := range groups {
		avg, min, max := stats(pcts)
		out = append(out, models.Rollup{
			Name:        name,
			AvgPct:      avg,
			MinPct:      min,
			MaxPct:      max,
			TenantCount: len(pcts),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgPct != out[j].AvgPct {
			return out[i].AvgPct < out[j].AvgPct
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// stats returns rounded avg and the min and max of a non-empty slice.
func stats(values []float64) (avg, min, max float64) {
	min, max = values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return models.Round2(sum / float64(len(values))), min, max
}

// ================================================================================
// Trends
// ================================================================================

// ScoreTrend returns the daily avg/min/max percentage across active tenants for
// snapshots on or after since, oldest first.
func ScoreTrend(tenants []models.Tenant, snaps []models.ScoreSnapshot, category string, since time.Time) []models.TrendPoint {
	active := activeTenants(tenants)
	since = models.DateOf(since)

	byDate := make(map[time.Time][]float64)
	for _, s := range snaps {
		if s.Category != category || s.SnapshotDate.Before(since) {
			continue
		}
		if _, ok := active[s.TenantID]; !ok {
			continue
		}
		d := models.DateOf(s.SnapshotDate)
		byDate[d] = append(byDate[d], s.Pct())
	}

	out := make([]models.TrendPoint, 0, len(byDate))
	for d, pcts := range byDate {
		avg, min, max := stats(pcts)
		out = append(out, models.TrendPoint{SnapshotDate: d, AvgPct: avg, MinPct: min, MaxPct: max, TenantCount: len(pcts)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.Before(out[j].SnapshotDate) })
	return out
}

// CategoryTrends returns per-category daily averages for compliance categories
// other than the overall and secure score series.
func CategoryTrends(tenants []models.Tenant, snaps []models.ScoreSnapshot, since time.Time) []models.CategoryTrendPoint {
	active := activeTenants(tenants)
	since = models.DateOf(since)

	type key struct {
		category string
		date     time.Time
	}
	type acc struct {
		current, max float64
		n            int
	}
	groups := make(map[key]*acc)
	for _, s := range snaps {
		if s.Category == constants.CategoryOverall || s.Category == constants.CategorySecureScore {
			continue
		}
		if s.SnapshotDate.Before(since) {
			continue
		}
		if _, ok := active[s.TenantID]; !ok {
			continue
		}
		k := key{s.Category, models.DateOf(s.SnapshotDate)}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.current += s.CurrentScore
		a.max += s.MaxScore
		a.n++
	}

	out := make([]models.CategoryTrendPoint, 0, len(groups))
	for k, a := range groups {
		n := float64(a.n)
		out = append(out, models.CategoryTrendPoint{
			Category:     k.category,
			SnapshotDate: k.date,
			AvgCurrent:   models.Round2(a.current / n),
			AvgMax:       models.Round2(a.max / n),
			AvgGap:       models.Round2((a.max - a.current) / n),
			TenantCount:  a.n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].SnapshotDate.Before(out[j].SnapshotDate)
	})
	return out
}

// ================================================================================
// Assessment views
// ================================================================================

// assessmentIndex resolves the active assessments of active tenants that pass filter.
type assessmentIndex struct {
	tenants     map[string]models.Tenant
	assessments map[[2]string]models.Assessment
}

func newAssessmentIndex(tenants []models.Tenant, assessments []models.Assessment, filter models.ViewFilter) assessmentIndex {
	idx := assessmentIndex{
		tenants:     activeTenants(tenants),
		assessments: make(map[[2]string]models.Assessment),
	}
	for _, a := range assessments {
		t, ok := idx.tenants[a.TenantID]
		if !ok || !a.IsActive() {
			continue
		}
		if filter.Department != "" && t.Department != filter.Department {
			continue
		}
		if filter.Regulation != "" && a.Regulation != filter.Regulation {
			continue
		}
		idx.assessments[[2]string{a.TenantID, a.AssessmentID}] = a
	}
	return idx
}

func (idx assessmentIndex) lookup(c models.AssessmentControl) (models.Tenant, models.Assessment, bool) {
	a, ok := idx.assessments[[2]string{c.TenantID, c.AssessmentID}]
	if !ok {
		return models.Tenant{}, models.Assessment{}, false
	}
	return idx.tenants[c.TenantID], a, true
}

// RegulationCoverage groups active assessments of active tenants by regulation.
// The pass rate is nil when the group has no controls at all.
func RegulationCoverage(tenants []models.Tenant, assessments []models.Assessment) []models.RegulationCoverage {
	idx := newAssessmentIndex(tenants, assessments, models.ViewFilter{})

	type acc struct {
		cov        models.RegulationCoverage
		tenants    map[string]struct{}
		scoreSum   float64
		scoreCount int
	}
	groups := make(map[string]*acc)
	for _, a := range idx.assessments {
		reg := a.Regulation
		if reg == "" {
			continue
		}
		g, ok := groups[reg]
		if !ok {
			g = &acc{cov: models.RegulationCoverage{Regulation: reg}, tenants: make(map[string]struct{})}
			groups[reg] = g
		}
		g.cov.AssessmentCount++
		g.cov.PassedControls += a.PassedControls
		g.cov.FailedControls += a.FailedControls
		g.cov.TotalControls += a.TotalControls
		g.tenants[a.TenantID] = struct{}{}
		if a.ComplianceScore != nil {
			g.scoreSum += *a.ComplianceScore
			g.scoreCount++
		}
	}

	out := make([]models.RegulationCoverage, 0, len(groups))
	for _, g := range groups {
		g.cov.TenantCount = len(g.tenants)
		g.cov.OverallPassRate = ratio(g.cov.PassedControls, g.cov.TotalControls)
		if g.scoreCount > 0 {
			avg := models.Round2(g.scoreSum / float64(g.scoreCount))
			g.cov.AvgComplianceScore = &avg
		}
		out = append(out, g.cov)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].OverallPassRate, out[j].OverallPassRate
		switch {
		case ri == nil && rj != nil:
			return true
		case ri != nil && rj == nil:
			return false
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		}
		return out[i].Regulation < out[j].Regulation
	})
	return out
}

// ratio returns passed/total as a rounded percentage, or nil when total is zero.
func ratio(passed, total int) *float64 {
	if total <= 0 {
		return nil
	}
	r := models.Round2(float64(passed) / float64(total) * 100)
	return &r
}

// AssessmentSummaries lists active assessments with tenant context, lowest score first.
func AssessmentSummaries(tenants []models.Tenant, assessments []models.Assessment, filter models.ViewFilter) []models.AssessmentSummary {
	idx := newAssessmentIndex(tenants, assessments, filter)

	out := make([]models.AssessmentSummary, 0, len(idx.assessments))
	for _, a := range idx.assessments {
		t := idx.tenants[a.TenantID]
		out = append(out, models.AssessmentSummary{
			TenantID:        a.TenantID,
			TenantName:      t.DisplayName,
			Department:      t.Department,
			AssessmentID:    a.AssessmentID,
			AssessmentName:  a.DisplayName,
			Regulation:      a.Regulation,
			Status:          a.Status,
			ComplianceScore: a.ComplianceScore,
			PassedControls:  a.PassedControls,
			FailedControls:  a.FailedControls,
			TotalControls:   a.TotalControls,
			PassRate:        ratio(a.PassedControls, a.TotalControls),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := scoreOrZero(out[i].ComplianceScore), scoreOrZero(out[j].ComplianceScore)
		if si != sj {
			return si < sj
		}
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].AssessmentID < out[j].AssessmentID
	})
	return out
}

func scoreOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func isImplemented(c models.AssessmentControl) bool {
	return strings.EqualFold(c.ImplementationStatus, constants.ImplementationImplemented)
}

func toGap(t models.Tenant, a models.Assessment, c models.AssessmentControl) models.ControlGap {
	return models.ControlGap{
		TenantID:             c.TenantID,
		TenantName:           t.DisplayName,
		Department:           t.Department,
		AssessmentID:         a.AssessmentID,
		AssessmentName:       a.DisplayName,
		Regulation:           a.Regulation,
		ControlID:            c.ControlID,
		ControlName:          c.ControlName,
		ControlFamily:        c.ControlFamily,
		ImplementationStatus: c.ImplementationStatus,
		TestStatus:           c.TestStatus,
		Owner:                c.Owner,
		ScoreImpact:          c.ScoreImpact,
		Service:              c.Service,
		ActionURL:            c.ActionURL,
		Score:                c.Score,
		MaxScore:             c.MaxScore,
		PointsGap:            models.Round2(c.MaxScore - c.Score),
	}
}

// TopGaps returns controls that are not implemented or failed testing and still
// have points to gain, largest gap first, truncated to limit.
func TopGaps(tenants []models.Tenant, assessments []models.Assessment, controls []models.AssessmentControl, filter models.ViewFilter, limit int) []models.ControlGap {
	idx := newAssessmentIndex(tenants, assessments, filter)

	out := make([]models.ControlGap, 0)
	for _, c := range controls {
		t, a, ok := idx.lookup(c)
		if !ok {
			continue
		}
		failed := strings.EqualFold(c.TestStatus, constants.TestResultFailed)
		if isImplemented(c) && !failed {
			continue
		}
		gap := toGap(t, a, c)
		if gap.PointsGap <= 0 {
			continue
		}
		out = append(out, gap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointsGap != out[j].PointsGap {
			return out[i].PointsGap > out[j].PointsGap
		}
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].ControlID < out[j].ControlID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ControlFamilies summarises controls per family, largest average gap first.
func ControlFamilies(tenants []models.Tenant, assessments []models.Assessment, controls []models.AssessmentControl, filter models.ViewFilter) []models.ControlFamily {
	idx := newAssessmentIndex(tenants, assessments, filter)

	type acc struct {
		fam    models.ControlFamily
		gapSum float64
	}
	groups := make(map[string]*acc)
	for _, c := range controls {
		if _, _, ok := idx.lookup(c); !ok {
			continue
		}
		g, ok := groups[c.ControlFamily]
		if !ok {
			g = &acc{fam: models.ControlFamily{ControlFamily: c.ControlFamily}}
			groups[c.ControlFamily] = g
		}
		g.fam.TotalControls++
		if isImplemented(c) {
			g.fam.Implemented++
		}
		switch strings.ToLower(c.TestStatus) {
		case constants.TestResultPassed:
			g.fam.Passed++
		case constants.TestResultFailed:
			g.fam.Failed++
		}
		g.gapSum += c.MaxScore - c.Score
	}

	out := make([]models.ControlFamily, 0, len(groups))
	for _, g := range groups {
		g.fam.AvgGap = models.Round2(g.gapSum / float64(g.fam.TotalControls))
		out = append(out, g.fam)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgGap != out[j].AvgGap {
			return out[i].AvgGap > out[j].AvgGap
		}
		return out[i].ControlFamily < out[j].ControlFamily
	})
	return out
}

// PriorityRank orders score impact labels: high=1, medium=2, low=3, anything else 4.
func PriorityRank(scoreImpact string) int {
	switch strings.ToLower(scoreImpact) {
	case "high":
		return 1
	case "medium":
		return 2
	case "low":
		return 3
	default:
		return 4
	}
}

// ImprovementActions lists controls that are not yet implemented, ordered by
// priority then points gap. Summary and owner breakdown cover every matching
// action; only the action list is truncated to limit.
func ImprovementActions(tenants []models.Tenant, assessments []models.Assessment, controls []models.AssessmentControl, filter models.ViewFilter, limit int) models.ActionsReport {
	idx := newAssessmentIndex(tenants, assessments, filter)

	actions := make([]models.ImprovementAction, 0)
	for _, c := range controls {
		t, a, ok := idx.lookup(c)
		if !ok || isImplemented(c) {
			continue
		}
		if filter.Status != "" && c.ImplementationStatus != filter.Status {
			continue
		}
		if filter.Owner != "" && c.Owner != filter.Owner {
			continue
		}
		if filter.ScoreImpact != "" && !strings.EqualFold(c.ScoreImpact, filter.ScoreImpact) {
			continue
		}
		actions = append(actions, models.ImprovementAction{
			ControlGap:            toGap(t, a, c),
			PriorityRank:          PriorityRank(c.ScoreImpact),
			ImplementationDetails: c.ImplementationDetails,
			TestPlan:              c.TestPlan,
			ManagementResponse:    c.ManagementResponse,
		})
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].PriorityRank != actions[j].PriorityRank {
			return actions[i].PriorityRank < actions[j].PriorityRank
		}
		if actions[i].PointsGap != actions[j].PointsGap {
			return actions[i].PointsGap > actions[j].PointsGap
		}
		if actions[i].TenantID != actions[j].TenantID {
			return actions[i].TenantID < actions[j].TenantID
		}
		return actions[i].ControlID < actions[j].ControlID
	})

	report := models.ActionsReport{
		Summary:        summarizeActions(actions),
		OwnerBreakdown: ownerBreakdown(actions),
	}
	if limit > 0 && len(actions) > limit {
		actions = actions[:limit]
	}
	report.Actions = actions
	return report
}

func summarizeActions(actions []models.ImprovementAction) models.ActionSummary {
	owners := make(map[string]struct{})
	regulations := make(map[string]struct{})
	services := make(map[string]struct{})

	var s models.ActionSummary
	for _, a := range actions {
		s.TotalActions++
		switch PriorityRank(a.ScoreImpact) {
		case 1:
			s.HighImpact++
		case 2:
			s.MediumImpact++
		case 3:
			s.LowImpact++
		}
		s.TotalPointsGap += a.PointsGap
		if a.Owner != "" {
			owners[a.Owner] = struct{}{}
		}
		if a.Regulation != "" {
			regulations[a.Regulation] = struct{}{}
		}
		if a.Service != "" {
			services[a.Service] = struct{}{}
		}
	}
	s.TotalPointsGap = models.Round2(s.TotalPointsGap)
	s.DistinctOwners = len(owners)
	s.DistinctRegulations = len(regulations)
	s.DistinctServices = len(services)
	return s
}

func ownerBreakdown(actions []models.ImprovementAction) []models.OwnerBreakdown {
	groups := make(map[string]*models.OwnerBreakdown)
	for _, a := range actions {
		if a.Owner == "" {
			continue
		}
		g, ok := groups[a.Owner]
		if !ok {
			g = &models.OwnerBreakdown{Owner: a.Owner}
			groups[a.Owner] = g
		}
		g.ActionCount++
		g.TotalGap += a.PointsGap
		if PriorityRank(a.ScoreImpact) == 1 {
			g.HighImpact++
		}
	}

	out := make([]models.OwnerBreakdown, 0, len(groups))
	for _, g := range groups {
		g.TotalGap = models.Round2(g.TotalGap)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalGap != out[j].TotalGap {
			return out[i].TotalGap > out[j].TotalGap
		}
		return out[i].Owner < out[j].Owner
	})
	return out
}

// ================================================================================
// Status
// ================================================================================

// Status reports how many tenants are active and the spread of their last syncs.
func Status(tenants []models.Tenant) models.SyncStatus {
	status := models.SyncStatus{Status: "healthy"}
	for _, t := range tenants {
		if !t.IsActive {
			continue
		}
		status.ActiveTenants++
		if t.LastSyncedAt == nil {
			continue
		}
		synced := *t.LastSyncedAt
		if status.OldestSync == nil || synced.Before(*status.OldestSync) {
			status.OldestSync = &synced
		}
		if status.NewestSync == nil || synced.After(*status.NewestSync) {
			status.NewestSync = &synced
		}
	}
	return status
}
