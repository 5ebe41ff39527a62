package dto

import (
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/search"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/utils"
)

// MaxQuestionLength bounds the free-text question sent to the model.
const MaxQuestionLength = 1000

// ================================================================================
// Requests
// ================================================================================

type AskRequest struct {
	Question    string `json:"question" validate:"required,max=1000"`
	TenantID    string `json:"tenant_id,omitempty" validate:"omitempty,tenantid"`
	CrossTenant bool   `json:"cross_tenant"`
}

type BriefingRequest struct {
	Department string `json:"department,omitempty" validate:"max=128"`
}

type ComplianceRequest struct {
	Department string `json:"department,omitempty" validate:"max=128"`
	Days       int    `json:"days"`
}

// Normalize applies the default window and caps it.
func (r *ComplianceRequest) Normalize() {
	r.Days = utils.BoundedInt(r.Days, constants.DefaultTrendDays, constants.MaxTrendDays)
}

type AssessmentsRequest struct {
	Department string `json:"department,omitempty" validate:"max=128"`
	Regulation string `json:"regulation,omitempty" validate:"max=255"`
	TopGaps    int    `json:"top_gaps"`
}

func (r *AssessmentsRequest) Normalize() {
	r.TopGaps = utils.BoundedInt(r.TopGaps, constants.DefaultTopGaps, constants.MaxTopGaps)
}

type ActionsRequest struct {
	Department  string `json:"department,omitempty" validate:"max=128"`
	Regulation  string `json:"regulation,omitempty" validate:"max=255"`
	Status      string `json:"status,omitempty" validate:"max=64"`
	Owner       string `json:"owner,omitempty" validate:"max=255"`
	ScoreImpact string `json:"score_impact,omitempty" validate:"omitempty,oneof=high medium low"`
	TopN        int    `json:"top_n"`
}

func (r *ActionsRequest) Normalize() {
	r.TopN = utils.BoundedInt(r.TopN, constants.DefaultTopActions, constants.MaxTopActions)
}

// Filter converts the request into the aggregation filter.
func (r ActionsRequest) Filter() models.ViewFilter {
	return models.ViewFilter{
		Department:  r.Department,
		Regulation:  r.Regulation,
		Status:      r.Status,
		Owner:       r.Owner,
		ScoreImpact: r.ScoreImpact,
	}
}

type TrendsRequest struct {
	TenantID   string `json:"tenant_id,omitempty" validate:"omitempty,tenantid"`
	Department string `json:"department,omitempty" validate:"max=128"`
	Days       int    `json:"days"`
}

func (r *TrendsRequest) Normalize() {
	r.TenantID = utils.NormalizeIdentifier(r.TenantID)
	r.Days = utils.BoundedInt(r.Days, constants.DefaultTrendDays, constants.MaxTrendDays)
}

// ================================================================================
// Responses
// ================================================================================

type AskResponse struct {
	Answer  string            `json:"answer"`
	Sources []search.Document `json:"sources"`
}

type BriefingResponse struct {
	Briefing string `json:"briefing"`
	// Generated is false when the model was unavailable and the text is the template rendering.
	Generated bool `json:"generated"`
}

type ComplianceResponse struct {
	LatestScores     []models.LatestScore  `json:"latest_scores"`
	ComplianceTrend  []models.TrendPoint   `json:"compliance_trend"`
	WeeklyChanges    []models.WeeklyChange `json:"weekly_changes"`
	DepartmentRollup []models.Rollup       `json:"department_rollup"`
	Filters          ComplianceRequest     `json:"filters"`
}

type AssessmentsResponse struct {
	Assessments     []models.AssessmentSummary `json:"assessments"`
	TopGaps         []models.ControlGap        `json:"top_gaps"`
	ControlFamilies []models.ControlFamily     `json:"control_families"`
	Filters         AssessmentsRequest         `json:"filters"`
}

type RegulationsResponse struct {
	Regulations    []models.RegulationCoverage `json:"regulations"`
	CategoryTrends []models.CategoryTrendPoint `json:"category_trends"`
}

type ActionsResponse struct {
	Actions        []models.ImprovementAction `json:"actions"`
	Summary        models.ActionSummary       `json:"summary"`
	OwnerBreakdown []models.OwnerBreakdown    `json:"owner_breakdown"`
	Filters        ActionsRequest             `json:"filters"`
}

type TrendsResponse struct {
	ScoreTrend     []models.TrendPoint         `json:"score_trend"`
	WeeklyChanges  []models.WeeklyChange       `json:"weekly_changes"`
	CategoryTrends []models.CategoryTrendPoint `json:"category_trends"`
	Filters        TrendsRequest               `json:"filters"`
}

type DepartmentsResponse struct {
	Departments []models.Rollup `json:"departments"`
	RiskTiers   []models.Rollup `json:"risk_tiers"`
}
