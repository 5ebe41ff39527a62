package models

import (
	"time"

	"github.com/turtacn/compliance-advisor/pkg/constants"
)

// Read-only projections computed by the aggregation service.

type LatestScore struct {
	TenantID     string    `json:"tenant_id"`
	DisplayName  string    `json:"display_name"`
	Department   string    `json:"department"`
	RiskTier     string    `json:"risk_tier"`
	Category     string    `json:"category"`
	SnapshotDate time.Time `json:"snapshot_date"`
	CurrentScore float64   `json:"current_score"`
	MaxScore     float64   `json:"max_score"`
	Pct          float64   `json:"score_pct"`
}

type WeeklyChange struct {
	TenantID    string              `json:"tenant_id"`
	DisplayName string              `json:"display_name"`
	Department  string              `json:"department"`
	Category    string              `json:"category"`
	WeekStart   time.Time           `json:"week_start"`
	CurrentPct  float64             `json:"current_pct"`
	PriorPct    *float64            `json:"prior_pct"`
	Delta       float64             `json:"wow_change"`
	Direction   constants.Direction `json:"trend_direction"`
}

// Rollup aggregates latest percentages over a group of active tenants.
type Rollup struct {
	Name        string  `json:"name"`
	AvgPct      float64 `json:"avg_score_pct"`
	MinPct      float64 `json:"min_score_pct"`
	MaxPct      float64 `json:"max_score_pct"`
	TenantCount int     `json:"tenant_count"`
}

type TrendPoint struct {
	SnapshotDate time.Time `json:"snapshot_date"`
	AvgPct       float64   `json:"avg_score_pct"`
	MinPct       float64   `json:"min_score_pct"`
	MaxPct       float64   `json:"max_score_pct"`
	TenantCount  int       `json:"tenant_count"`
}

type CategoryTrendPoint struct {
	Category     string    `json:"category"`
	SnapshotDate time.Time `json:"snapshot_date"`
	AvgCurrent   float64   `json:"avg_current_score"`
	AvgMax       float64   `json:"avg_max_score"`
	AvgGap       float64   `json:"avg_gap"`
	TenantCount  int       `json:"tenant_count"`
}

type RegulationCoverage struct {
	Regulation         string   `json:"regulation"`
	AssessmentCount    int      `json:"assessment_count"`
	TenantCount        int      `json:"tenant_count"`
	PassedControls     int      `json:"passed_controls"`
	FailedControls     int      `json:"failed_controls"`
	TotalControls      int      `json:"total_controls"`
	OverallPassRate    *float64 `json:"overall_pass_rate"`
	AvgComplianceScore *float64 `json:"avg_compliance_score"`
}

type AssessmentSummary struct {
	TenantID        string   `json:"tenant_id"`
	TenantName      string   `json:"tenant_name"`
	Department      string   `json:"department"`
	AssessmentID    string   `json:"assessment_id"`
	AssessmentName  string   `json:"assessment_name"`
	Regulation      string   `json:"regulation"`
	Status          string   `json:"status"`
	ComplianceScore *float64 `json:"compliance_score"`
	PassedControls  int      `json:"passed_controls"`
	FailedControls  int      `json:"failed_controls"`
	TotalControls   int      `json:"total_controls"`
	PassRate        *float64 `json:"pass_rate"`
}

type ControlGap struct {
	TenantID             string  `json:"tenant_id"`
	TenantName           string  `json:"tenant_name"`
	Department           string  `json:"department"`
	AssessmentID         string  `json:"assessment_id"`
	AssessmentName       string  `json:"assessment_name"`
	Regulation           string  `json:"regulation"`
	ControlID            string  `json:"control_id"`
	ControlName          string  `json:"control_name"`
	ControlFamily        string  `json:"control_family"`
	ImplementationStatus string  `json:"implementation_status"`
	TestStatus           string  `json:"test_status"`
	Owner                string  `json:"owner"`
	ScoreImpact          string  `json:"score_impact"`
	Service              string  `json:"service"`
	ActionURL            string  `json:"action_url"`
	Score                float64 `json:"score"`
	MaxScore             float64 `json:"max_score"`
	PointsGap            float64 `json:"points_gap"`
}

type ControlFamily struct {
	ControlFamily string  `json:"control_family"`
	TotalControls int     `json:"total_controls"`
	Implemented   int     `json:"implemented"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	AvgGap        float64 `json:"avg_gap"`
}

type ImprovementAction struct {
	ControlGap
	PriorityRank          int    `json:"priority_rank"`
	ImplementationDetails string `json:"implementation_details"`
	TestPlan              string `json:"test_plan"`
	ManagementResponse    string `json:"management_response"`
}

type ActionSummary struct {
	TotalActions        int     `json:"total_actions"`
	HighImpact          int     `json:"high_impact"`
	MediumImpact        int     `json:"medium_impact"`
	LowImpact           int     `json:"low_impact"`
	TotalPointsGap      float64 `json:"total_points_gap"`
	DistinctOwners      int     `json:"distinct_owners"`
	DistinctRegulations int     `json:"distinct_regulations"`
	DistinctServices    int     `json:"distinct_services"`
}

type OwnerBreakdown struct {
	Owner       string  `json:"owner"`
	ActionCount int     `json:"action_count"`
	TotalGap    float64 `json:"total_gap"`
	HighImpact  int     `json:"high_impact"`
}

type ActionsReport struct {
	Actions        []ImprovementAction `json:"actions"`
	Summary        ActionSummary       `json:"summary"`
	OwnerBreakdown []OwnerBreakdown    `json:"owner_breakdown"`
}

type SyncStatus struct {
	ActiveTenants int        `json:"active_tenants"`
	OldestSync    *time.Time `json:"oldest_sync"`
	NewestSync    *time.Time `json:"newest_sync"`
	Status        string     `json:"status"`
}

// ViewFilter narrows assessment-based views. Empty fields match everything.
type ViewFilter struct {
	Department  string `json:"department,omitempty"`
	Regulation  string `json:"regulation,omitempty"`
	Status      string `json:"status,omitempty"`
	Owner       string `json:"owner,omitempty"`
	ScoreImpact string `json:"score_impact,omitempty"`
}
