package models

import (
	"strings"
	"time"
)

// Assessment is the current state of an external compliance assessment.
// Updated in place on every sync; (tenant_id, assessment_id) is unique.
type Assessment struct {
	ID              uint       `gorm:"primaryKey" json:"-"`
	TenantID        string     `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_assessment,priority:1" json:"tenant_id"`
	AssessmentID    string     `gorm:"column:assessment_id;type:varchar(128);not null;uniqueIndex:ux_assessment,priority:2" json:"assessment_id"`
	DisplayName     string     `gorm:"column:display_name;type:varchar(512)" json:"display_name"`
	Description     string     `gorm:"column:description;type:text" json:"description"`
	Status          string     `gorm:"column:status;type:varchar(64)" json:"status"`
	Regulation      string     `gorm:"column:regulation;type:varchar(255);index" json:"regulation"`
	ComplianceScore *float64   `gorm:"column:compliance_score" json:"compliance_score"`
	PassedControls  int        `gorm:"column:passed_controls" json:"passed_controls"`
	FailedControls  int        `gorm:"column:failed_controls" json:"failed_controls"`
	TotalControls   int        `gorm:"column:total_controls" json:"total_controls"`
	CreatedDate     *time.Time `gorm:"column:created_date" json:"created_date,omitempty"`
	LastModified    *time.Time `gorm:"column:last_modified" json:"last_modified,omitempty"`
	SyncedAt        time.Time  `gorm:"column:synced_at" json:"synced_at"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// IsActive reports whether the assessment counts toward coverage views.
func (a Assessment) IsActive() bool {
	return strings.EqualFold(a.Status, "active")
}

// AssessmentControl is one control inside an assessment.
// (tenant_id, assessment_id, control_id) is unique.
type AssessmentControl struct {
	ID                    uint      `gorm:"primaryKey" json:"-"`
	TenantID              string    `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_assessment_control,priority:1" json:"tenant_id"`
	AssessmentID          string    `gorm:"column:assessment_id;type:varchar(128);not null;uniqueIndex:ux_assessment_control,priority:2" json:"assessment_id"`
	ControlID             string    `gorm:"column:control_id;type:varchar(128);not null;uniqueIndex:ux_assessment_control,priority:3" json:"control_id"`
	ControlName           string    `gorm:"column:control_name;type:varchar(512)" json:"control_name"`
	ControlFamily         string    `gorm:"column:control_family;type:varchar(255)" json:"control_family"`
	ControlCategory       string    `gorm:"column:control_category;type:varchar(255)" json:"control_category"`
	ImplementationStatus  string    `gorm:"column:implementation_status;type:varchar(64)" json:"implementation_status"`
	TestStatus            string    `gorm:"column:test_status;type:varchar(64)" json:"test_status"`
	Score                 float64   `gorm:"column:score" json:"score"`
	MaxScore              float64   `gorm:"column:max_score" json:"max_score"`
	ScoreImpact           string    `gorm:"column:score_impact;type:varchar(32)" json:"score_impact"`
	Owner                 string    `gorm:"column:owner;type:varchar(255)" json:"owner"`
	ActionURL             string    `gorm:"column:action_url;type:text" json:"action_url"`
	ImplementationDetails string    `gorm:"column:implementation_details;type:text" json:"implementation_details"`
	TestPlan              string    `gorm:"column:test_plan;type:text" json:"test_plan"`
	ManagementResponse    string    `gorm:"column:management_response;type:text" json:"management_response"`
	EvidenceOfCompletion  string    `gorm:"column:evidence_of_completion;type:text" json:"evidence_of_completion"`
	Service               string    `gorm:"column:service;type:varchar(128)" json:"service"`
	SyncedAt              time.Time `gorm:"column:synced_at" json:"synced_at"`
}

func (AssessmentControl) TableName() string {
	return "assessment_controls"
}

// PostureBatch is everything one sync task writes for one tenant and day.
type PostureBatch struct {
	TenantID     string
	SnapshotDate time.Time
	Scores       []ScoreSnapshot
	Controls     []ControlRecord
	Assessments  []Assessment
	// AssessmentControls are keyed by AssessmentID inside each element.
	AssessmentControls []AssessmentControl
}

// IsEmpty reports whether the batch carries no rows at all.
func (b *PostureBatch) IsEmpty() bool {
	return len(b.Scores) == 0 && len(b.Controls) == 0 && len(b.Assessments) == 0 && len(b.AssessmentControls) == 0
}
