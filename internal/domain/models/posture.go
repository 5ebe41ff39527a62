package models

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

// ScoreSnapshot is one tenant's score for one category on one day.
// (tenant_id, snapshot_date, category) is unique.
type ScoreSnapshot struct {
	ID           uint           `gorm:"primaryKey" json:"-"`
	TenantID     string         `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_score_snapshot,priority:1" json:"tenant_id"`
	SnapshotDate time.Time      `gorm:"column:snapshot_date;type:date;not null;uniqueIndex:ux_score_snapshot,priority:2;index" json:"snapshot_date"`
	Category     string         `gorm:"column:category;type:varchar(128);not null;uniqueIndex:ux_score_snapshot,priority:3" json:"category"`
	CurrentScore float64        `gorm:"column:current_score" json:"current_score"`
	MaxScore     float64        `gorm:"column:max_score" json:"max_score"`
	RawJSON      datatypes.JSON `gorm:"column:raw_json" json:"-"`
	CreatedAt    time.Time      `gorm:"column:created_at" json:"-"`
	UpdatedAt    time.Time      `gorm:"column:updated_at" json:"-"`
}

func (ScoreSnapshot) TableName() string {
	return "score_snapshots"
}

// Pct is current/max as a percentage rounded to two decimals; 0 when max is not positive.
func (s ScoreSnapshot) Pct() float64 {
	return Percent(s.CurrentScore, s.MaxScore)
}

// ControlRecord is a secure-score control measurement for one tenant and day.
// (tenant_id, snapshot_date, control_name) is unique.
type ControlRecord struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	TenantID        string    `gorm:"column:tenant_id;type:varchar(64);not null;uniqueIndex:ux_control_record,priority:1" json:"tenant_id"`
	SnapshotDate    time.Time `gorm:"column:snapshot_date;type:date;not null;uniqueIndex:ux_control_record,priority:2" json:"snapshot_date"`
	ControlName     string    `gorm:"column:control_name;type:varchar(255);not null;uniqueIndex:ux_control_record,priority:3" json:"control_name"`
	ControlCategory string    `gorm:"column:control_category;type:varchar(128)" json:"control_category"`
	Title           string    `gorm:"column:title;type:varchar(512)" json:"title"`
	Description     string    `gorm:"column:description;type:text" json:"description"`
	Score           float64   `gorm:"column:score" json:"score"`
	MaxScore        float64   `gorm:"column:max_score" json:"max_score"`
	ActionType      string    `gorm:"column:action_type;type:varchar(64)" json:"action_type"`
	Rank            int       `gorm:"column:rank" json:"rank"`
	Service         string    `gorm:"column:service;type:varchar(128)" json:"service"`
	RemediationURL  string    `gorm:"column:remediation_url;type:text" json:"remediation_url"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"-"`
}

func (ControlRecord) TableName() string {
	return "control_records"
}

// Percent returns current/max*100 rounded to two decimals, or 0 when max <= 0.
func Percent(current, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return Round2(current / max * 100)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DateOf truncates t to a UTC calendar day, the granularity of snapshot_date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
