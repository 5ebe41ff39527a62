package graph

import "encoding/json"

// SecureScore is one daily secure score snapshot.
type SecureScore struct {
	ID                string         `json:"id"`
	CreatedDateTime   string         `json:"createdDateTime"`
	CurrentScore      float64        `json:"currentScore"`
	MaxScore          float64        `json:"maxScore"`
	LicensedUserCount int            `json:"licensedUserCount"`
	ActiveUserCount   int            `json:"activeUserCount"`
	ControlScores     []ControlScore `json:"controlScores"`

	Raw json.RawMessage `json:"-"`
}

// ControlScore is a per-control measurement embedded in a SecureScore.
type ControlScore struct {
	ControlName     string  `json:"controlName"`
	ControlCategory string  `json:"controlCategory"`
	Description     string  `json:"description"`
	Score           float64 `json:"score"`
	MaxScore        float64 `json:"maxScore"`
}

// ControlProfile is catalog metadata for a secure score control.
type ControlProfile struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	ControlCategory string  `json:"controlCategory"`
	MaxScore        float64 `json:"maxScore"`
	Rank            int     `json:"rank"`
	ActionType      string  `json:"actionType"`
	Service         string  `json:"service"`
	Tier            string  `json:"tier"`
	Deprecated      bool    `json:"deprecated"`
	ActionURL       string  `json:"actionUrl"`
}

// ComplianceScore is the tenant's overall compliance score.
type ComplianceScore struct {
	CurrentScore float64 `json:"currentScore"`
	MaxScore     float64 `json:"maxScore"`
}

// ComplianceCategory is one category of the compliance score breakdown.
type ComplianceCategory struct {
	CategoryName string  `json:"categoryName"`
	DisplayName  string  `json:"displayName"`
	CurrentScore float64 `json:"currentScore"`
	MaxScore     float64 `json:"maxScore"`
}

// Name returns the category label, falling back to displayName.
func (c ComplianceCategory) Name() string {
	switch {
	case c.CategoryName != "":
		return c.CategoryName
	case c.DisplayName != "":
		return c.DisplayName
	default:
		return "unknown"
	}
}

// Assessment is a compliance assessment as returned upstream.
type Assessment struct {
	ID                   string   `json:"id"`
	DisplayName          string   `json:"displayName"`
	Description          string   `json:"description"`
	Status               string   `json:"status"`
	Regulation           string   `json:"regulation"`
	RegulationName       string   `json:"regulationName"`
	ComplianceStandard   *named   `json:"complianceStandard"`
	ComplianceScore      *float64 `json:"complianceScore"`
	PassedControls       int      `json:"passedControls"`
	FailedControls       int      `json:"failedControls"`
	TotalControls        int      `json:"totalControls"`
	CreatedDateTime      string   `json:"createdDateTime"`
	LastModifiedDateTime string   `json:"lastModifiedDateTime"`
}

type named struct {
	Name string `json:"name"`
}

// RegulationLabel picks the first populated of regulation, regulationName and
// complianceStandard.name.
func (a Assessment) RegulationLabel() string {
	switch {
	case a.Regulation != "":
		return a.Regulation
	case a.RegulationName != "":
		return a.RegulationName
	case a.ComplianceStandard != nil:
		return a.ComplianceStandard.Name
	default:
		return ""
	}
}

// AssessmentControl is a control inside an assessment.
type AssessmentControl struct {
	ID                    string  `json:"id"`
	DisplayName           string  `json:"displayName"`
	ControlName           string  `json:"controlName"`
	ControlFamily         string  `json:"controlFamily"`
	ControlCategory       string  `json:"controlCategory"`
	ImplementationStatus  string  `json:"implementationStatus"`
	TestStatus            string  `json:"testStatus"`
	Score                 float64 `json:"score"`
	MaxScore              float64 `json:"maxScore"`
	ScoreImpact           string  `json:"scoreImpact"`
	Owner                 string  `json:"owner"`
	ActionURL             string  `json:"actionUrl"`
	ImplementationDetails string  `json:"implementationDetails"`
	TestPlan              string  `json:"testPlan"`
	ManagementResponse    string  `json:"managementResponse"`
	EvidenceOfCompletion  string  `json:"evidenceOfCompletion"`
	Service               string  `json:"service"`
}

// Name returns displayName, falling back to controlName.
func (c AssessmentControl) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.ControlName
}

type page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}
