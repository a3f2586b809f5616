package models

// Severity of a health finding
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityWarning  Severity = "Warning"
	SeverityInfo     Severity = "Info"
)

func ParseSeverity(s string) (Severity, error) {
	v, err := parseEnum("severity", s, SeverityCritical, SeverityWarning, SeverityInfo)
	return Severity(v), err
}

// HealthStatus band derived from the score
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "Healthy"
	StatusWarning  HealthStatus = "Warning"
	StatusCritical HealthStatus = "Critical"
	StatusFailed   HealthStatus = "Failed"
)

// HealthFinding single evaluator observation
type HealthFinding struct {
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
	RuleID         string   `json:"ruleId,omitempty"`
}

// HealthSummary counts by severity
type HealthSummary struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// HealthReport scored evaluation of a policy
type HealthReport struct {
	Score    int             `json:"score"`
	Status   HealthStatus    `json:"status"`
	Findings []HealthFinding `json:"findings"`
	Summary  HealthSummary   `json:"summary"`
}
