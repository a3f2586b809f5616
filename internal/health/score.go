package health

import "github.com/ruleforge/ruleforge/internal/models"

// Finding weights
const (
	criticalWeight = 20
	warningWeight  = 5
	infoWeight     = 1
)

// Score is 100 minus the weighted findings, floored at 0.
func Score(critical, warning, info int) int {
	s := 100 - criticalWeight*critical - warningWeight*warning - infoWeight*info
	if s < 0 {
		return 0
	}
	return s
}

// StatusFor maps a score to its band.
func StatusFor(score int) models.HealthStatus {
	switch {
	case score >= 80:
		return models.StatusHealthy
	case score >= 60:
		return models.StatusWarning
	case score >= 40:
		return models.StatusCritical
	default:
		return models.StatusFailed
	}
}

func summarize(findings []models.HealthFinding) models.HealthSummary {
	var s models.HealthSummary
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			s.Critical++
		case models.SeverityWarning:
			s.Warning++
		case models.SeverityInfo:
			s.Info++
		}
	}
	return s
}
