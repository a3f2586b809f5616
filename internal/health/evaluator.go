// Package health scores the security posture of an AppLocker policy.
package health

import (
	"fmt"
	"strings"

	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
)

// Finding categories
const (
	CategoryRuleVolume    = "RuleVolume"
	CategoryUserWritable  = "UserWritablePath"
	CategoryService       = "EnforcementService"
	CategoryDenyCoverage  = "DenyCoverage"
	CategoryCatchAll      = "CatchAllRule"
	CategoryCustom        = "Custom"
	enforcementSvcName    = "Application Identity (AppIDSvc)"
	hashVolumeCritical    = 20
	hashVolumeWarning     = 10
	denyCoverageThreshold = 5
)

// userWritableLocations are checked longest first so a finding names the most
// specific location.
var userWritableLocations = []string{
	`%USERPROFILE%\Downloads`,
	`%USERPROFILE%\Desktop`,
	`%LOCALAPPDATA%`,
	`%USERPROFILE%`,
	`%APPDATA%`,
	`%TEMP%`,
}

// ServiceStatus of the enforcement service on the target host
type ServiceStatus struct {
	Installed bool `json:"installed"`
	Running   bool `json:"running"`
	AutoStart bool `json:"autoStart"`
}

// Environment facts the evaluator cannot derive from the policy.
type Environment struct {
	// Service is nil when the state is unknown.
	Service *ServiceStatus
}

// Options for Evaluate
type Options struct {
	// Checks are run after the built-in checks. Nil runs none.
	Checks *CheckSet
	Logger logging.Logger
}

// Evaluate runs the built-in checks in fixed order, then any custom checks,
// and scores the result.
func Evaluate(policy *models.Policy, env Environment, opts Options) models.HealthReport {
	logger := logging.OrNop(opts.Logger)

	findings := make([]models.HealthFinding, 0)
	findings = append(findings, checkHashVolume(policy)...)
	findings = append(findings, checkUserWritablePaths(policy)...)
	findings = append(findings, checkService(env)...)
	findings = append(findings, checkDenyCoverage(policy)...)
	findings = append(findings, checkCatchAll(policy)...)
	if opts.Checks != nil {
		findings = append(findings, opts.Checks.Run(policy, env)...)
	}

	summary := summarize(findings)
	score := Score(summary.Critical, summary.Warning, summary.Info)
	report := models.HealthReport{
		Score:    score,
		Status:   StatusFor(score),
		Findings: findings,
		Summary:  summary,
	}

	logger.Info("health", "policy evaluated",
		"score", report.Score,
		"status", string(report.Status),
		"critical", summary.Critical,
		"warning", summary.Warning,
		"info", summary.Info)
	return report
}

func checkHashVolume(p *models.Policy) []models.HealthFinding {
	n := 0
	for _, r := range p.Rules() {
		if r.Type == models.RuleTypeHash {
			n++
		}
	}

	f := models.HealthFinding{
		Category:       CategoryRuleVolume,
		Message:        fmt.Sprintf("Policy contains %d hash rules", n),
		Recommendation: "Replace hash rules with publisher rules where files are signed; hash rules break on every update",
	}
	switch {
	case n > hashVolumeCritical:
		f.Severity = models.SeverityCritical
	case n >= hashVolumeWarning:
		f.Severity = models.SeverityWarning
	case n >= 1:
		f.Severity = models.SeverityInfo
	default:
		return nil
	}
	return []models.HealthFinding{f}
}

func checkUserWritablePaths(p *models.Policy) []models.HealthFinding {
	var out []models.HealthFinding
	for _, r := range p.Rules() {
		if r.Action != models.ActionAllow {
			continue
		}
		pc, ok := r.Path()
		if !ok {
			continue
		}
		path := strings.ToUpper(pc.Path)
		for _, loc := range userWritableLocations {
			if strings.Contains(path, strings.ToUpper(loc)) {
				out = append(out, models.HealthFinding{
					Severity:       models.SeverityCritical,
					Category:       CategoryUserWritable,
					Message:        fmt.Sprintf("Rule %q allows execution from user-writable location %s", r.Name, loc),
					Recommendation: "Remove the path rule or replace it with a publisher or hash rule",
					RuleID:         r.ID,
				})
				break
			}
		}
	}
	return out
}

func checkService(env Environment) []models.HealthFinding {
	svc := env.Service
	if svc == nil {
		return nil
	}
	switch {
	case !svc.Installed:
		return []models.HealthFinding{{
			Severity:       models.SeverityCritical,
			Category:       CategoryService,
			Message:        enforcementSvcName + " is not installed; rules are not enforced",
			Recommendation: "Install the service or target a supported Windows edition",
		}}
	case !svc.Running:
		return []models.HealthFinding{{
			Severity:       models.SeverityCritical,
			Category:       CategoryService,
			Message:        enforcementSvcName + " is not running; rules are not enforced",
			Recommendation: "Start the service and set its start type to Automatic",
		}}
	case !svc.AutoStart:
		return []models.HealthFinding{{
			Severity:       models.SeverityWarning,
			Category:       CategoryService,
			Message:        enforcementSvcName + " is running but will not start automatically",
			Recommendation: "Set the service start type to Automatic",
		}}
	}
	return nil
}

// checkDenyCoverage only flags a missing deny list when some Allow rule is
// broad enough (publisher or path) to need carving out.
func checkDenyCoverage(p *models.Policy) []models.HealthFinding {
	deny := 0
	broadAllow := false
	for _, r := range p.Rules() {
		if r.Action == models.ActionDeny {
			deny++
			continue
		}
		if r.Type == models.RuleTypePublisher || r.Type == models.RuleTypePath {
			broadAllow = true
		}
	}

	switch {
	case deny == 0 && broadAllow:
		return []models.HealthFinding{{
			Severity:       models.SeverityWarning,
			Category:       CategoryDenyCoverage,
			Message:        "Policy has no deny rules",
			Recommendation: "Deny known-abused binaries (for example mshta.exe, wscript.exe) under broad allow rules",
		}}
	case deny > 0 && deny < denyCoverageThreshold:
		return []models.HealthFinding{{
			Severity:       models.SeverityInfo,
			Category:       CategoryDenyCoverage,
			Message:        fmt.Sprintf("Policy has only %d deny rules", deny),
			Recommendation: "Review whether further living-off-the-land binaries should be denied",
		}}
	}
	return nil
}

func checkCatchAll(p *models.Policy) []models.HealthFinding {
	var out []models.HealthFinding
	for _, r := range p.Rules() {
		if r.Action != models.ActionAllow || !r.IsCatchAll() {
			continue
		}
		out = append(out, models.HealthFinding{
			Severity:       models.SeverityCritical,
			Category:       CategoryCatchAll,
			Message:        fmt.Sprintf("Rule %q allows every file in the %s collection", r.Name, r.CollectionType),
			Recommendation: "Remove default and wildcard rules before enforcing",
			RuleID:         r.ID,
		})
	}
	return out
}
