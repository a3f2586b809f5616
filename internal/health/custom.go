package health

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/ruleforge/ruleforge/internal/models"
)

// CheckConfig a named set of custom checks
type CheckConfig struct {
	Name   string  `yaml:"name"`
	Checks []Check `yaml:"checks"`
}

// Check is a CEL expression over `input` that must evaluate to true.
type Check struct {
	Name           string   `yaml:"name"`
	Expr           string   `yaml:"expr"`
	Severity       string   `yaml:"severity"`
	Category       string   `yaml:"category,omitempty"`
	FailureMsg     string   `yaml:"failure_msg"`
	Recommendation string   `yaml:"recommendation,omitempty"`
	ControlRefs    []string `yaml:"control_refs,omitempty"`
}

// ParseChecks decodes a check file.
func ParseChecks(data []byte) (*CheckConfig, error) {
	var cfg CheckConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse health checks: %v", models.ErrConfiguration, err)
	}
	return &cfg, nil
}

// LoadChecks reads and decodes a check file.
func LoadChecks(path string) (*CheckConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read health checks: %w", err)
	}
	return ParseChecks(data)
}

type compiledCheck struct {
	check    Check
	severity models.Severity
	prg      cel.Program
}

// CheckSet compiled checks, safe to reuse across evaluations
type CheckSet struct {
	name   string
	checks []compiledCheck
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Compile type-checks every expression up front. All problems are reported
// together.
func Compile(cfg *CheckConfig) (*CheckSet, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	set := &CheckSet{name: cfg.Name}
	var problems []string
	for _, c := range cfg.Checks {
		sev, err := models.ParseSeverity(c.Severity)
		if err != nil {
			problems = append(problems, fmt.Sprintf("check %q: %v", c.Name, err))
			continue
		}

		ast, issues := env.Compile(c.Expr)
		if issues != nil && issues.Err() != nil {
			problems = append(problems, fmt.Sprintf("check %q: %v", c.Name, issues.Err()))
			continue
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			problems = append(problems, fmt.Sprintf("check %q: expression must return bool, got %s", c.Name, ast.OutputType()))
			continue
		}

		prg, err := env.Program(ast)
		if err != nil {
			problems = append(problems, fmt.Sprintf("check %q: %v", c.Name, err))
			continue
		}
		set.checks = append(set.checks, compiledCheck{check: c, severity: sev, prg: prg})
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: health check validation failed:\n  %s", models.ErrConfiguration, strings.Join(problems, "\n  "))
	}
	return set, nil
}

func (s *CheckSet) Name() string { return s.name }

func (s *CheckSet) Len() int { return len(s.checks) }

// Run evaluates every check against the policy. A check that fails, or that
// cannot be evaluated, yields one finding at the check's severity.
func (s *CheckSet) Run(p *models.Policy, env Environment) []models.HealthFinding {
	input := policyInput(p, env)

	var out []models.HealthFinding
	for _, c := range s.checks {
		passed, err := c.eval(input)
		if err == nil && passed {
			continue
		}

		msg := c.check.FailureMsg
		if msg == "" {
			msg = fmt.Sprintf("Check %q failed", c.check.Name)
		}
		if err != nil {
			msg = fmt.Sprintf("Check %q could not be evaluated: %v", c.check.Name, err)
		}
		category := c.check.Category
		if category == "" {
			category = CategoryCustom
		}
		out = append(out, models.HealthFinding{
			Severity:       c.severity,
			Category:       category,
			Message:        msg,
			Recommendation: c.check.Recommendation,
		})
	}
	return out
}

func (c compiledCheck) eval(input map[string]any) (bool, error) {
	val, _, err := c.prg.Eval(map[string]any{"input": input})
	if err != nil {
		return false, err
	}
	passed, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", val.Value())
	}
	return passed, nil
}

// policyInput is the document custom checks see as `input`.
func policyInput(p *models.Policy, env Environment) map[string]any {
	counts := map[string]any{}
	byType := map[models.RuleType]int64{}
	byAction := map[models.Action]int64{}
	var catchAll int64

	rules := make([]any, 0, p.RuleCount())
	for _, r := range p.Rules() {
		byType[r.Type]++
		byAction[r.Action]++
		if r.IsCatchAll() {
			catchAll++
		}
		rules = append(rules, ruleInput(r))
	}
	counts["total"] = int64(len(rules))
	counts["publisher"] = byType[models.RuleTypePublisher]
	counts["path"] = byType[models.RuleTypePath]
	counts["hash"] = byType[models.RuleTypeHash]
	counts["allow"] = byAction[models.ActionAllow]
	counts["deny"] = byAction[models.ActionDeny]
	counts["catch_all"] = catchAll

	collections := make([]any, 0, len(p.OrderedCollections()))
	for _, c := range p.OrderedCollections() {
		collections = append(collections, map[string]any{
			"type":             string(c.Type),
			"enforcement_mode": string(c.EnforcementMode),
			"rule_count":       int64(len(c.Rules)),
		})
	}

	service := map[string]any{"known": env.Service != nil}
	if env.Service != nil {
		service["installed"] = env.Service.Installed
		service["running"] = env.Service.Running
		service["auto_start"] = env.Service.AutoStart
	}

	return map[string]any{
		"counts":      counts,
		"collections": collections,
		"rules":       rules,
		"service":     service,
	}
}

func ruleInput(r models.Rule) map[string]any {
	m := map[string]any{
		"id":         r.ID,
		"name":       r.Name,
		"type":       string(r.Type),
		"action":     string(r.Action),
		"collection": string(r.CollectionType),
		"principal":  r.TargetPrincipal,
		"publisher":  "",
		"path":       "",
		"hash":       "",
	}
	switch c := r.Condition.(type) {
	case *models.PublisherCondition:
		m["publisher"] = c.PublisherName
	case *models.PathCondition:
		m["path"] = c.Path
	case *models.HashCondition:
		m["hash"] = models.NormalizeHash(c.Data)
	}
	return m
}
