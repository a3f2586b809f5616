package health

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruleforge/ruleforge/internal/models"
)

func TestEmbeddedPresetsCompile(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			cfg, err := Preset(name)
			if err != nil {
				t.Fatalf("Preset(%q) failed: %v", name, err)
			}
			if cfg.Name == "" {
				t.Errorf("preset %q has empty name", name)
			}
			set, err := Compile(cfg)
			if err != nil {
				t.Fatalf("preset %q does not compile: %v", name, err)
			}
			if set.Len() == 0 {
				t.Errorf("preset %q has no checks", name)
			}
		})
	}
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("paranoid")
	if !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestPreset_ParsedPerCall(t *testing.T) {
	a, _ := Preset("baseline")
	a.Checks = nil
	b, _ := Preset("baseline")
	if len(b.Checks) == 0 {
		t.Error("mutating one preset copy must not affect the next")
	}
}

func TestCompile_ReportsAllProblems(t *testing.T) {
	cfg := &CheckConfig{
		Name: "broken",
		Checks: []Check{
			{Name: "syntax", Expr: "input.counts.hash >", Severity: "Warning"},
			{Name: "not_bool", Expr: `"text"`, Severity: "Info"},
			{Name: "bad_severity", Expr: "true", Severity: "Fatal"},
			{Name: "ok", Expr: "true", Severity: "Info"},
		},
	}

	_, err := Compile(cfg)
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	for _, name := range []string{"syntax", "not_bool", "bad_severity"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention %q: %v", name, err)
		}
	}
	if strings.Contains(err.Error(), `"ok"`) {
		t.Errorf("error should not mention the valid check: %v", err)
	}
}

func TestCheckSet_Run(t *testing.T) {
	cfg := &CheckConfig{
		Name: "test",
		Checks: []Check{
			{
				Name:       "few_hash_rules",
				Expr:       "input.counts.hash < 2",
				Severity:   "Warning",
				FailureMsg: "Too many hash rules",
			},
			{
				Name:     "has_deny",
				Expr:     "input.counts.deny > 0",
				Severity: "Critical",
				Category: "DenyCoverage",
			},
			{
				Name:     "missing_field",
				Expr:     "input.service.running",
				Severity: "Info",
			},
			{
				Name:     "publisher_known",
				Expr:     `input.rules.exists(r, r.publisher == "O=Contoso*")`,
				Severity: "Info",
			},
		},
	}
	set, err := Compile(cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	p := policyOf(hashRule(1), hashRule(2), publisherRule("pub", "O=Contoso*", models.ActionAllow))
	findings := set.Run(p, Environment{})

	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d: %+v", len(findings), findings)
	}
	if findings[0].Message != "Too many hash rules" || findings[0].Severity != models.SeverityWarning {
		t.Errorf("unexpected first finding: %+v", findings[0])
	}
	if findings[1].Category != "DenyCoverage" || findings[1].Severity != models.SeverityCritical {
		t.Errorf("unexpected second finding: %+v", findings[1])
	}
	if findings[1].Message != `Check "has_deny" failed` {
		t.Errorf("default message = %q", findings[1].Message)
	}
	if !strings.Contains(findings[2].Message, "could not be evaluated") || findings[2].Category != CategoryCustom {
		t.Errorf("eval error should become a finding: %+v", findings[2])
	}
}

func TestEvaluate_CustomChecksAppended(t *testing.T) {
	set, err := Compile(&CheckConfig{Checks: []Check{{Name: "never", Expr: "false", Severity: "Info"}}})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	report := Evaluate(policyOf(hashRule(1)), Environment{}, Options{Checks: set})
	if len(report.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(report.Findings))
	}
	if report.Findings[1].Category != CategoryCustom {
		t.Errorf("custom finding should come last: %+v", report.Findings)
	}
	if report.Score != 98 {
		t.Errorf("score = %d, want 98", report.Score)
	}
}

func TestLoadChecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checks.yaml")
	content := `name: local
checks:
  - name: enforced
    expr: 'input.collections.all(c, c.enforcement_mode == "Enabled")'
    severity: warning
    failure_msg: not enforced
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadChecks(path)
	if err != nil {
		t.Fatalf("LoadChecks failed: %v", err)
	}
	set, err := Compile(cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if set.Name() != "local" || set.Len() != 1 {
		t.Errorf("unexpected set: name=%q len=%d", set.Name(), set.Len())
	}

	findings := set.Run(policyOf(hashRule(1)), Environment{})
	if len(findings) != 1 || findings[0].Severity != models.SeverityWarning {
		t.Errorf("unexpected findings: %+v", findings)
	}
}
