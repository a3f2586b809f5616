package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruleforge/ruleforge/internal/config"
	"github.com/ruleforge/ruleforge/internal/health"
	"github.com/ruleforge/ruleforge/internal/metrics"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
	otelobs "github.com/ruleforge/ruleforge/internal/observability/otel"
	"github.com/ruleforge/ruleforge/internal/observability/receipt"
)

type healthOptions struct {
	policy           string
	serviceInstalled bool
	serviceRunning   bool
	serviceAutoStart bool
	checks           string
	preset           string
	failUnder        int
	json             bool
}

func newHealthCmd(a *app) *cobra.Command {
	o := &healthOptions{}
	cmd := &cobra.Command{
		Use:   "health --policy <policy.xml>",
		Short: "Score the security posture of a policy",
		Long: `Health runs the built-in checks (hash rule volume, user-writable path
rules, enforcement service state, deny coverage, catch-all rules) plus any
custom CEL checks, and scores the policy from 0 to 100.

Service state is unknown unless one of the --service-* flags is given.

Examples:
  ruleforge health --policy policy.xml
  ruleforge health --policy policy.xml --service-running --service-auto-start --preset strict
  ruleforge health --policy policy.xml --checks org-checks.yaml --fail-under 80 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHealth(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.policy, "policy", "p", "", "Policy XML to evaluate")
	f.BoolVar(&o.serviceInstalled, "service-installed", false, "Enforcement service is installed")
	f.BoolVar(&o.serviceRunning, "service-running", false, "Enforcement service is running (implies installed)")
	f.BoolVar(&o.serviceAutoStart, "service-auto-start", false, "Enforcement service starts automatically")
	f.StringVar(&o.checks, "checks", "", "Custom health check YAML")
	f.StringVar(&o.preset, "preset", "", "Embedded check preset: "+fmt.Sprint(health.PresetNames()))
	f.IntVar(&o.failUnder, "fail-under", 0, "Exit 1 when the score is below this value")
	f.BoolVar(&o.json, "json", false, "Print the report as JSON")
	_ = cmd.MarkFlagRequired("policy")
	cmd.MarkFlagsMutuallyExclusive("checks", "preset")
	return cmd
}

func (o *healthOptions) environment(cmd *cobra.Command) health.Environment {
	f := cmd.Flags()
	if !f.Changed("service-installed") && !f.Changed("service-running") && !f.Changed("service-auto-start") {
		return health.Environment{}
	}
	installed := o.serviceInstalled || o.serviceRunning
	if f.Changed("service-installed") && !o.serviceInstalled {
		installed = false
	}
	return health.Environment{Service: &health.ServiceStatus{
		Installed: installed,
		Running:   installed && o.serviceRunning,
		AutoStart: installed && o.serviceAutoStart,
	}}
}

// checkRef picks --checks, then --preset, then the profile's healthChecks.
func (o *healthOptions) checkRef(cfg *config.Config) string {
	switch {
	case o.checks != "":
		return o.checks
	case o.preset != "":
		return config.PresetPrefix + o.preset
	}
	return cfg.HealthChecks
}

func (a *app) runHealth(cmd *cobra.Command, o *healthOptions) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)

	ctx, span := otelobs.StartSpan(ctx, "health", otelobs.String("policy", o.policy))
	sess := receipt.Start(ctx, "ruleforge health", a.args)
	var receiptOpts []receipt.Option
	defer func() {
		otelobs.EndSpan(span, err)
		_ = sess.Finish(err, append(receiptOpts, receipt.WithInput(o.policy))...)
	}()

	cfg, err := a.config()
	if err != nil {
		return err
	}
	ref := o.checkRef(cfg)
	checks, err := config.LoadCheckSet(ref)
	if err != nil {
		return usageError(err)
	}

	policy, err := readPolicy(o.policy)
	if err != nil {
		return err
	}

	report := health.Evaluate(policy, o.environment(cmd), health.Options{Checks: checks, Logger: log})
	span.SetAttributes(otelobs.Int("score", report.Score), otelobs.String("status", string(report.Status)))
	metrics.From(ctx).RecordHealth(report)
	receiptOpts = append(receiptOpts, receipt.WithHealth(ref, report))

	out := cmd.OutOrStdout()
	if o.json {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		printHealthReport(out, report)
	}

	if report.Score < o.failUnder {
		return &ExitError{Code: ExitFail, Err: fmt.Errorf("health score %d is below %d", report.Score, o.failUnder)}
	}
	return nil
}
