package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ruleforge/ruleforge/internal/differ"
	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
	otelobs "github.com/ruleforge/ruleforge/internal/observability/otel"
	"github.com/ruleforge/ruleforge/internal/observability/receipt"
)

// FailOnLevel threshold for a failing policy comparison
type FailOnLevel string

const (
	FailOnCritical FailOnLevel = "critical"
	FailOnModerate FailOnLevel = "moderate"
	FailOnInfo     FailOnLevel = "info"
)

func ParseFailOnLevel(s string) (FailOnLevel, error) {
	switch l := FailOnLevel(strings.ToLower(s)); l {
	case FailOnCritical, FailOnModerate, FailOnInfo:
		return l, nil
	}
	return "", fmt.Errorf("invalid fail-on level: %s (use critical, moderate, or info)", s)
}

// ShouldFail reports whether a change of this severity crosses the threshold.
func (f FailOnLevel) ShouldFail(s differ.SeverityLevel) bool {
	switch f {
	case FailOnInfo:
		return true
	case FailOnModerate:
		return s >= differ.SeverityModerate
	default:
		return s == differ.SeverityCritical
	}
}

type diffOptions struct {
	artifacts  string
	policy     string
	provenance string
	oldPolicy  string
	newPolicy  string
	failOn     string
	json       bool
}

func newDiffCmd(a *app) *cobra.Command {
	o := &diffOptions{}
	cmd := &cobra.Command{
		Use:   "diff (--artifacts <file> --policy <xml> | --old <xml> --new <xml>)",
		Short: "Compare artifacts or policies against a policy",
		Long: `Diff has two modes.

With --artifacts and --policy it lists artifacts no rule covers and, for
policies generated by ruleforge, rules no artifact supports any more.
Nothing is applied.

With --old and --new it explains every change between two policies and
grades it critical, moderate or safe.

Exit codes: 0 no changes, 1 changes found, 2 usage error.

Examples:
  ruleforge diff --artifacts scan.json --policy policy.xml
  ruleforge diff --artifacts scan.json --policy gpo.xml --provenance artifact
  ruleforge diff --old deployed.xml --new candidate.xml --fail-on critical`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDiff(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.artifacts, "artifacts", "a", "", "Artifact records (JSON array or JSONL, - for stdin)")
	f.StringVarP(&o.policy, "policy", "p", "", "Policy XML the artifacts are compared with")
	f.StringVar(&o.provenance, "provenance", "", "Override the policy provenance: artifact or external")
	f.StringVar(&o.oldPolicy, "old", "", "Baseline policy XML")
	f.StringVar(&o.newPolicy, "new", "", "Candidate policy XML")
	f.StringVar(&o.failOn, "fail-on", string(FailOnInfo), "Severity that fails a policy comparison: critical, moderate, or info")
	f.BoolVar(&o.json, "json", false, "Print the result as JSON")
	cmd.MarkFlagsRequiredTogether("artifacts", "policy")
	cmd.MarkFlagsRequiredTogether("old", "new")
	cmd.MarkFlagsOneRequired("artifacts", "old")
	cmd.MarkFlagsMutuallyExclusive("artifacts", "old")
	return cmd
}

// errChanges signals exit 1 after the changes have been printed.
var errChanges = &ExitError{Code: ExitFail}

func (a *app) runDiff(cmd *cobra.Command, o *diffOptions) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)

	ctx, span := otelobs.StartSpan(ctx, "diff")
	sess := receipt.Start(ctx, "ruleforge diff", a.args)
	var receiptOpts []receipt.Option
	defer func() {
		otelobs.EndSpan(span, ignoreChanges(err))
		_ = sess.Finish(ignoreChanges(err), receiptOpts...)
	}()

	if o.oldPolicy != "" {
		failOn, err := ParseFailOnLevel(o.failOn)
		if err != nil {
			return usageError(err)
		}
		receiptOpts = append(receiptOpts, receipt.WithInput(o.oldPolicy), receipt.WithInput(o.newPolicy))
		return a.comparePolicies(cmd, o, failOn, &receiptOpts)
	}

	artifacts, bad, err := readArtifacts(o.artifacts, cmd.InOrStdin())
	if err != nil {
		return err
	}
	for _, rec := range bad {
		log.Warn("cli", "artifact record rejected", "index", rec.Index, "error", rec.Err.Error())
	}
	policy, err := readPolicy(o.policy)
	if err != nil {
		return err
	}
	if o.provenance != "" {
		switch p := models.Provenance(strings.ToLower(o.provenance)); p {
		case models.ProvenanceArtifact, models.ProvenanceExternal:
			policy.Provenance = p
		default:
			return usageError(fmt.Errorf("invalid provenance %q (use artifact or external)", o.provenance))
		}
	}
	receiptOpts = append(receiptOpts, receipt.WithInput(o.artifacts), receipt.WithInput(o.policy))

	delta := differ.Diff(artifacts, policy)
	log.Info("cli", "artifact diff computed",
		"new_items", len(delta.NewItems),
		"removed_items", len(delta.RemovedItems),
		"provenance", string(policy.Provenance))
	receiptOpts = append(receiptOpts, receipt.WithDiff(receipt.DiffSummary{
		NewItems:     len(delta.NewItems),
		RemovedItems: len(delta.RemovedItems),
	}))

	if o.json {
		err = writeJSON(cmd.OutOrStdout(), delta)
	} else {
		printDelta(cmd.OutOrStdout(), delta)
	}
	if err != nil {
		return err
	}
	if delta.HasChanges() {
		return errChanges
	}
	return nil
}

func (a *app) comparePolicies(cmd *cobra.Command, o *diffOptions, failOn FailOnLevel, receiptOpts *[]receipt.Option) error {
	oldPolicy, err := readPolicy(o.oldPolicy)
	if err != nil {
		return err
	}
	newPolicy, err := readPolicy(o.newPolicy)
	if err != nil {
		return err
	}

	d, err := differ.ComparePolicies(oldPolicy, newPolicy)
	if err != nil {
		return err
	}
	maxSeverity := d.MaxSeverity().String()
	*receiptOpts = append(*receiptOpts, receipt.WithDiff(receipt.DiffSummary{
		Changes:     len(d.Changes),
		MaxSeverity: maxSeverity,
	}))

	if o.json {
		if err := writeJSON(cmd.OutOrStdout(), d); err != nil {
			return err
		}
	} else {
		printPolicyDiff(cmd.OutOrStdout(), d)
	}

	if d.HasChanges && failOn.ShouldFail(d.MaxSeverity()) {
		return errChanges
	}
	return nil
}

// ignoreChanges keeps detected drift from being recorded as a failure.
func ignoreChanges(err error) error {
	if errors.Is(err, errChanges) {
		return nil
	}
	return err
}
