package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruleforge/ruleforge/internal/merge"
	"github.com/ruleforge/ruleforge/internal/metrics"
	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
	otelobs "github.com/ruleforge/ruleforge/internal/observability/otel"
	"github.com/ruleforge/ruleforge/internal/observability/receipt"
)

type mergeOptions struct {
	base                string
	other               string
	output              string
	strategy            string
	overrideEnforcement bool
	json                bool
}

func newMergeCmd(a *app) *cobra.Command {
	o := &mergeOptions{}
	cmd := &cobra.Command{
		Use:   "merge --base <policy.xml> --other <policy.xml>",
		Short: "Merge two AppLocker policies",
		Long: `Merge folds every rule of --other into a copy of --base. Rules with the
same identity in the same collection are resolved by --strategy.

When both policies configure a collection, the base enforcement mode is kept
unless --override-enforcement is set.

AppLocker XML stores no rule timestamps, so --strategy Newest keeps the base
rule for every conflict between two XML files. Use KeepLast to prefer --other.

Examples:
  ruleforge merge --base gpo.xml --other generated.xml --output merged.xml
  ruleforge merge --base a.xml --other b.xml --strategy KeepLast --override-enforcement`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMerge(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.base, "base", "", "Base policy XML")
	f.StringVar(&o.other, "other", "", "Policy XML merged into the base")
	f.StringVarP(&o.output, "output", "o", stdio, "Output policy XML (- for stdout)")
	f.StringVar(&o.strategy, "strategy", "", "Conflict resolution: KeepFirst, KeepLast, MergeAll, Newest")
	f.BoolVar(&o.overrideEnforcement, "override-enforcement", false, "Adopt the other policy's enforcement modes")
	f.BoolVar(&o.json, "json", false, "Print statistics as JSON")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("other")
	return cmd
}

func (a *app) runMerge(cmd *cobra.Command, o *mergeOptions) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)

	ctx, span := otelobs.StartSpan(ctx, "merge")
	sess := receipt.Start(ctx, "ruleforge merge", a.args)
	var receiptOpts []receipt.Option
	defer func() {
		otelobs.EndSpan(span, err)
		_ = sess.Finish(err, receiptOpts...)
	}()

	cfg, err := a.config()
	if err != nil {
		return err
	}
	opts := cfg.MergeOptions()
	if cmd.Flags().Changed("strategy") {
		if opts.Strategy, err = models.ParseConflictStrategy(o.strategy); err != nil {
			return usageError(err)
		}
	}
	opts.OverrideEnforcement = o.overrideEnforcement
	opts.Logger = log

	base, err := readPolicy(o.base)
	if err != nil {
		return err
	}
	other, err := readPolicy(o.other)
	if err != nil {
		return err
	}
	receiptOpts = append(receiptOpts, receipt.WithInput(o.base), receipt.WithInput(o.other))

	res, err := merge.MergePolicies(base, other, opts)
	if err != nil {
		return usageError(err)
	}
	for _, rej := range res.Rejected {
		log.Warn("cli", "rule not merged", "rule", rej.Rule.Name, "error", rej.Err.Error())
	}

	if err := writePolicy(o.output, res.Policy, cmd.OutOrStdout()); err != nil {
		return err
	}
	if o.output != stdio {
		receiptOpts = append(receiptOpts, receipt.WithOutput(o.output))
	}

	m := metrics.From(ctx)
	m.RecordMerge(res.Stats)
	m.RecordPolicy(res.Policy)
	receiptOpts = append(receiptOpts, receipt.WithMerge(mergeSummary(opts.Strategy, res.Stats)))

	w := summaryWriter(cmd, o.output)
	if o.json {
		return writeJSON(w, res.Stats)
	}
	s := res.Stats
	fmt.Fprintf(w, "%s✓ Merged %d rules%s (%d added, %d replaced, %d discarded)\n",
		colorGreen, s.Added+s.Replaced, colorReset, s.Added, s.Replaced, s.Discarded)
	if s.Errors > 0 {
		fmt.Fprintf(w, "%s⚠ %d rules could not be merged (see log)%s\n", colorRed, s.Errors, colorReset)
	}
	if s.Undated > 0 {
		fmt.Fprintf(w, "%s⚠ %d conflicts had no timestamps; kept the base rule (use --strategy KeepLast to prefer --other)%s\n",
			colorYellow, s.Undated, colorReset)
	}
	return nil
}
