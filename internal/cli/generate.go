package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ruleforge/ruleforge/internal/config"
	"github.com/ruleforge/ruleforge/internal/inspect"
	"github.com/ruleforge/ruleforge/internal/merge"
	"github.com/ruleforge/ruleforge/internal/metrics"
	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
	otelobs "github.com/ruleforge/ruleforge/internal/observability/otel"
	"github.com/ruleforge/ruleforge/internal/observability/receipt"
	"github.com/ruleforge/ruleforge/internal/synth"
)

type generateOptions struct {
	artifacts        string
	existing         string
	output           string
	action           string
	collection       string
	principal        string
	enforcement      string
	strategy         string
	groupByPublisher bool
	inspect          bool
	strict           bool
	json             bool
}

func newGenerateCmd(a *app) *cobra.Command {
	o := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate --artifacts <file>",
		Short: "Generate AppLocker rules from scan artifacts",
		Long: `Generate reads scan artifacts (a JSON array or JSON lines), synthesizes
the strongest rule each artifact supports and merges the rules into a policy.

Signed files get publisher rules, unsigned files get hash rules. Artifacts
with neither are skipped and reported. Path rules are never generated.

Examples:
  ruleforge generate --artifacts scan.json --output policy.xml
  ruleforge generate --artifacts scan.json --existing current.xml --group-by-publisher
  cat scan.jsonl | ruleforge generate --artifacts - --action Deny --collection Script`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.artifacts, "artifacts", "a", "", "Artifact records (JSON array or JSONL, - for stdin)")
	f.StringVarP(&o.existing, "existing", "e", "", "Existing policy XML to merge into")
	f.StringVarP(&o.output, "output", "o", stdio, "Output policy XML (- for stdout)")
	f.StringVar(&o.action, "action", "", "Rule action: Allow or Deny")
	f.StringVar(&o.collection, "collection", "", "Rule collection: Exe, Msi, Script, Dll, Appx")
	f.StringVar(&o.principal, "principal", "", "User or group the rules apply to")
	f.StringVar(&o.enforcement, "enforcement-mode", "", "Mode for new collections: NotConfigured, AuditOnly, Enabled")
	f.StringVar(&o.strategy, "strategy", "", "Conflict resolution: KeepFirst, KeepLast, MergeAll, Newest")
	f.BoolVar(&o.groupByPublisher, "group-by-publisher", false, "Emit one rule per publisher instead of per file")
	f.BoolVar(&o.inspect, "inspect", false, "Read files on disk for missing signers and hashes")
	f.BoolVar(&o.strict, "strict", false, "Fail when any artifact record is invalid")
	f.BoolVar(&o.json, "json", false, "Print statistics as JSON")
	_ = cmd.MarkFlagRequired("artifacts")
	return cmd
}

// resolve layers command flags over the loaded profile.
func (o *generateOptions) resolve(cmd *cobra.Command, base *config.Config) (*config.Config, error) {
	cfg := *base
	f := cmd.Flags()
	if f.Changed("action") {
		cfg.Action = models.Action(o.action)
	}
	if f.Changed("collection") {
		cfg.CollectionType = models.CollectionType(o.collection)
	}
	if f.Changed("principal") {
		cfg.TargetPrincipal = o.principal
	}
	if f.Changed("enforcement-mode") {
		cfg.EnforcementMode = models.EnforcementMode(o.enforcement)
	}
	if f.Changed("strategy") {
		cfg.ConflictResolution = models.ConflictStrategy(o.strategy)
	}
	if f.Changed("group-by-publisher") {
		cfg.GroupByPublisher = o.groupByPublisher
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}
	return &cfg, nil
}

func (a *app) runGenerate(cmd *cobra.Command, o *generateOptions) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)
	start := time.Now()

	ctx, span := otelobs.StartSpan(ctx, "generate", otelobs.String("artifacts", o.artifacts))
	sess := receipt.Start(ctx, "ruleforge generate", a.args)
	var receiptOpts []receipt.Option
	defer func() {
		otelobs.EndSpan(span, err)
		receiptOpts = append(receiptOpts, receipt.WithInput(o.existing))
		if o.output != stdio {
			receiptOpts = append(receiptOpts, receipt.WithOutput(o.output))
		}
		_ = sess.Finish(err, receiptOpts...)
		log.Event(ctx, "generate.complete", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"ok":          err == nil,
		})
	}()

	base, err := a.config()
	if err != nil {
		return err
	}
	cfg, err := o.resolve(cmd, base)
	if err != nil {
		return err
	}

	artifacts, bad, err := readArtifacts(o.artifacts, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if o.artifacts != stdio {
		receiptOpts = append(receiptOpts, receipt.WithInput(o.artifacts))
	}
	for _, rec := range bad {
		log.Warn("cli", "artifact record rejected", "index", rec.Index, "error", rec.Err.Error())
	}
	if len(bad) > 0 && o.strict {
		return usageError(fmt.Errorf("%d invalid artifact records (first: %v)", len(bad), bad[0]))
	}

	sopts := cfg.SynthOptions()
	sopts.Logger = log
	if o.inspect {
		sopts.Inspector = inspect.NewFileInspector()
	}
	batch, err := synth.SynthesizeBatch(artifacts, sopts)
	if err != nil {
		return usageError(err)
	}
	stats := batch.Stats
	stats.Errors += len(bad)
	span.SetAttributes(otelobs.Int("rules", len(batch.Rules)), otelobs.Int("skipped", stats.Skipped))

	var existing *models.Policy
	if o.existing != "" {
		if existing, err = readPolicy(o.existing); err != nil {
			return err
		}
	}

	mopts := cfg.MergeOptions()
	mopts.Logger = log
	merged, err := merge.Merge(existing, batch.Rules, mopts)
	if err != nil {
		return usageError(err)
	}
	if existing == nil {
		merged.Policy.Provenance = models.ProvenanceArtifact
	}
	for _, rej := range merged.Rejected {
		log.Warn("cli", "rule not merged", "rule", rej.Rule.Name, "error", rej.Err.Error())
	}

	if err := writePolicy(o.output, merged.Policy, cmd.OutOrStdout()); err != nil {
		return err
	}

	m := metrics.From(ctx)
	m.RecordGeneration(stats)
	m.RecordMerge(merged.Stats)
	m.RecordPolicy(merged.Policy)
	receiptOpts = append(receiptOpts,
		receipt.WithGeneration(len(artifacts)+len(bad), stats),
		receipt.WithMerge(mergeSummary(mopts.Strategy, merged.Stats)))

	return printGenerateResult(summaryWriter(cmd, o.output), o.json, stats, merged)
}

// summaryWriter keeps stdout clean when the policy itself goes there.
func summaryWriter(cmd *cobra.Command, output string) io.Writer {
	if output == stdio {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

func printGenerateResult(w io.Writer, asJSON bool, stats models.GenerationStatistics, merged merge.Result) error {
	if asJSON {
		rejected := make([]string, 0, len(merged.Rejected))
		for _, r := range merged.Rejected {
			rejected = append(rejected, fmt.Sprintf("%s: %v", r.Rule.Name, r.Err))
		}
		return writeJSON(w, map[string]any{
			"statistics": stats,
			"merge":      merged.Stats,
			"rejected":   rejected,
			"ruleCount":  merged.Policy.RuleCount(),
		})
	}
	printGenerationStats(w, stats, merged.Stats)
	return nil
}

func mergeSummary(strategy models.ConflictStrategy, s merge.Stats) receipt.MergeSummary {
	if strategy == "" {
		strategy = models.StrategyKeepFirst
	}
	return receipt.MergeSummary{
		Strategy:  string(strategy),
		Added:     s.Added,
		Replaced:  s.Replaced,
		Discarded: s.Discarded,
		Errors:    s.Errors,
	}
}
