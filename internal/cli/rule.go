package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruleforge/ruleforge/internal/merge"
	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
	otelobs "github.com/ruleforge/ruleforge/internal/observability/otel"
	"github.com/ruleforge/ruleforge/internal/observability/receipt"
	"github.com/ruleforge/ruleforge/internal/synth"
)

func newRuleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Add hand-written rules to a policy",
	}
	cmd.AddCommand(newRulePathCmd(a))
	return cmd
}

type rulePathOptions struct {
	path       string
	policy     string
	output     string
	action     string
	collection string
	principal  string
}

func newRulePathCmd(a *app) *cobra.Command {
	o := &rulePathOptions{}
	cmd := &cobra.Command{
		Use:   "path --path <pattern>",
		Short: "Add a path rule",
		Long: `Path adds one path rule. Generation never produces path rules, so this
is the only way to create them. Wildcards and AppLocker path variables such
as %PROGRAMFILES% are written as given.

Examples:
  ruleforge rule path --path "%PROGRAMFILES%\Contoso\*" --policy policy.xml --output policy.xml
  ruleforge rule path --path "%WINDIR%\System32\mshta.exe" --action Deny --policy policy.xml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRulePath(cmd, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.path, "path", "", "File or folder path pattern")
	f.StringVarP(&o.policy, "policy", "p", "", "Policy XML to add the rule to (empty starts a new policy)")
	f.StringVarP(&o.output, "output", "o", stdio, "Output policy XML (- for stdout)")
	f.StringVar(&o.action, "action", "", "Rule action: Allow or Deny")
	f.StringVar(&o.collection, "collection", "", "Rule collection: Exe, Msi, Script, Dll, Appx")
	f.StringVar(&o.principal, "principal", "", "User or group the rule applies to")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func (a *app) runRulePath(cmd *cobra.Command, o *rulePathOptions) (err error) {
	ctx := cmd.Context()
	log := logging.From(ctx)

	ctx, span := otelobs.StartSpan(ctx, "rule.path")
	sess := receipt.Start(ctx, "ruleforge rule path", a.args)
	defer func() {
		otelobs.EndSpan(span, err)
		_ = sess.Finish(err, receipt.WithInput(o.policy))
	}()

	cfg, err := a.config()
	if err != nil {
		return err
	}
	sopts := cfg.SynthOptions()
	sopts.Logger = log
	if cmd.Flags().Changed("action") {
		if sopts.Action, err = models.ParseAction(o.action); err != nil {
			return usageError(err)
		}
	}
	if cmd.Flags().Changed("collection") {
		if sopts.CollectionType, err = models.ParseCollectionType(o.collection); err != nil {
			return usageError(err)
		}
	}
	if cmd.Flags().Changed("principal") {
		sopts.TargetPrincipal = o.principal
	}

	rule, err := synth.CreatePathRule(o.path, sopts)
	if err != nil {
		return usageError(err)
	}

	var policy *models.Policy
	if o.policy != "" {
		if policy, err = readPolicy(o.policy); err != nil {
			return err
		}
	}

	mopts := cfg.MergeOptions()
	mopts.Logger = log
	res, err := merge.Merge(policy, []models.Rule{rule}, mopts)
	if err != nil {
		return usageError(err)
	}
	if policy == nil {
		res.Policy.Provenance = models.ProvenanceExternal
	}

	if err := writePolicy(o.output, res.Policy, cmd.OutOrStdout()); err != nil {
		return err
	}

	w := summaryWriter(cmd, o.output)
	if res.Stats.Added == 0 && res.Stats.Replaced == 0 {
		fmt.Fprintf(w, "%s⚠ %s collection already has a rule for %s%s\n", colorYellow, rule.CollectionType, o.path, colorReset)
		return nil
	}
	fmt.Fprintf(w, "%s✓ Added %s (%s) to %s collection%s\n", colorGreen, rule.Name, rule.Action, rule.CollectionType, colorReset)
	return nil
}
