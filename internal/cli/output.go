package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ruleforge/ruleforge/internal/differ"
	"github.com/ruleforge/ruleforge/internal/merge"
	"github.com/ruleforge/ruleforge/internal/models"
)

// ANSI color codes
const (
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printGenerationStats(w io.Writer, s models.GenerationStatistics, m merge.Stats) {
	fmt.Fprintf(w, "%s✓ Generated %d rules%s\n", colorGreen, s.TotalRules(), colorReset)
	fmt.Fprintf(w, "  Publisher: %d  Hash: %d  Path: %d\n", s.PublisherRules, s.HashRules, s.PathRules)
	fmt.Fprintf(w, "  Merged:    %d added, %d replaced, %d discarded\n", m.Added, m.Replaced, m.Discarded)
	if s.Duplicates > 0 {
		fmt.Fprintf(w, "  Duplicates removed: %d\n", s.Duplicates)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(w, "%s⚠ Skipped %d artifacts:%s\n", colorYellow, s.Skipped, colorReset)
		for _, item := range s.SkippedItems {
			fmt.Fprintf(w, "    %s (%s)\n", item.Identity, item.Reason)
		}
	}
	if errs := s.Errors + m.Errors; errs > 0 {
		fmt.Fprintf(w, "%s⚠ %d errors (see log)%s\n", colorRed, errs, colorReset)
	}
}

func colorForStatus(s models.HealthStatus) string {
	switch s {
	case models.StatusHealthy:
		return colorGreen
	case models.StatusWarning:
		return colorYellow
	default:
		return colorRed
	}
}

func colorForFinding(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return colorRed
	case models.SeverityWarning:
		return colorYellow
	default:
		return colorReset
	}
}

func printHealthReport(w io.Writer, r models.HealthReport) {
	fmt.Fprintf(w, "%sScore: %d/100 (%s)%s\n", colorForStatus(r.Status), r.Score, r.Status, colorReset)
	fmt.Fprintf(w, "  Critical: %d  Warning: %d  Info: %d\n", r.Summary.Critical, r.Summary.Warning, r.Summary.Info)
	if len(r.Findings) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, f := range r.Findings {
		fmt.Fprintf(w, "%s[%s] %s%s\n", colorForFinding(f.Severity), f.Severity, f.Message, colorReset)
		if f.Recommendation != "" {
			fmt.Fprintf(w, "    → %s\n", f.Recommendation)
		}
	}
}

func printDelta(w io.Writer, d differ.Delta) {
	if !d.HasChanges() {
		fmt.Fprintf(w, "%s✓ Policy covers every artifact%s\n", colorGreen, colorReset)
		return
	}
	if len(d.NewItems) > 0 {
		fmt.Fprintf(w, "%s%d artifacts not covered by any rule:%s\n", colorYellow, len(d.NewItems), colorReset)
		for _, a := range d.NewItems {
			fmt.Fprintf(w, "  + %s\n", a.Path)
		}
	}
	if len(d.RemovedItems) > 0 {
		fmt.Fprintf(w, "%s%d rules no artifact supports any more:%s\n", colorRed, len(d.RemovedItems), colorReset)
		for _, r := range d.RemovedItems {
			fmt.Fprintf(w, "  - %s [%s]\n", r.Name, r.CollectionType)
		}
	}
}

func colorForSeverity(s differ.SeverityLevel) string {
	switch s {
	case differ.SeverityCritical:
		return colorRed
	case differ.SeverityModerate:
		return colorYellow
	case differ.SeveritySafe:
		return colorGreen
	default:
		return colorReset
	}
}

func printPolicyDiff(w io.Writer, d *differ.PolicyDiff) {
	if !d.HasChanges {
		fmt.Fprintf(w, "%s✓ No changes%s\n", colorGreen, colorReset)
		return
	}

	fmt.Fprintf(w, "\n%s╔══════════════════════════════════════╗%s\n", colorYellow, colorReset)
	fmt.Fprintf(w, "%s║         POLICY CHANGES               ║%s\n", colorYellow, colorReset)
	fmt.Fprintf(w, "%s╚══════════════════════════════════════╝%s\n\n", colorYellow, colorReset)

	var current models.CollectionType
	for _, c := range d.Changes {
		if c.Collection != current {
			current = c.Collection
			fmt.Fprintf(w, "[%s]\n", current)
		}
		fmt.Fprintf(w, "  %s• %s%s\n", colorForSeverity(c.Severity), c.Message, colorReset)
	}
	fmt.Fprintln(w)
}
