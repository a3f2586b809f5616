package synth

import (
	"fmt"
	"strings"

	"github.com/ruleforge/ruleforge/internal/artifact"
	"github.com/ruleforge/ruleforge/internal/models"
)

// BatchResult rules and counters for one synthesis run
type BatchResult struct {
	Rules []models.Rule
	Stats models.GenerationStatistics
}

type publisherGroup struct {
	pattern string
	members []models.Artifact
}

// SynthesizeBatch deduplicates artifacts by path and synthesizes rules for the
// survivors. With GroupByPublisher every distinct publisher yields exactly one
// rule; artifacts without a publisher fall through to per-artifact synthesis.
func SynthesizeBatch(artifacts []models.Artifact, opts Options) (BatchResult, error) {
	if err := opts.Validate(); err != nil {
		return BatchResult{}, err
	}
	opts = opts.withDefaults()

	var res BatchResult
	survivors, dupes := artifact.DedupeByPath(artifacts)
	res.Stats.Duplicates += dupes

	if !opts.GroupByPublisher {
		survivors, dupes = artifact.DedupeByPublisherName(survivors)
		res.Stats.Duplicates += dupes
	}

	var groups []*publisherGroup
	index := make(map[string]*publisherGroup)
	var signed []models.Artifact
	var signedEvidence []evidence
	var unsigned []models.Artifact
	var unsignedEvidence []evidence

	for _, a := range survivors {
		ev := lookupPublisher(a, opts)
		res.Stats.Errors += ev.failures
		if ev.publisher == nil {
			unsigned = append(unsigned, a)
			unsignedEvidence = append(unsignedEvidence, ev)
			continue
		}
		if !opts.GroupByPublisher {
			signed = append(signed, a)
			signedEvidence = append(signedEvidence, ev)
			continue
		}

		key := strings.ToLower(*ev.publisher)
		g, ok := index[key]
		if !ok {
			g = &publisherGroup{pattern: *ev.publisher}
			index[key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, a)
	}

	for _, g := range groups {
		res.add(groupRule(g, opts))
	}
	for i, a := range signed {
		res.addOutcome(synthesize(a, opts, signedEvidence[i]))
	}

	// Unsigned artifacts carrying the same content need one hash rule.
	fallthroughSet, dupes := dedupeUnsigned(unsigned, unsignedEvidence)
	res.Stats.Duplicates += dupes
	for _, item := range fallthroughSet {
		ev := item.ev
		lookupHash(item.artifact, opts, &ev)
		res.Stats.Errors += ev.failures - item.ev.failures
		res.addOutcome(synthesize(item.artifact, opts, ev))
	}

	opts.Logger.Info("synth", "batch complete",
		"artifacts", len(artifacts),
		"rules", len(res.Rules),
		"skipped", res.Stats.Skipped,
		"duplicates", res.Stats.Duplicates,
		"grouped", opts.GroupByPublisher)
	return res, nil
}

type pending struct {
	artifact models.Artifact
	ev       evidence
}

// dedupeUnsigned drops hash duplicates and keeps each survivor paired with its
// evidence. Survivors are an ordered subsequence of in.
func dedupeUnsigned(in []models.Artifact, evs []evidence) ([]pending, int) {
	kept, dupes := artifact.DedupeByHash(in)
	out := make([]pending, 0, len(kept))
	j := 0
	for i, a := range in {
		if j < len(kept) && a == kept[j] {
			out = append(out, pending{artifact: kept[j], ev: evs[i]})
			j++
		}
	}
	return out, dupes
}

func groupRule(g *publisherGroup, opts Options) models.Rule {
	org := artifact.OrganizationName(g.pattern)
	files := "files"
	if len(g.members) == 1 {
		files = "file"
	}
	desc := fmt.Sprintf("Covers %d %s signed by %s", len(g.members), files, g.pattern)
	return opts.newRule("Publisher: "+org, desc, models.NewPublisherCondition(g.pattern))
}

func (r *BatchResult) add(rule models.Rule) {
	r.Rules = append(r.Rules, rule)
	r.Stats.RecordRule(rule)
}

func (r *BatchResult) addOutcome(o Outcome) {
	if o.Rule != nil {
		r.add(*o.Rule)
		return
	}
	if o.Skip != nil {
		r.Stats.RecordSkip(o.Skip.Identity, string(o.Skip.Reason))
	}
}
