// Package differ compares scan inventories and policies against existing policies.
package differ

import (
	"github.com/ruleforge/ruleforge/internal/artifact"
	"github.com/ruleforge/ruleforge/internal/models"
)

// Delta proposed additions and removals. Nothing is applied.
type Delta struct {
	NewItems     []models.Artifact `json:"newItems"`
	RemovedItems []models.Rule     `json:"removedItems"`
}

// HasChanges reports whether the delta proposes anything.
func (d Delta) HasChanges() bool {
	return len(d.NewItems) > 0 || len(d.RemovedItems) > 0
}

// Diff finds artifacts no rule covers and, for policies generated from
// artifacts, rules no artifact supports any more. An artifact is covered when
// its path matches a Path rule, its hash a Hash rule or its publisher a
// Publisher rule. Path rules and catch-all rules are never proposed for removal.
func Diff(artifacts []models.Artifact, existing *models.Policy) Delta {
	rules := existing.Rules()

	d := Delta{
		NewItems:     []models.Artifact{},
		RemovedItems: []models.Rule{},
	}
	for _, a := range artifacts {
		if !covered(a, rules) {
			d.NewItems = append(d.NewItems, a)
		}
	}

	if existing == nil || existing.Provenance != models.ProvenanceArtifact {
		return d
	}
	for _, r := range rules {
		if r.Type == models.RuleTypePath || r.IsCatchAll() {
			continue
		}
		if !supported(r, artifacts) {
			d.RemovedItems = append(d.RemovedItems, r)
		}
	}
	return d
}

func covered(a models.Artifact, rules []models.Rule) bool {
	if a.Path != "" {
		for _, r := range rules {
			if pc, ok := r.Path(); ok && artifact.MatchesPath(pc.Path, a.Path) {
				return true
			}
		}
	}
	if h := models.NormalizeHash(a.Hash); h != "" {
		for _, r := range rules {
			if hc, ok := r.Hash(); ok && models.NormalizeHash(hc.Data) == h {
				return true
			}
		}
	}
	if a.Publisher != nil {
		for _, r := range rules {
			if pc, ok := r.Publisher(); ok && artifact.MatchesPublisher(pc.PublisherName, *a.Publisher) {
				return true
			}
		}
	}
	return false
}

// supported reports whether any artifact still carries the rule's identity.
func supported(r models.Rule, artifacts []models.Artifact) bool {
	switch c := r.Condition.(type) {
	case *models.HashCondition:
		want := models.NormalizeHash(c.Data)
		for _, a := range artifacts {
			if models.NormalizeHash(a.Hash) == want {
				return true
			}
		}
	case *models.PublisherCondition:
		for _, a := range artifacts {
			if a.Publisher != nil && artifact.MatchesPublisher(c.PublisherName, *a.Publisher) {
				return true
			}
		}
	}
	return false
}
