package differ

import (
	"fmt"
	"strings"

	"github.com/wI2L/jsondiff"

	"github.com/ruleforge/ruleforge/internal/models"
)

// Change one human-readable difference between two policies
type Change struct {
	Collection models.CollectionType `json:"collection"`
	Rule       string                `json:"rule,omitempty"`
	Message    string                `json:"message"`
	Severity   SeverityLevel         `json:"-"`
	Level      string                `json:"severity"`
}

// PolicyDiff result of ComparePolicies
type PolicyDiff struct {
	HasChanges bool           `json:"hasChanges"`
	Patch      jsondiff.Patch `json:"patch"`
	Changes    []Change       `json:"changes"`
}

// MaxSeverity of all changes; SeveritySafe when there are none.
func (d *PolicyDiff) MaxSeverity() SeverityLevel {
	max := SeveritySafe
	for _, c := range d.Changes {
		if c.Severity > max {
			max = c.Severity
		}
	}
	return max
}

type collectionDoc struct {
	EnforcementMode models.EnforcementMode `json:"enforcementMode"`
	Rules           map[string]ruleDoc     `json:"rules"`
}

type ruleDoc struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Action      models.Action `json:"action"`
	Principal   string        `json:"principal"`
}

// canonical keys collections by type and rules by identity, so reordering
// rules is not a change.
func canonical(p *models.Policy) (map[string]collectionDoc, map[string]map[string]models.Rule) {
	doc := make(map[string]collectionDoc)
	index := make(map[string]map[string]models.Rule)
	for _, c := range p.OrderedCollections() {
		cd := collectionDoc{EnforcementMode: c.EnforcementMode, Rules: make(map[string]ruleDoc, len(c.Rules))}
		idx := make(map[string]models.Rule, len(c.Rules))
		for _, r := range c.Rules {
			key := r.IdentityKey()
			// MergeAll keeps equivalent rules side by side.
			for n := 2; ; n++ {
				if _, dup := cd.Rules[key]; !dup {
					break
				}
				key = fmt.Sprintf("%s#%d", r.IdentityKey(), n)
			}
			cd.Rules[key] = ruleDoc{
				Name:        r.Name,
				Description: r.Description,
				Action:      r.Action,
				Principal:   models.PrincipalSID(r.TargetPrincipal),
			}
			idx[key] = r
		}
		doc[string(c.Type)] = cd
		index[string(c.Type)] = idx
	}
	return doc, index
}

// ComparePolicies reports what changes between two versions of a policy.
func ComparePolicies(oldPolicy, newPolicy *models.Policy) (*PolicyDiff, error) {
	oldDoc, oldIdx := canonical(oldPolicy)
	newDoc, newIdx := canonical(newPolicy)

	patch, err := jsondiff.Compare(oldDoc, newDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to compare policies: %w", err)
	}

	t := translator{
		oldPolicy: oldPolicy,
		newPolicy: newPolicy,
		oldRules:  oldIdx,
		newRules:  newIdx,
	}
	changes := t.translate(patch)
	return &PolicyDiff{
		HasChanges: len(patch) > 0,
		Patch:      patch,
		Changes:    changes,
	}, nil
}

// pointerSegments splits a JSON pointer and unescapes each segment.
func pointerSegments(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return nil
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return parts
}
