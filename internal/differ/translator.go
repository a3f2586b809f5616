package differ

import (
	"fmt"
	"sort"

	"github.com/wI2L/jsondiff"

	"github.com/ruleforge/ruleforge/internal/models"
)

// SeverityLevel ranks a policy change; higher is riskier.
type SeverityLevel int

const (
	SeveritySafe SeverityLevel = iota
	SeverityModerate
	SeverityCritical
)

// String matches the --fail-on level names.
func (s SeverityLevel) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityModerate:
		return "moderate"
	case SeveritySafe:
		return "info"
	}
	return "unknown"
}

type translator struct {
	oldPolicy *models.Policy
	newPolicy *models.Policy
	oldRules  map[string]map[string]models.Rule
	newRules  map[string]map[string]models.Rule
}

// translate turns patch operations into changes, one per affected
// collection setting or rule, in document order.
func (t translator) translate(patch jsondiff.Patch) []Change {
	changes := []Change{}
	seen := make(map[string]bool)
	add := func(c Change) {
		key := string(c.Collection) + "\x00" + c.Rule + "\x00" + c.Message
		if seen[key] {
			return
		}
		seen[key] = true
		c.Level = c.Severity.String()
		changes = append(changes, c)
	}

	for _, op := range patch {
		seg := pointerSegments(op.Path)
		if len(seg) == 0 {
			continue
		}
		coll := models.CollectionType(seg[0])

		switch {
		case len(seg) == 1:
			t.collectionChange(op.Type, coll, add)
		case seg[1] == "enforcementMode":
			add(t.enforcementChange(coll))
		case seg[1] == "rules" && len(seg) == 2:
			// whole rule map replaced, e.g. null to populated
			for _, key := range sortedKeys(t.newRules[string(coll)]) {
				if _, ok := t.oldRules[string(coll)][key]; !ok {
					add(ruleAdded(coll, t.newRules[string(coll)][key]))
				}
			}
			for _, key := range sortedKeys(t.oldRules[string(coll)]) {
				if _, ok := t.newRules[string(coll)][key]; !ok {
					add(ruleRemoved(coll, t.oldRules[string(coll)][key]))
				}
			}
		case seg[1] == "rules":
			key := seg[2]
			switch {
			case len(seg) == 3 && op.Type == jsondiff.OperationAdd:
				add(ruleAdded(coll, t.newRules[string(coll)][key]))
			case len(seg) == 3 && op.Type == jsondiff.OperationRemove:
				add(ruleRemoved(coll, t.oldRules[string(coll)][key]))
			case len(seg) >= 4:
				add(t.ruleModified(coll, key, seg[3]))
			}
		}
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return collectionOrder(changes[i].Collection) < collectionOrder(changes[j].Collection)
	})
	return changes
}

func (t translator) collectionChange(opType string, coll models.CollectionType, add func(Change)) {
	switch opType {
	case jsondiff.OperationAdd:
		c := t.newPolicy.Collection(coll)
		sev := SeverityModerate
		if c != nil && c.EnforcementMode == models.EnforcementEnabled {
			sev = SeverityCritical
		}
		mode := models.EnforcementNotConfigured
		if c != nil {
			mode = c.EnforcementMode
		}
		add(Change{
			Collection: coll,
			Message:    fmt.Sprintf("%s collection added (%s)", coll, mode),
			Severity:   sev,
		})
		for _, key := range sortedKeys(t.newRules[string(coll)]) {
			add(ruleAdded(coll, t.newRules[string(coll)][key]))
		}
	case jsondiff.OperationRemove:
		add(Change{
			Collection: coll,
			Message:    fmt.Sprintf("%s collection removed", coll),
			Severity:   SeverityModerate,
		})
	}
}

func (t translator) enforcementChange(coll models.CollectionType) Change {
	from, to := models.EnforcementNotConfigured, models.EnforcementNotConfigured
	if c := t.oldPolicy.Collection(coll); c != nil {
		from = c.EnforcementMode
	}
	if c := t.newPolicy.Collection(coll); c != nil {
		to = c.EnforcementMode
	}
	sev := SeverityModerate
	if to == models.EnforcementEnabled {
		sev = SeverityCritical
	}
	return Change{
		Collection: coll,
		Message:    fmt.Sprintf("%s enforcement changed %s → %s", coll, from, to),
		Severity:   sev,
	}
}

func ruleAdded(coll models.CollectionType, r models.Rule) Change {
	sev := SeverityModerate
	if r.Type == models.RuleTypePath && r.Action == models.ActionAllow {
		sev = SeverityCritical
	}
	return Change{
		Collection: coll,
		Rule:       r.Name,
		Message:    fmt.Sprintf("Rule %q added to %s collection", r.Name, coll),
		Severity:   sev,
	}
}

func ruleRemoved(coll models.CollectionType, r models.Rule) Change {
	return Change{
		Collection: coll,
		Rule:       r.Name,
		Message:    fmt.Sprintf("Rule %q removed from %s collection", r.Name, coll),
		Severity:   SeverityModerate,
	}
}

func (t translator) ruleModified(coll models.CollectionType, key, field string) Change {
	oldRule := t.oldRules[string(coll)][key]
	newRule := t.newRules[string(coll)][key]

	switch field {
	case "name", "description":
		return Change{
			Collection: coll,
			Rule:       newRule.Name,
			Message:    fmt.Sprintf("Documentation update: rule %q %s changed", newRule.Name, field),
			Severity:   SeveritySafe,
		}
	case "action":
		sev := SeverityModerate
		if newRule.Action == models.ActionAllow {
			sev = SeverityCritical
		}
		return Change{
			Collection: coll,
			Rule:       newRule.Name,
			Message:    fmt.Sprintf("Rule %q in %s collection changed %s → %s", newRule.Name, coll, oldRule.Action, newRule.Action),
			Severity:   sev,
		}
	default:
		return Change{
			Collection: coll,
			Rule:       newRule.Name,
			Message:    fmt.Sprintf("Rule %q in %s collection now applies to %s", newRule.Name, coll, models.PrincipalName(models.PrincipalSID(newRule.TargetPrincipal))),
			Severity:   SeverityModerate,
		}
	}
}

func collectionOrder(c models.CollectionType) int {
	for i, t := range models.CollectionTypes() {
		if t == c {
			return i
		}
	}
	return len(models.CollectionTypes())
}

func sortedKeys(m map[string]models.Rule) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
