// Package merge folds rules into policies under a conflict strategy.
package merge

import (
	"errors"
	"fmt"

	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
)

// Options for Merge and MergePolicies
type Options struct {
	Strategy models.ConflictStrategy
	// EnforcementMode for collections the merge has to create.
	EnforcementMode models.EnforcementMode
	// OverrideEnforcement lets MergePolicies adopt the incoming collection's mode.
	OverrideEnforcement bool
	Logger              logging.Logger
}

func DefaultOptions() Options {
	return Options{
		Strategy:        models.StrategyKeepFirst,
		EnforcementMode: models.EnforcementAuditOnly,
	}
}

// Validate rejects strategies and modes outside their whitelist.
func (o Options) Validate() error {
	o = o.withDefaults()
	if !o.Strategy.Valid() {
		return fmt.Errorf("%w: conflict strategy %q is not supported", models.ErrConfiguration, o.Strategy)
	}
	if !o.EnforcementMode.Valid() {
		return fmt.Errorf("%w: enforcement mode %q is not supported", models.ErrConfiguration, o.EnforcementMode)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = models.StrategyKeepFirst
	}
	if o.EnforcementMode == "" {
		o.EnforcementMode = models.EnforcementAuditOnly
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Stats counters for one merge
type Stats struct {
	Added     int `json:"added"`
	Replaced  int `json:"replaced"`
	Discarded int `json:"discarded"`
	Errors    int `json:"errors"`
	// Undated counts Newest conflicts where neither rule had a timestamp;
	// the existing rule is kept for those.
	Undated int `json:"undated,omitempty"`
}

// Rejected a rule that could not be merged
type Rejected struct {
	Rule models.Rule
	Err  error
}

// Result of a merge. Policy is always a fresh copy.
type Result struct {
	Policy   *models.Policy
	Stats    Stats
	Rejected []Rejected
}

// Merge adds rules to a copy of existing. Equivalent rules (same IdentityKey in
// the same collection) are resolved by opts.Strategy. Invalid rules, incoming
// or already in existing, are recorded in Result.Rejected and never abort the
// batch.
func Merge(existing *models.Policy, rules []models.Rule, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults()

	res := newResult(existing, opts)
	for _, r := range rules {
		res.apply(r, opts)
	}

	res.warnUndated(opts)
	opts.Logger.Info("merge", "merge complete",
		"strategy", string(opts.Strategy),
		"added", res.Stats.Added,
		"replaced", res.Stats.Replaced,
		"discarded", res.Stats.Discarded,
		"errors", res.Stats.Errors)
	return res, nil
}

// MergePolicies folds every collection of other into a copy of base. A
// collection only other has keeps other's mode. When both have it, base's
// mode wins unless opts.OverrideEnforcement is set.
func MergePolicies(base, other *models.Policy, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults()

	res := newResult(base, opts)
	for _, oc := range other.OrderedCollections() {
		bc := res.Policy.Collection(oc.Type)
		switch {
		case bc == nil:
			res.Policy.Ensure(oc.Type, oc.EnforcementMode)
		case bc.EnforcementMode != oc.EnforcementMode:
			if opts.OverrideEnforcement {
				opts.Logger.Warn("merge", "enforcement mode overridden",
					"collection", string(oc.Type),
					"from", string(bc.EnforcementMode),
					"to", string(oc.EnforcementMode))
				bc.EnforcementMode = oc.EnforcementMode
			} else {
				opts.Logger.Info("merge", "enforcement mode kept",
					"collection", string(oc.Type),
					"kept", string(bc.EnforcementMode),
					"ignored", string(oc.EnforcementMode))
			}
		}
		for _, r := range oc.Rules {
			// Rules travel with their source collection.
			r = r.Clone()
			r.CollectionType = oc.Type
			res.apply(r, opts)
		}
	}

	// A partly external policy cannot propose removals.
	if other != nil {
		switch {
		case base == nil:
			res.Policy.Provenance = other.Provenance
		case base.Provenance != other.Provenance:
			res.Policy.Provenance = models.ProvenanceExternal
		}
	}

	res.warnUndated(opts)
	opts.Logger.Info("merge", "policies merged",
		"strategy", string(opts.Strategy),
		"added", res.Stats.Added,
		"replaced", res.Stats.Replaced,
		"discarded", res.Stats.Discarded,
		"errors", res.Stats.Errors)
	return res, nil
}

// newResult copies p and moves its invalid rules into Rejected, so a document
// decoded with a broken rule still merges and exports.
func newResult(p *models.Policy, opts Options) Result {
	res := Result{Policy: p.Clone()}
	for _, coll := range res.Policy.OrderedCollections() {
		kept := coll.Rules[:0]
		for _, r := range coll.Rules {
			if err := r.Validate(); err != nil {
				res.reject(r, err, opts)
				continue
			}
			kept = append(kept, r)
		}
		coll.Rules = kept
	}
	return res
}

func (res *Result) apply(r models.Rule, opts Options) {
	if err := r.Validate(); err != nil {
		res.reject(r, err, opts)
		return
	}

	coll := res.Policy.Ensure(r.CollectionType, opts.EnforcementMode)
	idx := indexOf(coll.Rules, r.IdentityKey())
	if idx < 0 || opts.Strategy == models.StrategyMergeAll {
		coll.Rules = append(coll.Rules, r.Clone())
		res.Stats.Added++
		return
	}

	switch opts.Strategy {
	case models.StrategyKeepLast:
		coll.Rules[idx] = r.Clone()
		res.Stats.Replaced++
	case models.StrategyNewest:
		if r.CreatedAt.IsZero() && coll.Rules[idx].CreatedAt.IsZero() {
			res.Stats.Undated++
		}
		if r.CreatedAt.After(coll.Rules[idx].CreatedAt) {
			coll.Rules[idx] = r.Clone()
			res.Stats.Replaced++
		} else {
			res.Stats.Discarded++
		}
	default:
		res.Stats.Discarded++
	}
}

func (res *Result) warnUndated(opts Options) {
	if res.Stats.Undated == 0 {
		return
	}
	opts.Logger.Warn("merge", "conflicting rules carry no timestamps, kept existing",
		"strategy", string(opts.Strategy),
		"undated", res.Stats.Undated)
}

func (res *Result) reject(r models.Rule, err error, opts Options) {
	if !errors.Is(err, models.ErrMergeConflict) {
		err = fmt.Errorf("%w: %v", models.ErrMergeConflict, err)
	}
	res.Stats.Errors++
	res.Rejected = append(res.Rejected, Rejected{Rule: r, Err: err})
	opts.Logger.Warn("merge", "rule rejected", "rule", r.Name, "error", err.Error())
}

// indexOf returns the first rule with the identity, or -1.
func indexOf(rules []models.Rule, key string) int {
	for i, r := range rules {
		if r.IdentityKey() == key {
			return i
		}
	}
	return -1
}
