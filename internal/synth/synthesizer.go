package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ruleforge/ruleforge/internal/artifact"
	"github.com/ruleforge/ruleforge/internal/inspect"
	"github.com/ruleforge/ruleforge/internal/models"
)

// SkipReason why an artifact produced no rule
type SkipReason string

const (
	SkipNoIdentity  SkipReason = "no-identity"
	SkipUnavailable SkipReason = "artifact-unavailable"
)

// Skip records an artifact that produced no rule.
type Skip struct {
	Identity string
	Reason   SkipReason
}

// Outcome holds exactly one of Rule or Skip.
type Outcome struct {
	Rule *models.Rule
	Skip *Skip
}

// evidence gathered for one artifact
type evidence struct {
	publisher   *string
	hash        string
	size        int64
	unavailable bool
	// failures counts inspector errors other than unsigned/unavailable
	failures int
}

// Synthesize picks the strongest rule an artifact supports: Publisher when a
// signer is known, else Hash, else a Skip. Path rules are never produced here.
// The only error is an invalid Options value.
func Synthesize(a models.Artifact, opts Options) (Outcome, error) {
	if err := opts.Validate(); err != nil {
		return Outcome{}, err
	}
	opts = opts.withDefaults()

	ev := lookupPublisher(a, opts)
	if ev.publisher == nil {
		lookupHash(a, opts, &ev)
	}
	return synthesize(a, opts, ev), nil
}

func synthesize(a models.Artifact, opts Options, ev evidence) Outcome {
	if ev.publisher != nil {
		r := publisherRule(a, *ev.publisher, opts)
		return Outcome{Rule: &r}
	}
	if ev.hash != "" {
		r := hashRule(a, ev, opts)
		return Outcome{Rule: &r}
	}

	reason := SkipNoIdentity
	if ev.unavailable {
		reason = SkipUnavailable
	}
	opts.Logger.Debug("synth", "artifact skipped", "name", a.Label(), "reason", string(reason))
	return Outcome{Skip: &Skip{Identity: a.Label(), Reason: reason}}
}

// CreatePathRule builds a rule for an explicit file-system location. It is the
// only way to obtain a Path rule.
func CreatePathRule(path string, opts Options) (models.Rule, error) {
	if err := opts.Validate(); err != nil {
		return models.Rule{}, err
	}
	opts = opts.withDefaults()

	path = strings.TrimSpace(path)
	if path == "" {
		return models.Rule{}, fmt.Errorf("%w: path rule needs a path", models.ErrInvalidInput)
	}
	return opts.newRule("Path: "+path, "", &models.PathCondition{Path: path}), nil
}

func lookupPublisher(a models.Artifact, opts Options) evidence {
	var ev evidence
	if p := artifact.ExtractPublisher(a.Publisher); p != nil {
		ev.publisher = p
		return ev
	}
	if opts.Inspector == nil || strings.TrimSpace(a.Path) == "" {
		return ev
	}

	subject, err := opts.Inspector.Signer(a.Path)
	switch {
	case err == nil:
		ev.publisher = artifact.ExtractPublisher(&subject)
	case errors.Is(err, models.ErrArtifactUnavailable):
		ev.unavailable = true
	case errors.Is(err, inspect.ErrUnsigned):
	default:
		ev.failures++
		opts.Logger.Warn("synth", "signer lookup failed", "name", a.Label(), "error", err.Error())
	}
	return ev
}

func lookupHash(a models.Artifact, opts Options, ev *evidence) {
	ev.size = a.Size
	if h := models.NormalizeHash(a.Hash); h != "" {
		ev.hash = h
		return
	}
	if opts.Inspector == nil || strings.TrimSpace(a.Path) == "" {
		return
	}

	d, err := opts.Inspector.Hash(a.Path)
	switch {
	case err == nil:
		ev.hash = models.NormalizeHash(d.Hex)
		if ev.size == 0 {
			ev.size = d.Size
		}
	case errors.Is(err, models.ErrArtifactUnavailable):
		ev.unavailable = true
	default:
		ev.failures++
		opts.Logger.Warn("synth", "hash lookup failed", "name", a.Label(), "error", err.Error())
	}
}

func publisherRule(a models.Artifact, pattern string, opts Options) models.Rule {
	name := fmt.Sprintf("%s (Publisher: %s)", a.Label(), artifact.OrganizationName(pattern))
	return opts.newRule(name, "", models.NewPublisherCondition(pattern))
}

func hashRule(a models.Artifact, ev evidence, opts Options) models.Rule {
	name := fmt.Sprintf("%s (Hash)", a.Label())
	return opts.newRule(name, "", &models.HashCondition{
		Algorithm:        "SHA256",
		Data:             ev.hash,
		SourceFileName:   a.Name,
		SourceFileLength: ev.size,
	})
}
