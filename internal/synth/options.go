// Package synth turns normalized artifacts into AppLocker rules.
package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruleforge/ruleforge/internal/inspect"
	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
)

// Options for a synthesis call. Zero values take the defaults below.
type Options struct {
	Action           models.Action
	CollectionType   models.CollectionType
	TargetPrincipal  string
	GroupByPublisher bool

	// Inspector is consulted for a signer or digest the scan did not supply.
	// Nil disables all file access.
	Inspector inspect.Inspector

	Now    func() time.Time
	NewID  func() string
	Logger logging.Logger
}

func DefaultOptions() Options {
	return Options{
		Action:          models.ActionAllow,
		CollectionType:  models.CollectionExe,
		TargetPrincipal: models.DefaultPrincipal,
	}
}

// Validate rejects enum values outside their whitelist.
func (o Options) Validate() error {
	o = o.withDefaults()
	if !o.Action.Valid() {
		return fmt.Errorf("%w: action %q must be Allow or Deny", models.ErrConfiguration, o.Action)
	}
	if !o.CollectionType.Valid() {
		return fmt.Errorf("%w: collection type %q is not supported", models.ErrConfiguration, o.CollectionType)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Action == "" {
		o.Action = models.ActionAllow
	}
	if o.CollectionType == "" {
		o.CollectionType = models.CollectionExe
	}
	if strings.TrimSpace(o.TargetPrincipal) == "" {
		o.TargetPrincipal = models.DefaultPrincipal
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

func (o Options) newRule(name, description string, cond models.Condition) models.Rule {
	return models.Rule{
		ID:              o.NewID(),
		Name:            name,
		Description:     description,
		Type:            cond.RuleType(),
		Action:          o.Action,
		CollectionType:  o.CollectionType,
		Condition:       cond,
		TargetPrincipal: o.TargetPrincipal,
		CreatedAt:       o.Now(),
	}
}
