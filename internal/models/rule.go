package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Wildcard matches anything in a publisher or path condition.
const Wildcard = "*"

// Condition is the closed set of rule payloads: *PublisherCondition, *PathCondition
// or *HashCondition.
type Condition interface {
	RuleType() RuleType
	identity() string
	validate() error
	clone() Condition
}

// PublisherCondition matches a code-signing identity.
type PublisherCondition struct {
	PublisherName string `json:"publisherName"`
	ProductName   string `json:"productName"`
	BinaryName    string `json:"binaryName"`
	LowVersion    string `json:"lowVersion"`
	HighVersion   string `json:"highVersion"`
}

// PathCondition matches a file-system location.
type PathCondition struct {
	Path string `json:"path"`
}

// HashCondition matches an exact file digest.
type HashCondition struct {
	Algorithm        string `json:"algorithm"`
	Data             string `json:"data"`
	SourceFileName   string `json:"sourceFileName,omitempty"`
	SourceFileLength int64  `json:"sourceFileLength,omitempty"`
}

func (c *PublisherCondition) RuleType() RuleType { return RuleTypePublisher }
func (c *PathCondition) RuleType() RuleType      { return RuleTypePath }
func (c *HashCondition) RuleType() RuleType      { return RuleTypeHash }

func (c *PublisherCondition) identity() string { return strings.ToLower(strings.TrimSpace(c.PublisherName)) }
func (c *PathCondition) identity() string      { return strings.ToLower(strings.TrimSpace(c.Path)) }
func (c *HashCondition) identity() string      { return NormalizeHash(c.Data) }

func (c *PublisherCondition) validate() error {
	if strings.TrimSpace(c.PublisherName) == "" {
		return fmt.Errorf("publisher condition has no publisher name")
	}
	return nil
}

func (c *PathCondition) validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("path condition has no path")
	}
	return nil
}

func (c *HashCondition) validate() error {
	if NormalizeHash(c.Data) == "" {
		return fmt.Errorf("hash condition has no data")
	}
	return nil
}

func (c *PublisherCondition) clone() Condition { cp := *c; return &cp }
func (c *PathCondition) clone() Condition      { cp := *c; return &cp }
func (c *HashCondition) clone() Condition      { cp := *c; return &cp }

// NewPublisherCondition matches every product, binary and version from the publisher.
func NewPublisherCondition(pattern string) *PublisherCondition {
	return &PublisherCondition{
		PublisherName: pattern,
		ProductName:   Wildcard,
		BinaryName:    Wildcard,
		LowVersion:    Wildcard,
		HighVersion:   Wildcard,
	}
}

// NormalizeHash upper-cases a hex digest and strips a leading 0x.
func NormalizeHash(h string) string {
	h = strings.TrimSpace(h)
	if len(h) >= 2 && (h[:2] == "0x" || h[:2] == "0X") {
		h = h[2:]
	}
	return strings.ToUpper(h)
}

// Rule a single whitelist or blacklist entry
type Rule struct {
	ID              string
	Name            string
	Description     string
	Type            RuleType
	Action          Action
	CollectionType  CollectionType
	Condition       Condition
	TargetPrincipal string
	CreatedAt       time.Time
}

// Validate checks the condition payload matches the declared type.
func (r Rule) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: rule %q has unknown type %q", ErrMergeConflict, r.Name, r.Type)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("%w: rule %q has unknown action %q", ErrMergeConflict, r.Name, r.Action)
	}
	if !r.CollectionType.Valid() {
		return fmt.Errorf("%w: rule %q has unknown collection %q", ErrMergeConflict, r.Name, r.CollectionType)
	}
	if r.Condition == nil {
		return fmt.Errorf("%w: rule %q has no condition", ErrMergeConflict, r.Name)
	}
	if r.Condition.RuleType() != r.Type {
		return fmt.Errorf("%w: rule %q is %s but carries a %s condition", ErrMergeConflict, r.Name, r.Type, r.Condition.RuleType())
	}
	if err := r.Condition.validate(); err != nil {
		return fmt.Errorf("%w: rule %q: %v", ErrMergeConflict, r.Name, err)
	}
	return nil
}

// IdentityKey is equal for two rules that match the same files.
func (r Rule) IdentityKey() string {
	if r.Condition == nil {
		return string(r.Type) + "|"
	}
	return string(r.Condition.RuleType()) + "|" + r.Condition.identity()
}

// Publisher returns the publisher payload when the rule has one.
func (r Rule) Publisher() (*PublisherCondition, bool) {
	c, ok := r.Condition.(*PublisherCondition)
	return c, ok
}

// Path returns the path payload when the rule has one.
func (r Rule) Path() (*PathCondition, bool) {
	c, ok := r.Condition.(*PathCondition)
	return c, ok
}

// Hash returns the hash payload when the rule has one.
func (r Rule) Hash() (*HashCondition, bool) {
	c, ok := r.Condition.(*HashCondition)
	return c, ok
}

// IsCatchAll reports rules that match every file: no usable condition, a bare
// wildcard condition, or one of the built-in "All files" rules.
func (r Rule) IsCatchAll() bool {
	if r.Condition == nil || r.Condition.validate() != nil {
		return true
	}
	switch c := r.Condition.(type) {
	case *PathCondition:
		if strings.TrimSpace(c.Path) == Wildcard {
			return true
		}
	case *PublisherCondition:
		if strings.TrimSpace(c.PublisherName) == Wildcard {
			return true
		}
	}
	name := strings.ToLower(strings.TrimSpace(r.Name))
	return name == "all files" || name == "(default rule) all files"
}

// Clone returns a deep copy.
func (r Rule) Clone() Rule {
	if r.Condition != nil {
		r.Condition = r.Condition.clone()
	}
	return r
}

type ruleJSON struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	Type            RuleType            `json:"type"`
	Action          Action              `json:"action"`
	CollectionType  CollectionType      `json:"collectionType"`
	TargetPrincipal string              `json:"targetPrincipal"`
	CreatedAt       *time.Time          `json:"createdAt,omitempty"`
	Publisher       *PublisherCondition `json:"publisher,omitempty"`
	Path            *PathCondition      `json:"path,omitempty"`
	Hash            *HashCondition      `json:"hash,omitempty"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		Type:            r.Type,
		Action:          r.Action,
		CollectionType:  r.CollectionType,
		TargetPrincipal: r.TargetPrincipal,
	}
	if !r.CreatedAt.IsZero() {
		t := r.CreatedAt
		out.CreatedAt = &t
	}
	switch c := r.Condition.(type) {
	case *PublisherCondition:
		out.Publisher = c
	case *PathCondition:
		out.Path = c
	case *HashCondition:
		out.Hash = c
	}
	return json.Marshal(out)
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Rule{
		ID:              in.ID,
		Name:            in.Name,
		Description:     in.Description,
		Type:            in.Type,
		Action:          in.Action,
		CollectionType:  in.CollectionType,
		TargetPrincipal: in.TargetPrincipal,
	}
	if in.CreatedAt != nil {
		r.CreatedAt = *in.CreatedAt
	}
	switch {
	case in.Publisher != nil:
		r.Condition = in.Publisher
	case in.Path != nil:
		r.Condition = in.Path
	case in.Hash != nil:
		r.Condition = in.Hash
	}
	return nil
}
