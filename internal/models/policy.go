package models

// Provenance records where a policy's rules came from.
type Provenance string

const (
	// ProvenanceArtifact policies were synthesized from scan artifacts.
	ProvenanceArtifact Provenance = "artifact"
	// ProvenanceExternal policies came from the live policy store or a hand-written file.
	ProvenanceExternal Provenance = "external"
)

// RuleCollection ordered rules of one collection type
type RuleCollection struct {
	Type            CollectionType  `json:"type"`
	EnforcementMode EnforcementMode `json:"enforcementMode"`
	Rules           []Rule          `json:"rules"`
}

// Policy holds at most one collection per type.
type Policy struct {
	Collections map[CollectionType]*RuleCollection `json:"collections"`
	Provenance  Provenance                         `json:"provenance,omitempty"`
}

func NewPolicy() *Policy {
	return &Policy{Collections: make(map[CollectionType]*RuleCollection)}
}

// Collection returns nil when the policy has no collection of that type.
func (p *Policy) Collection(t CollectionType) *RuleCollection {
	if p == nil || p.Collections == nil {
		return nil
	}
	return p.Collections[t]
}

// Ensure returns the collection of type t, creating it with mode when absent.
func (p *Policy) Ensure(t CollectionType, mode EnforcementMode) *RuleCollection {
	if p.Collections == nil {
		p.Collections = make(map[CollectionType]*RuleCollection)
	}
	if c, ok := p.Collections[t]; ok {
		return c
	}
	c := &RuleCollection{Type: t, EnforcementMode: mode}
	p.Collections[t] = c
	return c
}

// OrderedCollections in document order (Exe, Msi, Script, Dll, Appx).
func (p *Policy) OrderedCollections() []*RuleCollection {
	if p == nil {
		return nil
	}
	out := make([]*RuleCollection, 0, len(p.Collections))
	for _, t := range CollectionTypes() {
		if c, ok := p.Collections[t]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Rules flattens every collection in document order.
func (p *Policy) Rules() []Rule {
	var out []Rule
	for _, c := range p.OrderedCollections() {
		out = append(out, c.Rules...)
	}
	return out
}

func (p *Policy) RuleCount() int {
	n := 0
	for _, c := range p.OrderedCollections() {
		n += len(c.Rules)
	}
	return n
}

// Clone returns a deep copy; a nil policy clones to an empty one.
func (p *Policy) Clone() *Policy {
	out := NewPolicy()
	if p == nil {
		return out
	}
	out.Provenance = p.Provenance
	for t, c := range p.Collections {
		cc := &RuleCollection{
			Type:            c.Type,
			EnforcementMode: c.EnforcementMode,
			Rules:           make([]Rule, len(c.Rules)),
		}
		for i, r := range c.Rules {
			cc.Rules[i] = r.Clone()
		}
		out.Collections[t] = cc
	}
	return out
}
