package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publisherRule(pattern string) Rule {
	return Rule{
		ID:              "r1",
		Name:            "Contoso",
		Type:            RuleTypePublisher,
		Action:          ActionAllow,
		CollectionType:  CollectionExe,
		Condition:       NewPublisherCondition(pattern),
		TargetPrincipal: DefaultPrincipal,
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr bool
	}{
		{"valid publisher", func(r *Rule) {}, false},
		{"shape mismatch", func(r *Rule) { r.Type = RuleTypeHash }, true},
		{"nil condition", func(r *Rule) { r.Condition = nil }, true},
		{"unknown action", func(r *Rule) { r.Action = "Maybe" }, true},
		{"unknown collection", func(r *Rule) { r.CollectionType = "Ps1" }, true},
		{"blank publisher", func(r *Rule) { r.Condition = NewPublisherCondition("  ") }, true},
		{"valid hash", func(r *Rule) {
			r.Type = RuleTypeHash
			r.Condition = &HashCondition{Algorithm: "SHA256", Data: "ABCD"}
		}, false},
		{"empty hash", func(r *Rule) {
			r.Type = RuleTypeHash
			r.Condition = &HashCondition{Algorithm: "SHA256", Data: "0x"}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := publisherRule("O=Contoso*")
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMergeConflict))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRuleIdentityKey(t *testing.T) {
	a := publisherRule("O=Contoso*")
	b := publisherRule("o=CONTOSO*")
	assert.Equal(t, a.IdentityKey(), b.IdentityKey())

	h1 := Rule{Type: RuleTypeHash, Condition: &HashCondition{Data: "0xabcd"}}
	h2 := Rule{Type: RuleTypeHash, Condition: &HashCondition{Data: "ABCD"}}
	assert.Equal(t, h1.IdentityKey(), h2.IdentityKey())
	assert.Equal(t, "Hash|ABCD", h1.IdentityKey())

	p := Rule{Type: RuleTypePath, Condition: &PathCondition{Path: `C:\Tools\*`}}
	assert.Equal(t, `Path|c:\tools\*`, p.IdentityKey())
	assert.NotEqual(t, a.IdentityKey(), p.IdentityKey())
}

func TestRuleIsCatchAll(t *testing.T) {
	assert.False(t, publisherRule("O=Contoso*").IsCatchAll())
	assert.True(t, publisherRule("*").IsCatchAll())

	path := Rule{Type: RuleTypePath, Condition: &PathCondition{Path: "*"}}
	assert.True(t, path.IsCatchAll())

	named := publisherRule("O=Contoso*")
	named.Name = "(Default Rule) All files"
	assert.True(t, named.IsCatchAll())

	assert.True(t, Rule{Type: RuleTypePath}.IsCatchAll())
}

func TestRuleClone_IsDeep(t *testing.T) {
	r := publisherRule("O=Contoso*")
	cp := r.Clone()

	pc, _ := cp.Publisher()
	pc.PublisherName = "O=Other*"

	orig, _ := r.Publisher()
	assert.Equal(t, "O=Contoso*", orig.PublisherName)
}

func TestRuleJSON_RoundTrip(t *testing.T) {
	r := Rule{
		ID:             "h1",
		Name:           "tool.exe (Hash)",
		Type:           RuleTypeHash,
		Action:         ActionDeny,
		CollectionType: CollectionDll,
		Condition: &HashCondition{
			Algorithm:        "SHA256",
			Data:             "ABCD",
			SourceFileName:   "tool.exe",
			SourceFileLength: 42,
		},
		TargetPrincipal: DefaultPrincipal,
		CreatedAt:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hash":{`)
	assert.NotContains(t, string(data), `"publisher"`)

	var back Rule
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}

func TestPolicyClone_DoesNotAlias(t *testing.T) {
	p := NewPolicy()
	c := p.Ensure(CollectionExe, EnforcementAuditOnly)
	c.Rules = append(c.Rules, publisherRule("O=Contoso*"))

	cp := p.Clone()
	cp.Collection(CollectionExe).Rules[0].Name = "changed"
	cp.Ensure(CollectionMsi, EnforcementEnabled)

	assert.Equal(t, "Contoso", p.Collection(CollectionExe).Rules[0].Name)
	assert.Nil(t, p.Collection(CollectionMsi))
	assert.Equal(t, 1, cp.RuleCount())
}

func TestPolicyOrderedCollections(t *testing.T) {
	p := NewPolicy()
	p.Ensure(CollectionAppx, EnforcementAuditOnly)
	p.Ensure(CollectionExe, EnforcementAuditOnly)
	p.Ensure(CollectionScript, EnforcementAuditOnly)

	var got []CollectionType
	for _, c := range p.OrderedCollections() {
		got = append(got, c.Type)
	}
	assert.Equal(t, []CollectionType{CollectionExe, CollectionScript, CollectionAppx}, got)
}
