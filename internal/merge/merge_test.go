package merge

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/policydoc"
)

func pubRule(id, pattern string, created time.Time) models.Rule {
	return models.Rule{
		ID:              id,
		Name:            id,
		Type:            models.RuleTypePublisher,
		Action:          models.ActionAllow,
		CollectionType:  models.CollectionExe,
		Condition:       models.NewPublisherCondition(pattern),
		TargetPrincipal: models.DefaultPrincipal,
		CreatedAt:       created,
	}
}

func singleRulePolicy(r models.Rule, mode models.EnforcementMode) *models.Policy {
	p := models.NewPolicy()
	c := p.Ensure(r.CollectionType, mode)
	c.Rules = append(c.Rules, r)
	return p
}

func ruleIDs(p *models.Policy) []string {
	var ids []string
	for _, r := range p.Rules() {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestMergePolicies_Resolution(t *testing.T) {
	first := pubRule("first", "O=Contoso*", time.Time{})
	second := pubRule("second", "o=contoso*", time.Time{})

	tests := []struct {
		strategy models.ConflictStrategy
		want     []string
	}{
		{models.StrategyKeepFirst, []string{"first"}},
		{models.StrategyKeepLast, []string{"second"}},
		{models.StrategyMergeAll, []string{"first", "second"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			base := singleRulePolicy(first, models.EnforcementAuditOnly)
			other := singleRulePolicy(second, models.EnforcementAuditOnly)

			res, err := MergePolicies(base, other, Options{Strategy: tt.strategy})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ruleIDs(res.Policy))
		})
	}
}

func TestMerge_Newest(t *testing.T) {
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := old.Add(time.Hour)

	existing := singleRulePolicy(pubRule("old", "O=Contoso*", old), models.EnforcementAuditOnly)

	res, err := Merge(existing, []models.Rule{pubRule("new", "O=Contoso*", newer)}, Options{Strategy: models.StrategyNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ruleIDs(res.Policy))
	assert.Equal(t, 1, res.Stats.Replaced)

	// Equal timestamps keep the existing rule; zero counts as oldest.
	res, err = Merge(existing, []models.Rule{
		pubRule("same", "O=Contoso*", old),
		pubRule("zero", "O=Contoso*", time.Time{}),
	}, Options{Strategy: models.StrategyNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ruleIDs(res.Policy))
	assert.Equal(t, 2, res.Stats.Discarded)
	assert.Zero(t, res.Stats.Undated)
}

func TestMergePolicies_NewestCountsUndatedConflicts(t *testing.T) {
	// Rules read from XML never carry a timestamp.
	base := singleRulePolicy(pubRule("base", "O=Contoso*", time.Time{}), models.EnforcementAuditOnly)
	other := singleRulePolicy(pubRule("other", "O=Contoso*", time.Time{}), models.EnforcementAuditOnly)

	res, err := MergePolicies(base, other, Options{Strategy: models.StrategyNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, ruleIDs(res.Policy))
	assert.Equal(t, 1, res.Stats.Undated)

	res, err = MergePolicies(base, other, Options{Strategy: models.StrategyKeepFirst})
	require.NoError(t, err)
	assert.Zero(t, res.Stats.Undated)
}

func TestMerge_IdempotentUnderKeepFirst(t *testing.T) {
	rules := []models.Rule{
		pubRule("a", "O=Contoso*", time.Time{}),
		pubRule("b", "O=Fabrikam*", time.Time{}),
		pubRule("c", "O=Contoso*", time.Time{}),
	}

	once, err := Merge(nil, rules, DefaultOptions())
	require.NoError(t, err)
	twice, err := Merge(once.Policy, rules, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, once.Policy.RuleCount(), twice.Policy.RuleCount())
	assert.Equal(t, ruleIDs(once.Policy), ruleIDs(twice.Policy))
	assert.Equal(t, 0, twice.Stats.Added)
	assert.Equal(t, 3, twice.Stats.Discarded)
}

func TestMerge_NeverMutatesExisting(t *testing.T) {
	existing := singleRulePolicy(pubRule("a", "O=Contoso*", time.Time{}), models.EnforcementEnabled)

	res, err := Merge(existing, []models.Rule{pubRule("b", "O=Fabrikam*", time.Time{})}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, existing.RuleCount())
	assert.Equal(t, 2, res.Policy.RuleCount())
	assert.Equal(t, models.EnforcementEnabled, res.Policy.Collection(models.CollectionExe).EnforcementMode)
}

func TestMerge_NewCollectionUsesConfiguredMode(t *testing.T) {
	r := pubRule("dll", "O=Contoso*", time.Time{})
	r.CollectionType = models.CollectionDll

	res, err := Merge(nil, []models.Rule{r}, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.EnforcementAuditOnly, res.Policy.Collection(models.CollectionDll).EnforcementMode)

	res, err = Merge(nil, []models.Rule{r}, Options{EnforcementMode: models.EnforcementEnabled})
	require.NoError(t, err)
	assert.Equal(t, models.EnforcementEnabled, res.Policy.Collection(models.CollectionDll).EnforcementMode)
}

func TestMerge_MalformedRuleCountedNotFatal(t *testing.T) {
	bad := pubRule("bad", "O=Contoso*", time.Time{})
	bad.Type = models.RuleTypeHash

	res, err := Merge(nil, []models.Rule{bad, pubRule("good", "O=Fabrikam*", time.Time{})}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, 1, res.Stats.Added)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "bad", res.Rejected[0].Rule.ID)
	assert.True(t, errors.Is(res.Rejected[0].Err, models.ErrMergeConflict))
}

func TestMerge_RejectsUnknownStrategy(t *testing.T) {
	_, err := Merge(nil, nil, Options{Strategy: "Random"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestMergePolicies_EnforcementNeverEscalatesSilently(t *testing.T) {
	base := singleRulePolicy(pubRule("a", "O=Contoso*", time.Time{}), models.EnforcementAuditOnly)
	other := singleRulePolicy(pubRule("b", "O=Fabrikam*", time.Time{}), models.EnforcementEnabled)

	res, err := MergePolicies(base, other, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, models.EnforcementAuditOnly, res.Policy.Collection(models.CollectionExe).EnforcementMode)

	res, err = MergePolicies(base, other, Options{OverrideEnforcement: true})
	require.NoError(t, err)
	assert.Equal(t, models.EnforcementEnabled, res.Policy.Collection(models.CollectionExe).EnforcementMode)
	assert.Equal(t, models.EnforcementAuditOnly, base.Collection(models.CollectionExe).EnforcementMode)
}

func TestMergePolicies_NewCollectionKeepsSourceMode(t *testing.T) {
	base := singleRulePolicy(pubRule("a", "O=Contoso*", time.Time{}), models.EnforcementAuditOnly)
	msi := pubRule("m", "O=Contoso*", time.Time{})
	msi.CollectionType = models.CollectionMsi
	other := singleRulePolicy(msi, models.EnforcementEnabled)

	res, err := MergePolicies(base, other, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, models.EnforcementEnabled, res.Policy.Collection(models.CollectionMsi).EnforcementMode)
	assert.Equal(t, 2, res.Policy.RuleCount())
}

func TestMergePolicies_MixedProvenanceIsExternal(t *testing.T) {
	base := singleRulePolicy(pubRule("a", "O=Contoso*", time.Time{}), models.EnforcementAuditOnly)
	base.Provenance = models.ProvenanceArtifact
	other := singleRulePolicy(pubRule("b", "O=Fabrikam*", time.Time{}), models.EnforcementAuditOnly)
	other.Provenance = models.ProvenanceExternal

	res, err := MergePolicies(base, other, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceExternal, res.Policy.Provenance)
}

func loadBrokenBase(t *testing.T) *models.Policy {
	t.Helper()
	data, err := os.ReadFile("testdata/broken_base.xml")
	require.NoError(t, err)
	p, err := policydoc.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, 2, p.RuleCount())
	return p
}

func TestMergePolicies_BrokenBaseRuleRejected(t *testing.T) {
	base := loadBrokenBase(t)
	other := singleRulePolicy(pubRule("fab", "O=Fabrikam*", time.Time{}), models.EnforcementAuditOnly)

	res, err := MergePolicies(base, other, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Added)
	assert.Equal(t, 1, res.Stats.Errors)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "broken", res.Rejected[0].Rule.Name)
	assert.True(t, errors.Is(res.Rejected[0].Err, models.ErrMergeConflict))
	assert.Equal(t, 2, res.Policy.RuleCount())
	assert.Equal(t, 2, base.RuleCount(), "base must not be mutated")

	_, err = policydoc.Marshal(res.Policy)
	assert.NoError(t, err)
}

func TestMerge_BrokenExistingRuleRejected(t *testing.T) {
	res, err := Merge(loadBrokenBase(t), []models.Rule{pubRule("contoso", "O=Contoso*", time.Time{})}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Discarded)
	assert.Equal(t, 1, res.Stats.Errors)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 1, res.Policy.RuleCount())

	_, err = policydoc.Marshal(res.Policy)
	assert.NoError(t, err)
}
