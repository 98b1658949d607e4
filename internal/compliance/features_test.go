package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureRegistryRejectsUnknownCategory(t *testing.T) {
	r := NewFeatureRegistry()

	assert.Error(t, r.Register(&ProtocolFeature{Name: "x", Category: "made-up"}))
	assert.Error(t, r.Register(&ProtocolFeature{Category: CategoryLifecycle}))
	assert.NoError(t, r.Register(&ProtocolFeature{Name: "x", Category: CategoryLifecycle}))
	assert.Error(t, r.Register(&ProtocolFeature{Name: "x", Category: CategoryLifecycle}))
}

func TestByCategoryAlwaysContainsAllCategories(t *testing.T) {
	r := NewFeatureRegistry()
	r.MustRegister(&ProtocolFeature{Name: "Tools", Category: CategoryServerFeatures, RequiredCapability: CapabilityTools})

	grouped := r.ByCategory()
	require.Len(t, grouped, 4)
	for _, cat := range ProtocolCategories() {
		_, present := grouped[cat]
		assert.True(t, present, "category %s missing from grouping", cat)
	}
	assert.Len(t, grouped[CategoryServerFeatures], 1)
	assert.Empty(t, grouped[CategoryLifecycle])
}

func TestFeatureCapabilityFiltering(t *testing.T) {
	r := NewFeatureRegistry()
	r.MustRegister(
		&ProtocolFeature{Name: "Transport", Category: CategoryBaseProtocol},
		&ProtocolFeature{Name: "Tools", Category: CategoryServerFeatures, RequiredCapability: CapabilityTools},
		&ProtocolFeature{Name: "Prompts", Category: CategoryServerFeatures, RequiredCapability: CapabilityPrompts},
	)

	caps := NewCapabilitySet(CapabilityTools)
	applicable := r.Applicable(caps)
	skipped := r.Skipped(caps)

	require.Len(t, applicable, 2)
	require.Len(t, skipped, 1)
	assert.Equal(t, "Prompts", skipped[0].Name)
}

func TestValidateCatchesRegistryInconsistencies(t *testing.T) {
	features := NewFeatureRegistry()
	features.MustRegister(&ProtocolFeature{
		Name:               "Tools",
		Category:           CategoryServerFeatures,
		RequiredCapability: CapabilityTools,
	})

	t.Run("unregistered feature reference", func(t *testing.T) {
		tests := NewTestRegistry()
		tt := newTest("t1", "server-features", CapabilityTools)
		tt.Feature = "Resources"
		tests.MustRegister(tt)
		assert.Error(t, features.Validate(tests))
	})

	t.Run("capability mismatch", func(t *testing.T) {
		tests := NewTestRegistry()
		tt := newTest("t2", "server-features", CapabilityResources)
		tt.Feature = "Tools"
		tests.MustRegister(tt)
		assert.Error(t, features.Validate(tests))
	})

	t.Run("consistent registries", func(t *testing.T) {
		tests := NewTestRegistry()
		tt := newTest("t3", "server-features", CapabilityTools)
		tt.Feature = "Tools"
		tests.MustRegister(tt)
		unfeatured := newTest("t4", "base-protocol", "")
		tests.MustRegister(unfeatured)
		assert.NoError(t, features.Validate(tests))
	})
}
