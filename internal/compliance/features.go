package compliance

import (
	"fmt"
	"sync"
)

// ProtocolFeature is a named, testable aspect of the protocol, finer-grained
// than a capability. Each feature belongs to exactly one ProtocolCategory and
// may require a capability; when the server lacks it, every test under the
// feature is skipped, never executed.
type ProtocolFeature struct {
	Name               string
	Category           ProtocolCategory
	RequiredCapability Capability
	Description        string
}

// FeatureRegistry groups diagnostics into protocol features for the
// hierarchical report view. The flat TestRegistry drives execution; this one
// drives reporting, and Validate keeps the two consistent.
type FeatureRegistry struct {
	mu       sync.RWMutex
	features []*ProtocolFeature
	byName   map[string]*ProtocolFeature
}

// NewFeatureRegistry creates an empty feature registry.
func NewFeatureRegistry() *FeatureRegistry {
	return &FeatureRegistry{byName: make(map[string]*ProtocolFeature)}
}

// Register adds a feature. Names are unique; the category must be one of the
// four protocol categories.
func (r *FeatureRegistry) Register(f *ProtocolFeature) error {
	if f == nil || f.Name == "" {
		return fmt.Errorf("cannot register an unnamed feature")
	}
	switch f.Category {
	case CategoryBaseProtocol, CategoryLifecycle, CategoryServerFeatures, CategoryUtilities:
	default:
		return fmt.Errorf("feature %q has unknown category %q", f.Name, f.Category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[f.Name]; dup {
		return fmt.Errorf("feature %q is already registered", f.Name)
	}
	r.byName[f.Name] = f
	r.features = append(r.features, f)
	return nil
}

// MustRegister registers a batch of features, panicking on error.
func (r *FeatureRegistry) MustRegister(features ...*ProtocolFeature) {
	for _, f := range features {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
}

// Get looks a feature up by name.
func (r *FeatureRegistry) Get(name string) (*ProtocolFeature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

// All returns every feature in registration order.
func (r *FeatureRegistry) All() []*ProtocolFeature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ProtocolFeature, len(r.features))
	copy(out, r.features)
	return out
}

// Applicable returns features whose capability requirement is satisfied.
func (r *FeatureRegistry) Applicable(caps CapabilitySet) []*ProtocolFeature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ProtocolFeature
	for _, f := range r.features {
		if f.RequiredCapability == "" || caps.Has(f.RequiredCapability) {
			out = append(out, f)
		}
	}
	return out
}

// Skipped returns features whose capability requirement is not satisfied.
func (r *FeatureRegistry) Skipped(caps CapabilitySet) []*ProtocolFeature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ProtocolFeature
	for _, f := range r.features {
		if f.RequiredCapability != "" && !caps.Has(f.RequiredCapability) {
			out = append(out, f)
		}
	}
	return out
}

// ByCategory groups features by protocol category. All four categories are
// present in the result even when empty, so reports always render the full
// category skeleton.
func (r *FeatureRegistry) ByCategory() map[ProtocolCategory][]*ProtocolFeature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	grouped := make(map[ProtocolCategory][]*ProtocolFeature, 4)
	for _, cat := range ProtocolCategories() {
		grouped[cat] = nil
	}
	for _, f := range r.features {
		grouped[f.Category] = append(grouped[f.Category], f)
	}
	return grouped
}

// Validate cross-checks the two registries: every test that names a feature
// must point at a registered one, and a test's capability requirement must
// match its feature's. A mismatch would make the flat and hierarchical report
// views disagree.
func (r *FeatureRegistry) Validate(tests *TestRegistry) error {
	for _, t := range tests.All() {
		if t.Feature == "" {
			continue
		}
		f, ok := r.Get(t.Feature)
		if !ok {
			return fmt.Errorf("test %q references unregistered feature %q", t.Name, t.Feature)
		}
		if f.RequiredCapability != t.RequiredCapability {
			return fmt.Errorf("test %q requires capability %q but its feature %q requires %q",
				t.Name, t.RequiredCapability, f.Name, f.RequiredCapability)
		}
	}
	return nil
}
