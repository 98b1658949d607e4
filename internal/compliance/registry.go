package compliance

import (
	"fmt"
	"strings"
	"sync"
)

// TestRegistry holds the registered diagnostics in insertion order. It is an
// explicit instance rather than package-level state so each run (and each
// test of the engine itself) can construct its own.
type TestRegistry struct {
	mu     sync.RWMutex
	tests  []*DiagnosticTest
	byName map[string]struct{}
}

// NewTestRegistry creates an empty registry.
func NewTestRegistry() *TestRegistry {
	return &TestRegistry{byName: make(map[string]struct{})}
}

// Register adds a diagnostic. Names are unique; identity fields must be set.
func (r *TestRegistry) Register(t *DiagnosticTest) error {
	if t == nil {
		return fmt.Errorf("cannot register a nil test")
	}
	if t.Name == "" || t.Category == "" || t.Severity == "" {
		return fmt.Errorf("test %q is missing identity fields", t.Name)
	}
	if t.Execute == nil {
		return fmt.Errorf("test %q has no execute function", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[t.Name]; dup {
		return fmt.Errorf("test %q is already registered", t.Name)
	}
	r.byName[t.Name] = struct{}{}
	r.tests = append(r.tests, t)
	return nil
}

// MustRegister registers a batch of diagnostics and panics on a registration
// error, which is always a programming mistake caught at startup.
func (r *TestRegistry) MustRegister(tests ...*DiagnosticTest) {
	for _, t := range tests {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// All returns every registered test in insertion order.
func (r *TestRegistry) All() []*DiagnosticTest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DiagnosticTest, len(r.tests))
	copy(out, r.tests)
	return out
}

// Len reports the number of registered tests.
func (r *TestRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tests)
}

// Applicable returns the tests that can run against a server with the given
// capabilities: those with no required capability, or whose requirement is
// present.
func (r *TestRegistry) Applicable(caps CapabilitySet) []*DiagnosticTest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*DiagnosticTest
	for _, t := range r.tests {
		if t.RequiredCapability == "" || caps.Has(t.RequiredCapability) {
			out = append(out, t)
		}
	}
	return out
}

// Skipped returns the complement of Applicable: tests whose required
// capability the server lacks.
func (r *TestRegistry) Skipped(caps CapabilitySet) []*DiagnosticTest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*DiagnosticTest
	for _, t := range r.tests {
		if t.RequiredCapability != "" && !caps.Has(t.RequiredCapability) {
			out = append(out, t)
		}
	}
	return out
}

// ByCategory returns the tests registered under the given category name,
// case-insensitively.
func (r *TestRegistry) ByCategory(category string) []*DiagnosticTest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*DiagnosticTest
	for _, t := range r.tests {
		if strings.EqualFold(t.Category, category) {
			out = append(out, t)
		}
	}
	return out
}
