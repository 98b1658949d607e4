// Package compliance implements the MCP compliance diagnostic engine: the
// capability detector, the test and feature registries, the SDK error
// classifier, the sequential runner, and the health report generator.
package compliance

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/mcp-compliance-tester/internal/client"
)

// Capability is an optional top-level feature area a server may advertise.
type Capability string

const (
	CapabilityTools     Capability = "tools"
	CapabilityResources Capability = "resources"
	CapabilityPrompts   Capability = "prompts"
	CapabilityLogging   Capability = "logging"
	CapabilitySampling  Capability = "sampling"
	CapabilityRoots     Capability = "roots"
)

// KnownCapabilities returns every capability the harness understands, in a
// fixed order.
func KnownCapabilities() []Capability {
	return []Capability{
		CapabilityTools,
		CapabilityResources,
		CapabilityPrompts,
		CapabilityLogging,
		CapabilitySampling,
		CapabilityRoots,
	}
}

// CapabilitySet is the set of capabilities detected for one connection. It is
// built once at connect time and read-only for the rest of the run.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the set as a sorted slice for deterministic serialization.
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Severity grades how serious a diagnostic finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Status is the outcome of one diagnostic.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"

	// StatusWarning appears only in rollups: a group with warnings but no
	// hard failures. Individual results are never "warning".
	StatusWarning Status = "warning"
)

// IssueType classifies the nature of a failure, independent of severity.
type IssueType string

const (
	IssueCriticalFailure  IssueType = "critical_failure"
	IssueSpecWarning      IssueType = "spec_warning"
	IssueOptimization     IssueType = "optimization"
	IssuePerformanceIssue IssueType = "performance_issue"
)

// ProtocolCategory is one of the four top-level groupings of the MCP spec.
type ProtocolCategory string

const (
	CategoryBaseProtocol   ProtocolCategory = "base-protocol"
	CategoryLifecycle      ProtocolCategory = "lifecycle"
	CategoryServerFeatures ProtocolCategory = "server-features"
	CategoryUtilities      ProtocolCategory = "utilities"
)

// ProtocolCategories returns the four categories in report order.
func ProtocolCategories() []ProtocolCategory {
	return []ProtocolCategory{
		CategoryBaseProtocol,
		CategoryLifecycle,
		CategoryServerFeatures,
		CategoryUtilities,
	}
}

// TestContext carries the per-run collaborators a diagnostic may use.
type TestContext struct {
	Client     client.Client
	Config     Config
	Inventory  *Inventory
	Classifier *ErrorClassifier
}

// ExecuteFunc is the body of one diagnostic. The runner guards it with a
// timeout and panic recovery; a returned error is converted into a failed
// result, never propagated.
type ExecuteFunc func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error)

// DiagnosticTest is one registered compliance check. Identity fields are
// fixed at registration and never mutated.
type DiagnosticTest struct {
	Name               string
	Category           string
	Severity           Severity
	Feature            string
	RequiredCapability Capability
	SpecSection        string
	Execute            ExecuteFunc
}

// DiagnosticResult is the atomic output of one diagnostic. DurationMS is
// backfilled by the runner immediately after execution; results are never
// mutated after that.
type DiagnosticResult struct {
	TestName           string         `json:"testName"`
	Category           string         `json:"category"`
	Feature            string         `json:"feature,omitempty"`
	Status             Status         `json:"status"`
	Message            string         `json:"message"`
	Details            map[string]any `json:"details,omitempty"`
	Recommendations    []string       `json:"recommendations,omitempty"`
	Severity           Severity       `json:"severity"`
	DurationMS         int64          `json:"duration"`
	RequiredCapability Capability     `json:"requiredCapability,omitempty"`
	SpecSection        string         `json:"mcpSpecSection,omitempty"`

	// Enhanced reporting fields, populated for failures only.
	IssueType       IssueType `json:"issueType,omitempty"`
	Expected        string    `json:"expected,omitempty"`
	Actual          string    `json:"actual,omitempty"`
	FixInstructions []string  `json:"fixInstructions,omitempty"`
	SpecLinks       []string  `json:"specLinks,omitempty"`
}

// resultFor seeds a DiagnosticResult with a test's static identity so check
// bodies only fill outcome fields.
func resultFor(t *DiagnosticTest) *DiagnosticResult {
	return &DiagnosticResult{
		TestName:           t.Name,
		Category:           t.Category,
		Feature:            t.Feature,
		Severity:           t.Severity,
		RequiredCapability: t.RequiredCapability,
		SpecSection:        t.SpecSection,
	}
}

// Config is the runner-facing configuration surface.
type Config struct {
	ConnectionTimeout time.Duration
	TestTimeout       time.Duration
	OverallTimeout    time.Duration

	// EnabledCategories is a lower-cased allow-list; empty means all.
	EnabledCategories []string

	// PaceLimit throttles sequential test execution, in tests per second.
	// Zero disables pacing.
	PaceLimit float64

	// UseSDKErrorDetection is retained for interface compatibility; the
	// classifier is always used.
	UseSDKErrorDetection bool
}

// DefaultConfig returns the timeouts used when the caller supplies none.
func DefaultConfig() Config {
	return Config{
		ConnectionTimeout:    10 * time.Second,
		TestTimeout:          10 * time.Second,
		OverallTimeout:       0,
		UseSDKErrorDetection: true,
	}
}

// CategoryEnabled applies the allow-list to a category name.
func (c Config) CategoryEnabled(category string) bool {
	if len(c.EnabledCategories) == 0 {
		return true
	}
	for _, enabled := range c.EnabledCategories {
		if strings.EqualFold(enabled, category) {
			return true
		}
	}
	return false
}
