package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(name, category string, status Status, severity Severity) *DiagnosticResult {
	return &DiagnosticResult{
		TestName: name,
		Category: category,
		Status:   status,
		Severity: severity,
	}
}

func generate(t *testing.T, results []*DiagnosticResult) *HealthReport {
	t.Helper()
	g := NewReportGenerator(nil, nil)
	started := time.Now().Add(-time.Second)
	return g.Generate("run-1", ServerInfo{Name: "srv", Version: "1.0"}, NewCapabilitySet(), results, started, time.Now())
}

func TestEmptyResultsYieldZeroScore(t *testing.T) {
	report := generate(t, nil)

	assert.Equal(t, 0, report.Summary.OverallScore)
	assert.Equal(t, 0, report.Summary.TestResults.Total)
	assert.Empty(t, report.Categories)
}

func TestSinglePassingTestScoresHigh(t *testing.T) {
	report := generate(t, []*DiagnosticResult{
		result("t1", "base-protocol", StatusPassed, SeverityCritical),
	})

	assert.Equal(t, 1, report.Summary.TestResults.Total)
	assert.Equal(t, 1, report.Summary.TestResults.Passed)
	assert.Equal(t, 0, report.Summary.TestResults.Failed)
	assert.Equal(t, 0, report.Summary.TestResults.Skipped)
	assert.Greater(t, report.Summary.OverallScore, 90)
	assert.Equal(t, StatusPassed, report.Summary.Status)
}

func TestStatusPrecedence(t *testing.T) {
	cases := []struct {
		name   string
		counts Counts
		want   Status
	}{
		{"failed wins", Counts{Total: 3, Passed: 1, Failed: 1, Warnings: 1}, StatusFailed},
		{"warning next", Counts{Total: 2, Passed: 1, Warnings: 1}, StatusWarning},
		{"empty is skipped", Counts{}, StatusSkipped},
		{"nothing passed is skipped", Counts{Total: 2, Skipped: 2}, StatusSkipped},
		{"all passed", Counts{Total: 2, Passed: 2}, StatusPassed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.counts.status())
		})
	}
}

func TestWarningSeverityFailureCountsAsWarning(t *testing.T) {
	report := generate(t, []*DiagnosticResult{
		result("soft", "lifecycle", StatusFailed, SeverityWarning),
		result("ok", "lifecycle", StatusPassed, SeverityCritical),
	})

	require.Len(t, report.Categories, 1)
	cat := report.Categories[0]
	assert.Equal(t, 0, cat.Failed)
	assert.Equal(t, 1, cat.Warnings)
	assert.Equal(t, StatusWarning, cat.Status)
	// The failure still costs score.
	assert.Equal(t, 90, cat.Score)
}

func TestScoreIsWeightedAndBounded(t *testing.T) {
	report := generate(t, []*DiagnosticResult{
		result("a", "base-protocol", StatusFailed, SeverityCritical),
		result("b", "base-protocol", StatusFailed, SeverityCritical),
		result("c", "base-protocol", StatusFailed, SeverityCritical),
		result("d", "base-protocol", StatusFailed, SeverityCritical),
		result("e", "server-features", StatusPassed, SeverityCritical),
	})

	// base-protocol floors at 0 despite 120 points of penalties.
	require.Len(t, report.Categories, 2)
	assert.Equal(t, 0, report.Categories[0].Score)
	assert.Equal(t, 100, report.Categories[1].Score)

	// round(0*0.30 + 100*0.35) / 0.65 = 54
	assert.Equal(t, 54, report.Summary.OverallScore)
	assert.GreaterOrEqual(t, report.Summary.OverallScore, 0)
	assert.LessOrEqual(t, report.Summary.OverallScore, 100)
}

func TestUnknownCategoryGetsDefaultWeight(t *testing.T) {
	report := generate(t, []*DiagnosticResult{
		result("a", "custom-category", StatusPassed, SeverityInfo),
	})
	assert.Equal(t, 100, report.Summary.OverallScore)
}

func TestIssuesSortedBySeverityStable(t *testing.T) {
	report := generate(t, []*DiagnosticResult{
		result("info-1", "x", StatusFailed, SeverityInfo),
		result("warn-1", "x", StatusFailed, SeverityWarning),
		result("crit-1", "x", StatusFailed, SeverityCritical),
		result("warn-2", "x", StatusFailed, SeverityWarning),
		result("crit-2", "x", StatusFailed, SeverityCritical),
		result("pass", "x", StatusPassed, SeverityCritical),
	})

	names := make([]string, len(report.Issues))
	for i, issue := range report.Issues {
		names[i] = issue.TestName
	}
	assert.Equal(t, []string{"crit-1", "crit-2", "warn-1", "warn-2", "info-1"}, names)
}

func TestCategorizedIssuesFallBackToSeverity(t *testing.T) {
	withType := result("typed", "x", StatusFailed, SeverityInfo)
	withType.IssueType = IssueCriticalFailure

	report := generate(t, []*DiagnosticResult{
		withType,
		result("crit", "x", StatusFailed, SeverityCritical),
		result("warn", "x", StatusFailed, SeverityWarning),
		result("info", "x", StatusFailed, SeverityInfo),
	})

	buckets := report.CategorizedIssues
	require.Len(t, buckets.CriticalIssues, 2)
	require.Len(t, buckets.Warnings, 1)
	require.Len(t, buckets.Optimizations, 1)
	assert.Equal(t, "warn", buckets.Warnings[0].TestName)
	assert.Equal(t, "info", buckets.Optimizations[0].TestName)
}

func TestPerformanceIssuesLandInOptimizations(t *testing.T) {
	slow := result("slow", "x", StatusFailed, SeverityCritical)
	slow.IssueType = IssuePerformanceIssue

	report := generate(t, []*DiagnosticResult{slow})
	require.Len(t, report.CategorizedIssues.Optimizations, 1)
	assert.Empty(t, report.CategorizedIssues.CriticalIssues)
}

func TestProtocolVersionExtraction(t *testing.T) {
	t.Run("extracted from details", func(t *testing.T) {
		versioned := result("Initialization: Protocol Version Negotiation", "lifecycle", StatusPassed, SeverityCritical)
		versioned.Details = map[string]any{"version": "2025-03-26"}

		report := generate(t, []*DiagnosticResult{versioned})
		assert.Equal(t, "2025-03-26", report.Server.ProtocolVersion)
	})

	t.Run("defaults when absent", func(t *testing.T) {
		report := generate(t, []*DiagnosticResult{
			result("t", "x", StatusPassed, SeverityInfo),
		})
		assert.Equal(t, "2024-11-05", report.Server.ProtocolVersion)
	})
}

func TestCapabilityInferenceFallback(t *testing.T) {
	passed := result("tools test", "server-features", StatusPassed, SeverityCritical)
	passed.RequiredCapability = CapabilityTools
	failed := result("resources test", "server-features", StatusFailed, SeverityCritical)
	failed.RequiredCapability = CapabilityResources

	g := NewReportGenerator(nil, nil)
	report := g.Generate("run-1", ServerInfo{}, nil,
		[]*DiagnosticResult{passed, failed}, time.Now(), time.Now())

	assert.Equal(t, []string{"tools"}, report.ServerCapabilities)
}

func TestSkippedCapabilitiesDerivedFromResults(t *testing.T) {
	skipped := result("prompts test", "server-features", StatusSkipped, SeverityCritical)
	skipped.RequiredCapability = CapabilityPrompts

	report := generate(t, []*DiagnosticResult{skipped})
	assert.Equal(t, []string{"prompts"}, report.SkippedCapabilities)
	assert.Equal(t, 1, report.Metadata.SkippedCount)
}

func TestHierarchicalViewFollowsFeatureRegistry(t *testing.T) {
	features := NewFeatureRegistry()
	features.MustRegister(
		&ProtocolFeature{Name: "Tools", Category: CategoryServerFeatures, RequiredCapability: CapabilityTools},
		&ProtocolFeature{Name: "Transport", Category: CategoryBaseProtocol},
	)

	toolResult := result("t", "server-features", StatusPassed, SeverityCritical)
	toolResult.Feature = "Tools"

	g := NewReportGenerator(features, nil)
	report := g.Generate("run-1", ServerInfo{}, NewCapabilitySet(CapabilityTools),
		[]*DiagnosticResult{toolResult}, time.Now(), time.Now())

	require.Len(t, report.ProtocolView, 4)
	sf := report.ProtocolView[string(CategoryServerFeatures)]
	require.Len(t, sf.Features, 1)
	assert.Equal(t, "Tools", sf.Features[0].Name)
	assert.True(t, sf.Features[0].Supported)
	assert.Equal(t, StatusPassed, sf.Features[0].Status)

	// Categories with no results render as skipped skeleton entries.
	assert.Equal(t, StatusSkipped, report.ProtocolView[string(CategoryLifecycle)].Status)
}
