package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-compliance-tester/internal/compliance"
)

func sampleReport() *compliance.HealthReport {
	failed := &compliance.DiagnosticResult{
		TestName:        "Tools: List Tools",
		Category:        "server-features",
		Status:          compliance.StatusFailed,
		Severity:        compliance.SeverityCritical,
		IssueType:       compliance.IssueCriticalFailure,
		Message:         "listing failed",
		Expected:        "a tool list",
		Actual:          "an error",
		Recommendations: []string{"check the server logs"},
		SpecLinks:       []string{"https://example.com/spec"},
	}
	passed := &compliance.DiagnosticResult{
		TestName: "Transport: Connection Established",
		Category: "base-protocol",
		Status:   compliance.StatusPassed,
		Severity: compliance.SeverityCritical,
		Message:  "connected",
	}
	skipped := &compliance.DiagnosticResult{
		TestName: "Prompts: List Prompts",
		Category: "server-features",
		Status:   compliance.StatusSkipped,
		Severity: compliance.SeverityCritical,
		Message:  "Server does not support the prompts capability",
	}

	return &compliance.HealthReport{
		RunID: "run-1",
		Server: compliance.ServerInfo{
			Name: "srv", Version: "1.0", ProtocolVersion: "2024-11-05", Transport: "stdio",
		},
		ServerCapabilities:  []string{"tools"},
		SkippedCapabilities: []string{"prompts"},
		Metadata:            compliance.Metadata{Timestamp: time.Now(), DurationMS: 1234, TestCount: 3, SkippedCount: 1},
		Summary: compliance.Summary{
			OverallScore: 62,
			Status:       compliance.StatusFailed,
			TestResults:  compliance.Counts{Total: 3, Passed: 1, Failed: 1, Skipped: 1},
		},
		Categories: []compliance.CategorySummary{
			{Name: "base-protocol", Score: 100, Status: compliance.StatusPassed, Counts: compliance.Counts{Total: 1, Passed: 1}},
			{Name: "server-features", Score: 70, Status: compliance.StatusFailed, Counts: compliance.Counts{Total: 2, Failed: 1, Skipped: 1}},
		},
		Issues: []*compliance.DiagnosticResult{failed},
		CategorizedIssues: compliance.CategorizedIssues{
			CriticalIssues: []*compliance.DiagnosticResult{failed},
			Warnings:       []*compliance.DiagnosticResult{},
			Optimizations:  []*compliance.DiagnosticResult{},
		},
		Results: []*compliance.DiagnosticResult{passed, failed, skipped},
	}
}

func TestConsoleFormatterSectionOrder(t *testing.T) {
	var buf bytes.Buffer
	f := &ConsoleFormatter{Verbose: true}
	require.NoError(t, f.Write(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "srv 1.0")
	assert.Contains(t, out, "Overall Score: 62/100")
	assert.Contains(t, out, "Capabilities: tools")
	assert.Contains(t, out, "Critical Failures (1):")
	assert.Contains(t, out, "expected: a tool list")
	assert.Contains(t, out, "https://example.com/spec")
	assert.Contains(t, out, "3 tests in 1234ms (1 skipped)")

	// Categories render before the overall score, score before issues.
	catIdx := strings.Index(out, "Categories:")
	scoreIdx := strings.Index(out, "Overall Score:")
	issueIdx := strings.Index(out, "Critical Failures")
	assert.Less(t, catIdx, scoreIdx)
	assert.Less(t, scoreIdx, issueIdx)
}

func TestConsoleFormatterOmitsEmptySections(t *testing.T) {
	r := sampleReport()
	r.Issues = nil
	r.CategorizedIssues = compliance.CategorizedIssues{}

	var buf bytes.Buffer
	require.NoError(t, (&ConsoleFormatter{}).Write(&buf, r))
	out := buf.String()

	assert.NotContains(t, out, "Critical Failures")
	assert.NotContains(t, out, "Spec Warnings")
	assert.NotContains(t, out, "Detailed Results")
}

func TestJSONFormatterShapeIsStable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{Indent: true}).Write(&buf, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	for _, key := range []string{
		"runId", "serverInfo", "serverCapabilities", "skippedCapabilities",
		"metadata", "summary", "categories", "issues", "categorizedIssues", "results",
	} {
		_, present := decoded[key]
		assert.True(t, present, "key %s missing from JSON report", key)
	}

	summary := decoded["summary"].(map[string]any)
	testResults := summary["testResults"].(map[string]any)
	assert.Equal(t, float64(3), testResults["total"])
	assert.Equal(t, float64(62), summary["overallScore"])
}

func TestJUnitFormatterCountsOutcomes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JUnitFormatter{}).Write(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, `tests="3"`)
	assert.Contains(t, out, `failures="1"`)
	assert.Contains(t, out, `skipped="1"`)
	assert.Contains(t, out, `classname="server-features"`)
	assert.Contains(t, out, "listing failed")
}
