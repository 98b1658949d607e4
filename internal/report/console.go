// Package report renders HealthReports for human and machine consumers.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/mcp-compliance-tester/internal/compliance"
)

const ruleLine = "════════════════════════════════════════════════════════════"
const thinRule = "────────────────────────────────────────────────────────────"

// ConsoleFormatter renders a health report as a multi-section terminal
// report with status glyphs.
type ConsoleFormatter struct {
	Verbose bool
}

func statusGlyph(s compliance.Status) string {
	switch s {
	case compliance.StatusPassed:
		return "✓"
	case compliance.StatusFailed:
		return "✗"
	case compliance.StatusWarning:
		return "⚠"
	default:
		return "○"
	}
}

// Write renders the report in a fixed section order: per-category summary,
// overall score, capabilities, issue buckets, detailed breakdown, spec
// links, timing footer.
func (f *ConsoleFormatter) Write(w io.Writer, r *compliance.HealthReport) error {
	fmt.Fprintln(w, ruleLine)
	fmt.Fprintf(w, " MCP Compliance Report - %s %s\n", r.Server.Name, r.Server.Version)
	fmt.Fprintf(w, " Transport: %s   Protocol: %s\n", orDash(r.Server.Transport), r.Server.ProtocolVersion)
	fmt.Fprintln(w, ruleLine)

	fmt.Fprintln(w, "\nCategories:")
	for _, cat := range r.Categories {
		fmt.Fprintf(w, "  %s %-18s score %3d  (%d passed, %d failed, %d warnings, %d skipped)\n",
			statusGlyph(cat.Status), cat.Name, cat.Score,
			cat.Passed, cat.Failed, cat.Warnings, cat.Skipped)
	}

	fmt.Fprintf(w, "\nOverall Score: %d/100 (%s)\n", r.Summary.OverallScore, r.Summary.Status)

	fmt.Fprintf(w, "\nCapabilities: %s\n", listOrNone(r.ServerCapabilities))
	if len(r.SkippedCapabilities) > 0 {
		fmt.Fprintf(w, "Not supported: %s\n", strings.Join(r.SkippedCapabilities, ", "))
	}

	f.writeIssueSection(w, "Critical Failures", r.CategorizedIssues.CriticalIssues)
	f.writeIssueSection(w, "Spec Warnings", r.CategorizedIssues.Warnings)
	f.writeIssueSection(w, "Optimizations", r.CategorizedIssues.Optimizations)

	if f.Verbose {
		fmt.Fprintf(w, "\n%s\nDetailed Results\n%s\n", thinRule, thinRule)
		for _, res := range r.Results {
			glyph := statusGlyph(res.Status)
			if res.Status == compliance.StatusSkipped {
				glyph = "○"
			}
			fmt.Fprintf(w, "  %s %s - %s (%dms)\n", glyph, res.TestName, res.Message, res.DurationMS)
		}
	}

	if links := collectSpecLinks(r.Issues); len(links) > 0 {
		fmt.Fprintln(w, "\nSpec References:")
		for _, link := range links {
			fmt.Fprintf(w, "  %s\n", link)
		}
	}

	fmt.Fprintf(w, "\n%d tests in %dms (%d skipped)\n",
		r.Metadata.TestCount, r.Metadata.DurationMS, r.Metadata.SkippedCount)
	return nil
}

func (f *ConsoleFormatter) writeIssueSection(w io.Writer, title string, issues []*compliance.DiagnosticResult) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		fmt.Fprintf(w, "  ✗ %s: %s\n", issue.TestName, issue.Message)
		if issue.Expected != "" {
			fmt.Fprintf(w, "      expected: %s\n", issue.Expected)
			fmt.Fprintf(w, "      actual:   %s\n", issue.Actual)
		}
		for _, rec := range issue.Recommendations {
			fmt.Fprintf(w, "      → %s\n", rec)
		}
	}
}

// collectSpecLinks dedupes the spec links of all issues, first-seen order.
func collectSpecLinks(issues []*compliance.DiagnosticResult) []string {
	seen := make(map[string]struct{})
	var links []string
	for _, issue := range issues {
		for _, link := range issue.SpecLinks {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
	}
	return links
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none detected"
	}
	return strings.Join(items, ", ")
}
