package compliance

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultProtocolVersion is reported when no diagnostic captured the version
// the server negotiated.
const defaultProtocolVersion = "2024-11-05"

// categoryWeights drives the overall score. Unlisted categories get
// defaultCategoryWeight so a new test category cannot silently dominate or
// vanish from the score.
var categoryWeights = map[string]float64{
	"base-protocol":   0.30,
	"lifecycle":       0.25,
	"server-features": 0.35,
	"security":        0.10,
}

const defaultCategoryWeight = 0.10

// ServerInfo is the identity block of a health report.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
	Transport       string `json:"transport,omitempty"`
}

// Counts tallies results by outcome. A failed result whose severity is
// warning counts as a warning, not a hard failure; severity, not status,
// decides which bucket a failure lands in.
type Counts struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
	Skipped  int `json:"skipped"`
}

// CategorySummary aggregates one test category.
type CategorySummary struct {
	Name       string `json:"name"`
	Score      int    `json:"score"`
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration"`
	Counts
}

// Summary is the top-level rollup of a run.
type Summary struct {
	TestResults  Counts `json:"testResults"`
	OverallScore int    `json:"overallScore"`
	Status       Status `json:"status"`
}

// Metadata describes the run itself rather than its findings.
type Metadata struct {
	Timestamp    time.Time `json:"timestamp"`
	DurationMS   int64     `json:"duration"`
	TestCount    int       `json:"testCount"`
	SkippedCount int       `json:"skippedCount"`
}

// ProtocolFeatureSummary aggregates the results belonging to one protocol
// feature, for the hierarchical report view.
type ProtocolFeatureSummary struct {
	Name               string     `json:"name"`
	RequiredCapability Capability `json:"requiredCapability,omitempty"`
	Supported          bool       `json:"supported"`
	Status             Status     `json:"status"`
	Counts
}

// ProtocolCategorySummary rolls up the feature summaries of one protocol
// category.
type ProtocolCategorySummary struct {
	Status   Status                   `json:"status"`
	Features []ProtocolFeatureSummary `json:"features"`
	Counts
}

// CategorizedIssues buckets failed results by what kind of work fixing them
// is. Performance issues are surfaced with the optimizations since both are
// quality work rather than correctness work.
type CategorizedIssues struct {
	CriticalIssues []*DiagnosticResult `json:"criticalIssues"`
	Warnings       []*DiagnosticResult `json:"warnings"`
	Optimizations  []*DiagnosticResult `json:"optimizations"`
}

// HealthReport is the complete output of one compliance run. Its JSON shape
// is stable: consumers parse it programmatically, so fields serialize to
// arrays and keyed objects, never to anything format-version dependent.
type HealthReport struct {
	RunID string `json:"runId"`

	Server              ServerInfo `json:"serverInfo"`
	ServerCapabilities  []string   `json:"serverCapabilities"`
	SkippedCapabilities []string   `json:"skippedCapabilities"`

	Metadata Metadata `json:"metadata"`
	Summary  Summary  `json:"summary"`

	Categories        []CategorySummary                  `json:"categories"`
	ProtocolView      map[string]ProtocolCategorySummary `json:"protocolView,omitempty"`
	Issues            []*DiagnosticResult                `json:"issues"`
	CategorizedIssues CategorizedIssues                  `json:"categorizedIssues"`
	Results           []*DiagnosticResult                `json:"results"`
}

// ReportGenerator folds a slice of diagnostic results into a HealthReport.
// It is pure over its inputs; the same results always yield the same report.
type ReportGenerator struct {
	logger   *logrus.Logger
	features *FeatureRegistry
}

// NewReportGenerator creates a generator. The feature registry is optional;
// without one the hierarchical protocol view is omitted.
func NewReportGenerator(features *FeatureRegistry, logger *logrus.Logger) *ReportGenerator {
	if logger == nil {
		logger = logrus.New()
	}
	return &ReportGenerator{logger: logger, features: features}
}

// Generate builds the health report for one run. A nil capability set means
// detection was skipped; capabilities are then inferred from the results.
func (g *ReportGenerator) Generate(runID string, server ServerInfo, caps CapabilitySet, results []*DiagnosticResult, started, finished time.Time) *HealthReport {
	if caps == nil {
		caps = g.inferCapabilities(results)
	}

	report := &HealthReport{
		RunID:               runID,
		Server:              server,
		ServerCapabilities:  capabilityNames(caps),
		SkippedCapabilities: skippedCapabilityNames(results),
		Results:             results,
	}
	if report.Server.ProtocolVersion == "" {
		report.Server.ProtocolVersion = g.protocolVersion(results)
	}

	report.Categories = g.categorySummaries(results)
	report.Summary = g.summarize(report.Categories, results)
	report.Metadata = buildMetadata(results, started, finished)
	report.Issues = g.collectIssues(results)
	report.CategorizedIssues = g.categorizeIssues(report.Issues)
	if g.features != nil {
		report.ProtocolView = g.protocolView(caps, results)
	}
	return report
}

// inferCapabilities derives the capability set from evidence: a passed test
// that required a capability proves the server has it.
func (g *ReportGenerator) inferCapabilities(results []*DiagnosticResult) CapabilitySet {
	caps := make(CapabilitySet)
	for _, r := range results {
		if r.RequiredCapability != "" && r.Status == StatusPassed {
			caps[r.RequiredCapability] = struct{}{}
		}
	}
	if len(caps) > 0 {
		g.logger.WithField("capabilities", caps.Sorted()).
			Debug("Capabilities inferred from passed tests")
	}
	return caps
}

func capabilityNames(caps CapabilitySet) []string {
	sorted := caps.Sorted()
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = string(c)
	}
	return out
}

// skippedCapabilityNames lists the capabilities that kept at least one test
// from running.
func skippedCapabilityNames(results []*DiagnosticResult) []string {
	skipped := make(CapabilitySet)
	for _, r := range results {
		if r.Status == StatusSkipped && r.RequiredCapability != "" {
			skipped[r.RequiredCapability] = struct{}{}
		}
	}
	return capabilityNames(skipped)
}

// protocolVersion scans for a protocol-version diagnostic that recorded the
// negotiated version in its details.
func (g *ReportGenerator) protocolVersion(results []*DiagnosticResult) string {
	for _, r := range results {
		if !strings.Contains(r.TestName, "Protocol Version") {
			continue
		}
		if v, ok := r.Details["version"].(string); ok && v != "" {
			return v
		}
	}
	return defaultProtocolVersion
}

// count tallies a result. A failed result with warning severity is a soft
// finding and lands in Warnings, not Failed.
func (c *Counts) count(r *DiagnosticResult) {
	c.Total++
	switch r.Status {
	case StatusPassed:
		c.Passed++
	case StatusFailed:
		if r.Severity == SeverityWarning {
			c.Warnings++
		} else {
			c.Failed++
		}
	case StatusSkipped:
		c.Skipped++
	}
}

// status derives the rollup status from the counts: any hard failure fails
// the group, warnings alone degrade it, and a group where nothing ran (or
// nothing passed) is skipped.
func (c Counts) status() Status {
	switch {
	case c.Failed > 0:
		return StatusFailed
	case c.Warnings > 0:
		return StatusWarning
	case c.Total == 0 || c.Passed == 0:
		return StatusSkipped
	default:
		return StatusPassed
	}
}

// severityPenalty is the score cost of one failed result.
func severityPenalty(s Severity) int {
	switch s {
	case SeverityCritical:
		return 30
	case SeverityWarning:
		return 10
	default:
		return 5
	}
}

// categoryScore starts each category at 100 and subtracts a severity-weighted
// penalty per failure, floored at zero. Skipped results cost nothing.
func categoryScore(results []*DiagnosticResult) int {
	score := 100
	for _, r := range results {
		if r.Status == StatusFailed {
			score -= severityPenalty(r.Severity)
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// categorySummaries groups results by test category, preserving first-seen
// order.
func (g *ReportGenerator) categorySummaries(results []*DiagnosticResult) []CategorySummary {
	var order []string
	grouped := make(map[string][]*DiagnosticResult)
	for _, r := range results {
		key := strings.ToLower(r.Category)
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], r)
	}

	summaries := make([]CategorySummary, 0, len(order))
	for _, name := range order {
		rs := grouped[name]
		summary := CategorySummary{Name: name, Score: categoryScore(rs)}
		for _, r := range rs {
			summary.count(r)
			summary.DurationMS += r.DurationMS
		}
		summary.Status = summary.Counts.status()
		summaries = append(summaries, summary)
	}
	return summaries
}

func categoryWeight(name string) float64 {
	if w, ok := categoryWeights[strings.ToLower(name)]; ok {
		return w
	}
	return defaultCategoryWeight
}

// summarize computes the weighted overall score and the run status. Zero
// results yield score 0, never a vacuous all-pass.
func (g *ReportGenerator) summarize(categories []CategorySummary, results []*DiagnosticResult) Summary {
	var summary Summary
	for _, r := range results {
		summary.TestResults.count(r)
	}
	summary.Status = summary.TestResults.status()

	if len(results) == 0 {
		return summary
	}

	var weighted, totalWeight float64
	for _, cat := range categories {
		w := categoryWeight(cat.Name)
		weighted += float64(cat.Score) * w
		totalWeight += w
	}
	if totalWeight > 0 {
		summary.OverallScore = int(math.Round(weighted / totalWeight))
	}
	return summary
}

func buildMetadata(results []*DiagnosticResult, started, finished time.Time) Metadata {
	md := Metadata{
		Timestamp:  started.UTC(),
		DurationMS: finished.Sub(started).Milliseconds(),
		TestCount:  len(results),
	}
	for _, r := range results {
		if r.Status == StatusSkipped {
			md.SkippedCount++
		}
	}
	return md
}

// severityRank orders critical before warning before info.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// collectIssues returns the failed results ordered by severity, preserving
// execution order within a severity.
func (g *ReportGenerator) collectIssues(results []*DiagnosticResult) []*DiagnosticResult {
	var issues []*DiagnosticResult
	for _, r := range results {
		if r.Status == StatusFailed {
			issues = append(issues, r)
		}
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return severityRank(issues[i].Severity) < severityRank(issues[j].Severity)
	})
	return issues
}

// categorizeIssues buckets issues by IssueType, falling back to severity for
// results that predate issue typing.
func (g *ReportGenerator) categorizeIssues(issues []*DiagnosticResult) CategorizedIssues {
	buckets := CategorizedIssues{
		CriticalIssues: []*DiagnosticResult{},
		Warnings:       []*DiagnosticResult{},
		Optimizations:  []*DiagnosticResult{},
	}
	for _, issue := range issues {
		issueType := issue.IssueType
		if issueType == "" {
			switch issue.Severity {
			case SeverityCritical:
				issueType = IssueCriticalFailure
			case SeverityWarning:
				issueType = IssueSpecWarning
			default:
				issueType = IssueOptimization
			}
		}
		switch issueType {
		case IssueCriticalFailure:
			buckets.CriticalIssues = append(buckets.CriticalIssues, issue)
		case IssueSpecWarning:
			buckets.Warnings = append(buckets.Warnings, issue)
		default:
			buckets.Optimizations = append(buckets.Optimizations, issue)
		}
	}
	return buckets
}

// protocolView builds the hierarchical category → feature rollup from the
// feature registry, including features that never ran. Category membership
// comes exclusively from feature registration, never from a result's own
// category string.
func (g *ReportGenerator) protocolView(caps CapabilitySet, results []*DiagnosticResult) map[string]ProtocolCategorySummary {
	byFeature := make(map[string][]*DiagnosticResult)
	for _, r := range results {
		if r.Feature != "" {
			byFeature[r.Feature] = append(byFeature[r.Feature], r)
		}
	}

	grouped := g.features.ByCategory()
	view := make(map[string]ProtocolCategorySummary, len(grouped))
	for _, cat := range ProtocolCategories() {
		catSummary := ProtocolCategorySummary{}
		for _, f := range grouped[cat] {
			fs := ProtocolFeatureSummary{
				Name:               f.Name,
				RequiredCapability: f.RequiredCapability,
				Supported:          f.RequiredCapability == "" || caps.Has(f.RequiredCapability),
			}
			for _, r := range byFeature[f.Name] {
				fs.count(r)
				catSummary.count(r)
			}
			fs.Status = fs.Counts.status()
			catSummary.Features = append(catSummary.Features, fs)
		}
		catSummary.Status = catSummary.Counts.status()
		view[string(cat)] = catSummary
	}
	return view
}
