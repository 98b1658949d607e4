// Package toolrunner executes user-authored tool tests from a YAML file
// directly against a server, outside the compliance suite.
package toolrunner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mcp-compliance-tester/internal/client"
	"github.com/mcp-compliance-tester/internal/compliance"
	"github.com/mcp-compliance-tester/internal/config"
)

// ToolTest is one user-authored test case.
type ToolTest struct {
	Name           string         `yaml:"name"`
	Tool           string         `yaml:"tool"`
	Arguments      map[string]any `yaml:"arguments"`
	ExpectError    bool           `yaml:"expectError"`
	ExpectContains string         `yaml:"expectContains"`
	Timeout        string         `yaml:"timeout"`
}

// TestFile is the document shape of a tool-test YAML file.
type TestFile struct {
	Tests []ToolTest `yaml:"tests"`
}

// Load reads and validates a tool-test file.
func Load(path string) (*TestFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test file: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing test file %s: %w", path, err)
	}
	if err := config.ValidateTestFile(doc); err != nil {
		return nil, fmt.Errorf("invalid test file %s: %w", path, err)
	}

	var tf TestFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("decoding test file %s: %w", path, err)
	}
	return &tf, nil
}

// Runner executes tool tests sequentially against a connected client.
type Runner struct {
	logger  *logrus.Logger
	timeout time.Duration
}

// NewRunner creates a runner with the given default per-test timeout.
func NewRunner(timeout time.Duration, logger *logrus.Logger) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Run executes every test in the file and returns one result per test. The
// tool category is "tool-tests" so results can be scored and rendered with
// the same report machinery the compliance suite uses.
func (r *Runner) Run(ctx context.Context, c client.Client, tf *TestFile) []*compliance.DiagnosticResult {
	results := make([]*compliance.DiagnosticResult, 0, len(tf.Tests))
	for _, t := range tf.Tests {
		started := time.Now()
		result := r.runOne(ctx, c, t)
		result.DurationMS = time.Since(started).Milliseconds()
		r.logger.WithFields(logrus.Fields{
			"test":   t.Name,
			"tool":   t.Tool,
			"status": result.Status,
		}).Debug("Tool test executed")
		results = append(results, result)
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, c client.Client, t ToolTest) *compliance.DiagnosticResult {
	result := &compliance.DiagnosticResult{
		TestName: t.Name,
		Category: "tool-tests",
		Severity: compliance.SeverityWarning,
	}

	timeout := r.timeout
	if t.Timeout != "" {
		if d, err := time.ParseDuration(t.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callResult, err := c.CallTool(callCtx, t.Tool, t.Arguments)

	switch {
	case t.ExpectError:
		if err != nil || (callResult != nil && callResult.IsError) {
			result.Status = compliance.StatusPassed
			result.Message = fmt.Sprintf("Tool %q rejected the call as expected", t.Tool)
			return result
		}
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("Tool %q succeeded but an error was expected", t.Tool)
		result.Expected = "an error result"
		result.Actual = "success"
		return result

	case err != nil:
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueCriticalFailure
		result.Severity = compliance.SeverityCritical
		result.Message = fmt.Sprintf("Tool %q call failed: %v", t.Tool, err)
		return result

	case callResult != nil && callResult.IsError:
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueCriticalFailure
		result.Message = fmt.Sprintf("Tool %q returned an error result: %s", t.Tool, textOf(callResult))
		return result
	}

	text := textOf(callResult)
	if t.ExpectContains != "" && !strings.Contains(text, t.ExpectContains) {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("Tool %q output does not contain the expected text", t.Tool)
		result.Expected = fmt.Sprintf("output containing %q", t.ExpectContains)
		result.Actual = truncate(text, 200)
		return result
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Tool %q returned the expected output", t.Tool)
	return result
}

func textOf(res *client.ToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
