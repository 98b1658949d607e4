// Package evals runs LLM-judged evaluations: tool calls whose outputs are
// graded against natural-language expectations instead of exact matches.
package evals

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mcp-compliance-tester/internal/client"
	"github.com/mcp-compliance-tester/internal/compliance"
	"github.com/mcp-compliance-tester/internal/llm"
)

// Eval is one judged test case.
type Eval struct {
	Name        string         `yaml:"name"`
	Tool        string         `yaml:"tool"`
	Arguments   map[string]any `yaml:"arguments"`
	Expectation string         `yaml:"expectation"`
}

// EvalFile is the document shape of an eval YAML file.
type EvalFile struct {
	Evals []Eval `yaml:"evals"`
}

// Load reads an eval file.
func Load(path string) (*EvalFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading eval file: %w", err)
	}
	var ef EvalFile
	if err := yaml.Unmarshal(raw, &ef); err != nil {
		return nil, fmt.Errorf("parsing eval file %s: %w", path, err)
	}
	if len(ef.Evals) == 0 {
		return nil, fmt.Errorf("eval file %s defines no evals", path)
	}
	for i, e := range ef.Evals {
		if e.Name == "" || e.Tool == "" || e.Expectation == "" {
			return nil, fmt.Errorf("eval %d is missing name, tool, or expectation", i)
		}
	}
	return &ef, nil
}

// Runner executes evals: call the tool, then have the judge grade the output.
type Runner struct {
	judge   *llm.Judge
	logger  *logrus.Logger
	timeout time.Duration
}

// NewRunner creates an eval runner.
func NewRunner(judge *llm.Judge, timeout time.Duration, logger *logrus.Logger) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{judge: judge, logger: logger, timeout: timeout}
}

// Run executes every eval sequentially. Judge failures fail the eval rather
// than aborting the run.
func (r *Runner) Run(ctx context.Context, c client.Client, ef *EvalFile) []*compliance.DiagnosticResult {
	results := make([]*compliance.DiagnosticResult, 0, len(ef.Evals))
	for _, e := range ef.Evals {
		started := time.Now()
		result := r.runOne(ctx, c, e)
		result.DurationMS = time.Since(started).Milliseconds()
		results = append(results, result)
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, c client.Client, e Eval) *compliance.DiagnosticResult {
	result := &compliance.DiagnosticResult{
		TestName: e.Name,
		Category: "evals",
		Severity: compliance.SeverityWarning,
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	callResult, err := c.CallTool(callCtx, e.Tool, e.Arguments)
	if err != nil {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueCriticalFailure
		result.Severity = compliance.SeverityCritical
		result.Message = fmt.Sprintf("Tool %q call failed: %v", e.Tool, err)
		return result
	}

	output := flatten(callResult)
	verdict, err := r.judge.Grade(ctx, e.Expectation, output)
	if err != nil {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueCriticalFailure
		result.Message = fmt.Sprintf("Judging failed: %v", err)
		return result
	}

	result.Details = map[string]any{
		"score":     verdict.Score,
		"reasoning": verdict.Reasoning,
	}
	if !verdict.Pass {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("Judge rejected the output: %s", verdict.Reasoning)
		result.Expected = e.Expectation
		return result
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Judge accepted the output (score %d)", verdict.Score)
	return result
}

func flatten(res *client.ToolResult) string {
	if res == nil {
		return ""
	}
	var out string
	for _, c := range res.Content {
		if c.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += c.Text
		}
	}
	return out
}
