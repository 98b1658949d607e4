package checks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mcp-compliance-tester/internal/client"
	"github.com/mcp-compliance-tester/internal/compliance"
)

// nonexistentToolName is a name no reasonable server registers; calling it
// must produce a structured error.
const nonexistentToolName = "mcp_tester_nonexistent_tool_7f3a"

func toolChecks() []*compliance.DiagnosticTest {
	return []*compliance.DiagnosticTest{
		{
			Name:               "Tools: List Tools",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityCritical,
			Feature:            FeatureTools,
			RequiredCapability: compliance.CapabilityTools,
			SpecSection:        "Server Features / Tools",
			Execute:            checkToolsList,
		},
		{
			Name:               "Tools: Input Schema Validity",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityWarning,
			Feature:            FeatureTools,
			RequiredCapability: compliance.CapabilityTools,
			SpecSection:        "Server Features / Tools",
			Execute:            checkToolSchemas,
		},
		{
			Name:               "Tools: Unknown Tool Rejection",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityWarning,
			Feature:            FeatureTools,
			RequiredCapability: compliance.CapabilityTools,
			SpecSection:        "Server Features / Tools",
			Execute:            checkUnknownToolRejected,
		},
	}
}

func checkToolsList(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:           "Tools: List Tools",
		Category:           categoryServerFeatures,
		Feature:            FeatureTools,
		Severity:           compliance.SeverityCritical,
		RequiredCapability: compliance.CapabilityTools,
		SpecSection:        "Server Features / Tools",
	}

	tools, err := tc.Inventory.Tools(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	if len(tools) == 0 {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Severity = compliance.SeverityWarning
		result.Message = "Server advertises the tools capability but lists no tools"
		result.Recommendations = []string{
			"Remove the tools capability or register at least one tool",
		}
		return result, nil
	}

	names := make([]string, 0, len(tools))
	unnamed := 0
	for _, t := range tools {
		if t.Name == "" {
			unnamed++
			continue
		}
		names = append(names, t.Name)
	}
	if unnamed > 0 {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("%d of %d listed tools have no name", unnamed, len(tools))
		result.Expected = "every tool carries a unique name"
		result.Actual = fmt.Sprintf("%d unnamed tools", unnamed)
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Server lists %d tools", len(tools))
	result.Details = map[string]any{"count": len(tools), "tools": names}
	return result, nil
}

// checkToolSchemas compiles every advertised input schema. A schema the
// harness cannot compile is one no client can validate arguments against.
func checkToolSchemas(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:           "Tools: Input Schema Validity",
		Category:           categoryServerFeatures,
		Feature:            FeatureTools,
		Severity:           compliance.SeverityWarning,
		RequiredCapability: compliance.CapabilityTools,
		SpecSection:        "Server Features / Tools",
	}

	tools, err := tc.Inventory.Tools(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	var invalid []string
	for _, t := range tools {
		if t.InputSchema == nil {
			invalid = append(invalid, t.Name+" (no schema)")
			continue
		}
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			invalid = append(invalid, fmt.Sprintf("%s (%v)", t.Name, err))
			continue
		}
		if _, err := jsonschema.CompileString(t.Name+".json", string(raw)); err != nil {
			invalid = append(invalid, fmt.Sprintf("%s (%v)", t.Name, err))
		}
	}

	if len(invalid) > 0 {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("%d of %d tools advertise an unusable input schema", len(invalid), len(tools))
		result.Details = map[string]any{"invalid": invalid}
		result.Expected = "every tool advertises a compilable JSON Schema"
		result.Actual = fmt.Sprintf("%d schemas failed to compile", len(invalid))
		result.Recommendations = []string{
			"Validate each tool's inputSchema against the JSON Schema specification",
		}
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("All %d tool input schemas compile", len(tools))
	return result, nil
}

// checkUnknownToolRejected delegates the negative path to the classifier:
// calling a tool that does not exist must produce a structured error.
func checkUnknownToolRejected(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	spec := compliance.OperationSpec{
		Name:               "Tools: Unknown Tool Rejection",
		Category:           categoryServerFeatures,
		Feature:            FeatureTools,
		Severity:           compliance.SeverityWarning,
		RequiredCapability: compliance.CapabilityTools,
		SpecSection:        "Server Features / Tools",
		ExpectsError:       true,
		Operation: func(ctx context.Context, c client.Client) error {
			_, err := c.CallTool(ctx, nonexistentToolName, map[string]any{})
			return err
		},
	}
	return tc.Classifier.ExecuteSpec(ctx, tc.Client, spec), nil
}
