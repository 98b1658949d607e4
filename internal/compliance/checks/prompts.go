package checks

import (
	"context"
	"fmt"

	"github.com/mcp-compliance-tester/internal/client"
	"github.com/mcp-compliance-tester/internal/compliance"
)

const nonexistentPromptName = "mcp_tester_nonexistent_prompt_7f3a"

func promptChecks() []*compliance.DiagnosticTest {
	return []*compliance.DiagnosticTest{
		{
			Name:               "Prompts: List Prompts",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityCritical,
			Feature:            FeaturePrompts,
			RequiredCapability: compliance.CapabilityPrompts,
			SpecSection:        "Server Features / Prompts",
			Execute:            checkPromptsList,
		},
		{
			Name:               "Prompts: Get Listed Prompt",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityCritical,
			Feature:            FeaturePrompts,
			RequiredCapability: compliance.CapabilityPrompts,
			SpecSection:        "Server Features / Prompts",
			Execute:            checkPromptGet,
		},
		{
			Name:               "Prompts: Unknown Prompt Rejection",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityWarning,
			Feature:            FeaturePrompts,
			RequiredCapability: compliance.CapabilityPrompts,
			SpecSection:        "Server Features / Prompts",
			Execute:            checkUnknownPromptRejected,
		},
	}
}

func checkPromptsList(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:           "Prompts: List Prompts",
		Category:           categoryServerFeatures,
		Feature:            FeaturePrompts,
		Severity:           compliance.SeverityCritical,
		RequiredCapability: compliance.CapabilityPrompts,
		SpecSection:        "Server Features / Prompts",
	}

	prompts, err := tc.Inventory.Prompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing prompts: %w", err)
	}

	var unnamed int
	for _, p := range prompts {
		if p.Name == "" {
			unnamed++
		}
	}
	if unnamed > 0 {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("%d of %d listed prompts have no name", unnamed, len(prompts))
		result.Expected = "every prompt carries a unique name"
		result.Actual = fmt.Sprintf("%d unnamed prompts", unnamed)
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Server lists %d prompts", len(prompts))
	result.Details = map[string]any{"count": len(prompts)}
	return result, nil
}

// checkPromptGet fetches the first prompt without required arguments, picking
// one that declares none when possible. Prompts whose arguments are all
// required cannot be fetched generically and are left to the tool runner.
func checkPromptGet(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:           "Prompts: Get Listed Prompt",
		Category:           categoryServerFeatures,
		Feature:            FeaturePrompts,
		Severity:           compliance.SeverityCritical,
		RequiredCapability: compliance.CapabilityPrompts,
		SpecSection:        "Server Features / Prompts",
	}

	prompts, err := tc.Inventory.Prompts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing prompts: %w", err)
	}
	if len(prompts) == 0 {
		result.Status = compliance.StatusPassed
		result.Message = "Server lists no prompts; nothing to get"
		return result, nil
	}

	var candidate *client.Prompt
	for i := range prompts {
		required := false
		for _, a := range prompts[i].Arguments {
			if a.Required {
				required = true
				break
			}
		}
		if !required {
			candidate = &prompts[i]
			break
		}
	}
	if candidate == nil {
		result.Status = compliance.StatusPassed
		result.Message = "Every listed prompt requires arguments; retrieval not exercised"
		return result, nil
	}

	got, err := tc.Client.GetPrompt(ctx, candidate.Name, nil)
	if err != nil {
		return nil, fmt.Errorf("getting prompt %s: %w", candidate.Name, err)
	}
	if len(got.Messages) == 0 {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Severity = compliance.SeverityWarning
		result.Message = fmt.Sprintf("Prompt %q returned no messages", candidate.Name)
		result.Expected = "at least one prompt message"
		result.Actual = "empty messages"
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Fetched prompt %q (%d messages)", candidate.Name, len(got.Messages))
	result.Details = map[string]any{"prompt": candidate.Name, "messages": len(got.Messages)}
	return result, nil
}

func checkUnknownPromptRejected(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	spec := compliance.OperationSpec{
		Name:               "Prompts: Unknown Prompt Rejection",
		Category:           categoryServerFeatures,
		Feature:            FeaturePrompts,
		Severity:           compliance.SeverityWarning,
		RequiredCapability: compliance.CapabilityPrompts,
		SpecSection:        "Server Features / Prompts",
		ExpectsError:       true,
		Operation: func(ctx context.Context, c client.Client) error {
			_, err := c.GetPrompt(ctx, nonexistentPromptName, nil)
			return err
		},
	}
	return tc.Classifier.ExecuteSpec(ctx, tc.Client, spec), nil
}
