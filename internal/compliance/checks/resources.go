package checks

import (
	"context"
	"fmt"

	"github.com/mcp-compliance-tester/internal/client"
	"github.com/mcp-compliance-tester/internal/compliance"
)

// nonexistentResourceURI uses a scheme and path no server should resolve.
const nonexistentResourceURI = "mcp-tester://nonexistent/resource/7f3a"

func resourceChecks() []*compliance.DiagnosticTest {
	return []*compliance.DiagnosticTest{
		{
			Name:               "Resources: List Resources",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityCritical,
			Feature:            FeatureResources,
			RequiredCapability: compliance.CapabilityResources,
			SpecSection:        "Server Features / Resources",
			Execute:            checkResourcesList,
		},
		{
			Name:               "Resources: Read Listed Resource",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityCritical,
			Feature:            FeatureResources,
			RequiredCapability: compliance.CapabilityResources,
			SpecSection:        "Server Features / Resources",
			Execute:            checkResourceRead,
		},
		{
			Name:               "Resources: Unknown URI Rejection",
			Category:           categoryServerFeatures,
			Severity:           compliance.SeverityWarning,
			Feature:            FeatureResources,
			RequiredCapability: compliance.CapabilityResources,
			SpecSection:        "Server Features / Resources",
			Execute:            checkUnknownResourceRejected,
		},
	}
}

func checkResourcesList(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:           "Resources: List Resources",
		Category:           categoryServerFeatures,
		Feature:            FeatureResources,
		Severity:           compliance.SeverityCritical,
		RequiredCapability: compliance.CapabilityResources,
		SpecSection:        "Server Features / Resources",
	}

	resources, err := tc.Inventory.Resources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}

	var missingURI int
	for _, r := range resources {
		if r.URI == "" {
			missingURI++
		}
	}
	if missingURI > 0 {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("%d of %d listed resources have no URI", missingURI, len(resources))
		result.Expected = "every resource carries a URI"
		result.Actual = fmt.Sprintf("%d resources without a URI", missingURI)
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Server lists %d resources", len(resources))
	result.Details = map[string]any{"count": len(resources)}
	return result, nil
}

// checkResourceRead reads the first listed resource and verifies the response
// echoes the requested URI with some content. A server listing no resources
// passes vacuously; an empty list is judged by the listing check.
func checkResourceRead(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:           "Resources: Read Listed Resource",
		Category:           categoryServerFeatures,
		Feature:            FeatureResources,
		Severity:           compliance.SeverityCritical,
		RequiredCapability: compliance.CapabilityResources,
		SpecSection:        "Server Features / Resources",
	}

	resources, err := tc.Inventory.Resources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	if len(resources) == 0 {
		result.Status = compliance.StatusPassed
		result.Message = "Server lists no resources; nothing to read"
		return result, nil
	}

	uri := resources[0].URI
	contents, err := tc.Client.ReadResource(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	if len(contents) == 0 {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Severity = compliance.SeverityWarning
		result.Message = fmt.Sprintf("Reading %s returned no contents", uri)
		result.Expected = "at least one contents entry"
		result.Actual = "empty contents"
		return result, nil
	}
	if contents[0].URI != "" && contents[0].URI != uri {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = "Resource contents do not echo the requested URI"
		result.Expected = uri
		result.Actual = contents[0].URI
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Read %s (%d contents)", uri, len(contents))
	result.Details = map[string]any{"uri": uri, "contents": len(contents)}
	return result, nil
}

func checkUnknownResourceRejected(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	spec := compliance.OperationSpec{
		Name:               "Resources: Unknown URI Rejection",
		Category:           categoryServerFeatures,
		Feature:            FeatureResources,
		Severity:           compliance.SeverityWarning,
		RequiredCapability: compliance.CapabilityResources,
		SpecSection:        "Server Features / Resources",
		ExpectsError:       true,
		Operation: func(ctx context.Context, c client.Client) error {
			_, err := c.ReadResource(ctx, nonexistentResourceURI)
			return err
		},
	}
	return tc.Classifier.ExecuteSpec(ctx, tc.Client, spec), nil
}
