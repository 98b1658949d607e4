package checks

import (
	"context"

	"github.com/mcp-compliance-tester/internal/compliance"
)

func utilityChecks() []*compliance.DiagnosticTest {
	return []*compliance.DiagnosticTest{
		{
			Name:               "Logging: Capability Declared",
			Category:           categoryUtilities,
			Severity:           compliance.SeverityInfo,
			Feature:            FeatureLogging,
			RequiredCapability: compliance.CapabilityLogging,
			SpecSection:        "Utilities / Logging",
			Execute:            checkLoggingDeclared,
		},
	}
}

// checkLoggingDeclared only runs when the logging capability is present;
// there is no client-side operation to exercise it, so the check records the
// declaration for the report.
func checkLoggingDeclared(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:           "Logging: Capability Declared",
		Category:           categoryUtilities,
		Feature:            FeatureLogging,
		Severity:           compliance.SeverityInfo,
		RequiredCapability: compliance.CapabilityLogging,
		SpecSection:        "Utilities / Logging",
	}
	result.Status = compliance.StatusPassed
	result.Message = "Server declares the logging capability"
	return result, nil
}
