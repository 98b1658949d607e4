package checks

import (
	"context"
	"fmt"

	"github.com/mcp-compliance-tester/internal/compliance"
)

// supportedProtocolVersions are the revisions this harness knows how to
// diagnose. An unlisted version is a warning, not a failure: the server may
// simply be newer than the harness.
var supportedProtocolVersions = map[string]struct{}{
	"2024-11-05": {},
	"2025-03-26": {},
	"2025-06-18": {},
}

func lifecycleChecks() []*compliance.DiagnosticTest {
	return []*compliance.DiagnosticTest{
		{
			Name:        "Initialization: Server Identity",
			Category:    categoryLifecycle,
			Severity:    compliance.SeverityCritical,
			Feature:     FeatureInitialization,
			SpecSection: "Lifecycle / Initialization",
			Execute:     checkServerIdentity,
		},
		{
			Name:        "Initialization: Protocol Version Negotiation",
			Category:    categoryLifecycle,
			Severity:    compliance.SeverityCritical,
			Feature:     FeatureInitialization,
			SpecSection: "Lifecycle / Initialization",
			Execute:     checkProtocolVersion,
		},
		{
			Name:        "Initialization: Capability Declaration",
			Category:    categoryLifecycle,
			Severity:    compliance.SeverityWarning,
			Feature:     FeatureInitialization,
			SpecSection: "Lifecycle / Initialization",
			Execute:     checkCapabilityDeclaration,
		},
		{
			Name:        "Initialization: Instructions Provided",
			Category:    categoryLifecycle,
			Severity:    compliance.SeverityInfo,
			Feature:     FeatureInitialization,
			SpecSection: "Lifecycle / Initialization",
			Execute:     checkInstructions,
		},
	}
}

func checkServerIdentity(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:    "Initialization: Server Identity",
		Category:    categoryLifecycle,
		Feature:     FeatureInitialization,
		Severity:    compliance.SeverityCritical,
		SpecSection: "Lifecycle / Initialization",
	}

	v := tc.Client.GetServerVersion()
	if v == nil || v.Name == "" {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueCriticalFailure
		result.Message = "Server did not report its name in the initialize response"
		result.Expected = "serverInfo with a non-empty name"
		result.Actual = "missing or empty serverInfo"
		result.Recommendations = []string{
			"Populate serverInfo.name and serverInfo.version in the initialize result",
		}
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Server identifies as %s %s", v.Name, v.Version)
	result.Details = map[string]any{"name": v.Name, "version": v.Version}
	if v.Version == "" {
		result.Status = compliance.StatusFailed
		result.Severity = compliance.SeverityWarning
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("Server %q reported no version", v.Name)
		result.Recommendations = []string{"Report a version string in serverInfo.version"}
	}
	return result, nil
}

// checkProtocolVersion records the negotiated version in its details; the
// report generator reads it from there.
func checkProtocolVersion(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:    "Initialization: Protocol Version Negotiation",
		Category:    categoryLifecycle,
		Feature:     FeatureInitialization,
		Severity:    compliance.SeverityCritical,
		SpecSection: "Lifecycle / Initialization",
	}

	version := tc.Client.ProtocolVersion()
	if version == "" {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueCriticalFailure
		result.Message = "Server did not negotiate a protocol version"
		result.Expected = "a protocolVersion string in the initialize result"
		result.Actual = "no protocol version"
		result.Recommendations = []string{
			"Return the negotiated protocolVersion in the initialize result",
		}
		return result, nil
	}

	result.Details = map[string]any{"version": version}
	if _, known := supportedProtocolVersions[version]; !known {
		result.Status = compliance.StatusFailed
		result.Severity = compliance.SeverityWarning
		result.IssueType = compliance.IssueSpecWarning
		result.Message = fmt.Sprintf("Server negotiated unrecognized protocol version %q", version)
		result.Recommendations = []string{
			"Verify the version string matches a published protocol revision",
		}
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Negotiated protocol version %s", version)
	return result, nil
}

func checkCapabilityDeclaration(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:    "Initialization: Capability Declaration",
		Category:    categoryLifecycle,
		Feature:     FeatureInitialization,
		Severity:    compliance.SeverityWarning,
		SpecSection: "Lifecycle / Initialization",
	}

	declared := tc.Client.GetServerCapabilities()
	if len(declared) == 0 {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = "Server declared no capabilities in the initialize response"
		result.Expected = "a capabilities object naming the supported feature areas"
		result.Actual = "empty capabilities"
		result.Recommendations = []string{
			"Declare every supported capability so clients can skip unsupported features",
		}
		return result, nil
	}

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Server declared %d capabilities", len(names))
	result.Details = map[string]any{"declared": names}
	return result, nil
}

// checkInstructions is advisory: instructions are optional, but servers that
// provide them integrate better with LLM hosts.
func checkInstructions(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:    "Initialization: Instructions Provided",
		Category:    categoryLifecycle,
		Feature:     FeatureInitialization,
		Severity:    compliance.SeverityInfo,
		SpecSection: "Lifecycle / Initialization",
	}

	if tc.Client.GetInstructions() == "" {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueOptimization
		result.Message = "Server provides no usage instructions"
		result.Recommendations = []string{
			"Provide an instructions string describing how hosts should use this server",
		}
		return result, nil
	}
	result.Status = compliance.StatusPassed
	result.Message = "Server provides usage instructions"
	return result, nil
}
