package checks

import (
	"context"
	"fmt"

	"github.com/mcp-compliance-tester/internal/client"
	"github.com/mcp-compliance-tester/internal/compliance"
)

// transportChecks covers connection establishment and basic JSON-RPC message
// exchange. These run against every server regardless of capabilities.
func transportChecks() []*compliance.DiagnosticTest {
	return []*compliance.DiagnosticTest{
		{
			Name:        "Transport: Connection Established",
			Category:    categoryBaseProtocol,
			Severity:    compliance.SeverityCritical,
			Feature:     FeatureTransport,
			SpecSection: "Base Protocol / Transports",
			Execute:     checkConnectionEstablished,
		},
		{
			Name:        "JSON-RPC 2.0: Request-Response Exchange",
			Category:    categoryBaseProtocol,
			Severity:    compliance.SeverityCritical,
			Feature:     FeatureJSONRPC,
			SpecSection: "Base Protocol / Messages",
			Execute:     checkRequestResponse,
		},
		{
			Name:        "JSON-RPC 2.0: Structured Error Responses",
			Category:    categoryBaseProtocol,
			Severity:    compliance.SeverityWarning,
			Feature:     FeatureJSONRPC,
			SpecSection: "Base Protocol / Messages",
			Execute:     checkStructuredErrors,
		},
	}
}

func checkConnectionEstablished(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:    "Transport: Connection Established",
		Category:    categoryBaseProtocol,
		Feature:     FeatureTransport,
		Severity:    compliance.SeverityCritical,
		SpecSection: "Base Protocol / Transports",
	}

	transport := tc.Client.TransportType()
	if transport == "" {
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueCriticalFailure
		result.Message = "Client reports no active transport"
		result.Recommendations = []string{"Verify the transport configuration"}
		return result, nil
	}
	result.Status = compliance.StatusPassed
	result.Message = fmt.Sprintf("Connected over %s transport", transport)
	result.Details = map[string]any{"transport": transport}
	return result, nil
}

// checkRequestResponse issues the cheapest available request and confirms the
// server answers it. Which listing works depends on the server; any one
// succeeding proves the message loop.
func checkRequestResponse(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:    "JSON-RPC 2.0: Request-Response Exchange",
		Category:    categoryBaseProtocol,
		Feature:     FeatureJSONRPC,
		Severity:    compliance.SeverityCritical,
		SpecSection: "Base Protocol / Messages",
	}

	attempts := []struct {
		op  string
		run func(context.Context) error
	}{
		{"tools/list", func(ctx context.Context) error {
			_, err := tc.Inventory.Tools(ctx)
			return err
		}},
		{"resources/list", func(ctx context.Context) error {
			_, err := tc.Inventory.Resources(ctx)
			return err
		}},
		{"prompts/list", func(ctx context.Context) error {
			_, err := tc.Inventory.Prompts(ctx)
			return err
		}},
	}

	var lastErr error
	for _, a := range attempts {
		if err := a.run(ctx); err == nil {
			result.Status = compliance.StatusPassed
			result.Message = fmt.Sprintf("Server answered a %s request", a.op)
			result.Details = map[string]any{"operation": a.op}
			return result, nil
		} else if _, ok := client.CodeOf(err); ok {
			// A structured rejection still proves the message loop.
			result.Status = compliance.StatusPassed
			result.Message = fmt.Sprintf("Server answered %s with a structured error", a.op)
			result.Details = map[string]any{"operation": a.op}
			return result, nil
		} else {
			lastErr = err
		}
	}

	result.Status = compliance.StatusFailed
	result.IssueType = compliance.IssueCriticalFailure
	result.Message = fmt.Sprintf("No listing request produced a JSON-RPC response: %v", lastErr)
	result.Recommendations = []string{
		"Verify the server implements the JSON-RPC 2.0 message framing",
	}
	return result, nil
}

// checkStructuredErrors probes an unsupported request family and verifies the
// rejection carries a numeric JSON-RPC code rather than a bare transport
// failure. Servers supporting every listed family pass trivially.
func checkStructuredErrors(ctx context.Context, tc *compliance.TestContext) (*compliance.DiagnosticResult, error) {
	result := &compliance.DiagnosticResult{
		TestName:    "JSON-RPC 2.0: Structured Error Responses",
		Category:    categoryBaseProtocol,
		Feature:     FeatureJSONRPC,
		Severity:    compliance.SeverityWarning,
		SpecSection: "Base Protocol / Messages",
	}

	probes := []func(context.Context) error{
		func(ctx context.Context) error {
			_, err := tc.Client.ListTools(ctx)
			return err
		},
		func(ctx context.Context) error {
			_, err := tc.Client.ListResources(ctx)
			return err
		},
		func(ctx context.Context) error {
			_, err := tc.Client.ListPrompts(ctx)
			return err
		},
	}

	for _, probe := range probes {
		err := probe(ctx)
		if err == nil {
			continue
		}
		if code, ok := client.CodeOf(err); ok {
			result.Status = compliance.StatusPassed
			result.Message = fmt.Sprintf("Unsupported request rejected with %s (%d)", client.CodeName(code), code)
			result.Details = map[string]any{"errorCode": code}
			return result, nil
		}
		result.Status = compliance.StatusFailed
		result.IssueType = compliance.IssueSpecWarning
		result.Message = "Server rejected a request without a structured JSON-RPC error"
		result.Expected = "an error object with a numeric code"
		result.Actual = fmt.Sprintf("unstructured error: %v", err)
		result.Recommendations = []string{
			"Return JSON-RPC error objects with standard codes for unsupported methods",
		}
		return result, nil
	}

	result.Status = compliance.StatusPassed
	result.Message = "All listing requests succeeded; error shape not exercised"
	return result, nil
}
