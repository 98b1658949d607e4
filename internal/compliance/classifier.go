package compliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mcp-compliance-tester/internal/client"
)

// OperationSpec is a declarative negative/positive-path check: run one client
// operation and judge the outcome against the expectation. Capability-specific
// test families reuse this instead of re-implementing protocol validation.
type OperationSpec struct {
	Name               string
	Category           string
	Feature            string
	Severity           Severity
	RequiredCapability Capability
	SpecSection        string

	Operation func(ctx context.Context, c client.Client) error

	// ExpectsError marks specs whose operation must be rejected by a
	// compliant server. ExpectedErrorCode pins the exact JSON-RPC code;
	// zero accepts any recognized protocol error.
	ExpectsError      bool
	ExpectedErrorCode int
}

// ErrorClassifier executes operation specs and converts their outcomes into
// diagnostics using a single error taxonomy. Its classification table is the
// one source of truth for what a non-compliant error response looks like.
type ErrorClassifier struct {
	logger  *logrus.Logger
	timeout time.Duration
}

// NewErrorClassifier creates a classifier with the given per-operation
// timeout.
func NewErrorClassifier(timeout time.Duration, logger *logrus.Logger) *ErrorClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ErrorClassifier{logger: logger, timeout: timeout}
}

// errorClass is one row of the classification table.
type errorClass struct {
	Kind            string
	IssueType       IssueType
	Recommendations []string
	FixInstructions []string
	SpecLinks       []string
}

const (
	specBaseURL     = "https://modelcontextprotocol.io/specification/2025-03-26"
	specJSONRPCLink = specBaseURL + "/basic"
	specToolsLink   = specBaseURL + "/server/tools"
	specLifecycle   = specBaseURL + "/basic/lifecycle"
	specTransports  = specBaseURL + "/basic/transports"
	jsonRPCSpecLink = "https://www.jsonrpc.org/specification"
)

// codeClasses maps recognized JSON-RPC codes to their diagnosis. This is the
// highest-fidelity classification path.
var codeClasses = map[int]errorClass{
	client.CodeParseError: {
		Kind:      "ParseError",
		IssueType: IssueCriticalFailure,
		Recommendations: []string{
			"Ensure every response is valid JSON encoded as UTF-8",
			"Validate JSON-RPC 2.0 message framing on the server side",
		},
		FixInstructions: []string{
			"Check the server's JSON serialization for malformed output",
		},
		SpecLinks: []string{jsonRPCSpecLink, specJSONRPCLink},
	},
	client.CodeInvalidRequest: {
		Kind:      "InvalidRequest",
		IssueType: IssueCriticalFailure,
		Recommendations: []string{
			"Reject only genuinely malformed requests; valid requests must not surface this code",
		},
		FixInstructions: []string{
			"Review request validation against the JSON-RPC 2.0 request object rules",
		},
		SpecLinks: []string{jsonRPCSpecLink},
	},
	client.CodeMethodNotFound: {
		Kind:      "MethodNotFound",
		IssueType: IssueSpecWarning,
		Recommendations: []string{
			"Advertise only capabilities whose methods are actually implemented",
			"Check for a capability mismatch between the handshake and the method table",
		},
		FixInstructions: []string{
			"Implement the missing method or remove the capability from the initialize response",
		},
		SpecLinks: []string{specLifecycle},
	},
	client.CodeInvalidParams: {
		Kind:      "InvalidParams",
		IssueType: IssueSpecWarning,
		Recommendations: []string{
			"Validate parameters against the declared input schema and report which field failed",
		},
		FixInstructions: []string{
			"Align the server's parameter validation with the schemas it advertises",
		},
		SpecLinks: []string{specToolsLink},
	},
	client.CodeInternalError: {
		Kind:      "InternalError",
		IssueType: IssueCriticalFailure,
		Recommendations: []string{
			"Inspect server logs for the underlying fault",
			"Internal errors must not leak for well-formed requests",
		},
		SpecLinks: []string{jsonRPCSpecLink},
	},
	client.CodeConnectionClosed: {
		Kind:      "ConnectionClosed",
		IssueType: IssueCriticalFailure,
		Recommendations: []string{
			"Keep the transport open for the whole session lifecycle",
			"Check for crashes or premature exits in the server process",
		},
		SpecLinks: []string{specTransports},
	},
	client.CodeRequestTimeout: {
		Kind:      "RequestTimeout",
		IssueType: IssuePerformanceIssue,
		Recommendations: []string{
			"Optimize server response time for this operation",
			"Consider streaming partial results for long-running work",
		},
		SpecLinks: []string{specTransports},
	},
}

var genericClass = errorClass{
	Kind:      "GenericError",
	IssueType: IssueSpecWarning,
	Recommendations: []string{
		"Return structured JSON-RPC errors with a numeric code instead of untyped failures",
	},
	SpecLinks: []string{jsonRPCSpecLink},
}

var unknownClass = errorClass{
	Kind:            "Unknown",
	IssueType:       IssueCriticalFailure,
	Recommendations: []string{"Review the server implementation"},
}

var timeoutClass = errorClass{
	Kind:      "Timeout",
	IssueType: IssuePerformanceIssue,
	Recommendations: []string{
		"Optimize server response time",
		"Raise the harness timeout if the operation is legitimately slow",
	},
	SpecLinks: []string{specTransports},
}

var connectivityClass = errorClass{
	Kind:      "ConnectionFailure",
	IssueType: IssueCriticalFailure,
	Recommendations: []string{
		"Verify the server process is running and reachable",
		"Check the transport configuration (command, URL, port)",
	},
	SpecLinks: []string{specTransports},
}

// classify applies the taxonomy in order of specificity: structured code,
// then message heuristics, then unknown.
func classify(err error) (errorClass, int, bool) {
	if perr := client.AsProtocolError(err); perr != nil {
		if class, ok := codeClasses[perr.Code]; ok {
			return class, perr.Code, true
		}
		// A structured error with an unrecognized code is still a
		// recognized error shape.
		return errorClass{
			Kind:            "ProtocolError",
			IssueType:       IssueSpecWarning,
			Recommendations: []string{"Use standard JSON-RPC error codes where one applies"},
			SpecLinks:       []string{jsonRPCSpecLink},
		}, perr.Code, true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return timeoutClass, 0, false
	case strings.Contains(msg, "econnrefused"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return connectivityClass, 0, false
	default:
		return unknownClass, 0, false
	}
}

// ExecuteSpec runs one operation spec against the client and produces exactly
// one diagnostic. The operation races a classifier-level timeout; a timeout
// is a transport finding about the server, not a harness bug.
func (ec *ErrorClassifier) ExecuteSpec(ctx context.Context, c client.Client, spec OperationSpec) *DiagnosticResult {
	result := &DiagnosticResult{
		TestName:           spec.Name,
		Category:           spec.Category,
		Feature:            spec.Feature,
		Severity:           spec.Severity,
		RequiredCapability: spec.RequiredCapability,
		SpecSection:        spec.SpecSection,
	}

	opCtx, cancel := context.WithTimeout(ctx, ec.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("operation panicked: %v", r)
			}
		}()
		done <- spec.Operation(opCtx, c)
	}()

	var opErr error
	select {
	case opErr = <-done:
	case <-opCtx.Done():
		// The in-flight operation is abandoned, not cancelled; the
		// context it holds is cancelled on return.
		return ec.timeoutResult(result)
	}

	switch {
	case opErr == nil && !spec.ExpectsError:
		result.Status = StatusPassed
		result.Message = fmt.Sprintf("%s completed successfully", spec.Name)
	case opErr == nil && spec.ExpectsError:
		result.Status = StatusFailed
		result.Message = "Expected SDK to throw an error but operation succeeded"
		result.IssueType = IssueSpecWarning
		result.Expected = expectedErrorString(spec.ExpectedErrorCode)
		result.Actual = "operation succeeded"
		result.Recommendations = []string{
			"Reject the invalid input with a structured JSON-RPC error",
		}
	case spec.ExpectsError:
		ec.judgeExpectedError(result, spec, opErr)
	default:
		ec.applyFailure(result, opErr)
	}
	return result
}

// judgeExpectedError compares a rejection against the expected error code.
func (ec *ErrorClassifier) judgeExpectedError(result *DiagnosticResult, spec OperationSpec, opErr error) {
	class, code, structured := classify(opErr)

	if spec.ExpectedErrorCode != 0 {
		if structured && code == spec.ExpectedErrorCode {
			result.Status = StatusPassed
			result.Message = fmt.Sprintf("Server rejected the request with the expected %s (%d) error",
				client.CodeName(code), code)
			return
		}
		result.Status = StatusFailed
		result.IssueType = class.IssueType
		result.Expected = expectedErrorString(spec.ExpectedErrorCode)
		if structured {
			result.Actual = fmt.Sprintf("error code %d (%s)", code, client.CodeName(code))
		} else {
			result.Actual = fmt.Sprintf("unstructured error: %v", opErr)
		}
		result.Message = fmt.Sprintf("Server rejected the request, but not with the expected error code: %s", result.Actual)
		result.Recommendations = class.Recommendations
		result.SpecLinks = class.SpecLinks
		return
	}

	if structured {
		result.Status = StatusPassed
		result.Message = fmt.Sprintf("Server rejected the request with a structured %s (%d) error",
			client.CodeName(code), code)
		return
	}
	result.Status = StatusFailed
	result.IssueType = IssueSpecWarning
	result.Expected = "a structured JSON-RPC error"
	result.Actual = fmt.Sprintf("unstructured error: %v", opErr)
	result.Message = "Server rejected the request without a recognizable JSON-RPC error shape"
	result.Recommendations = genericClass.Recommendations
	result.SpecLinks = genericClass.SpecLinks
}

// applyFailure routes an unexpected rejection through the classification
// table, attaching the canned remediation for its bucket.
func (ec *ErrorClassifier) applyFailure(result *DiagnosticResult, opErr error) {
	class, code, structured := classify(opErr)

	result.Status = StatusFailed
	result.IssueType = class.IssueType
	result.Recommendations = class.Recommendations
	result.FixInstructions = class.FixInstructions
	result.SpecLinks = class.SpecLinks
	if structured {
		result.Message = fmt.Sprintf("Operation failed with %s (%d): %v", class.Kind, code, opErr)
		result.Details = map[string]any{"errorCode": code, "errorKind": class.Kind}
	} else {
		result.Message = fmt.Sprintf("Operation failed: %v", opErr)
		result.Details = map[string]any{"errorKind": class.Kind}
	}

	ec.logger.WithFields(logrus.Fields{
		"test":      result.TestName,
		"errorKind": class.Kind,
		"issueType": class.IssueType,
	}).Debug("Classified unexpected operation failure")
}

func (ec *ErrorClassifier) timeoutResult(result *DiagnosticResult) *DiagnosticResult {
	result.Status = StatusFailed
	result.Message = fmt.Sprintf("Operation did not complete within %s", ec.timeout)
	result.IssueType = timeoutClass.IssueType
	result.Recommendations = timeoutClass.Recommendations
	result.SpecLinks = timeoutClass.SpecLinks
	result.Details = map[string]any{"errorKind": timeoutClass.Kind}
	return result
}

func expectedErrorString(code int) string {
	if code == 0 {
		return "a structured JSON-RPC error"
	}
	return fmt.Sprintf("error code %d (%s)", code, client.CodeName(code))
}
