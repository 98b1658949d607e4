// Package checks contains the concrete compliance diagnostics: data-driven
// instances of the DiagnosticTest contract, grouped by protocol feature.
package checks

import (
	"github.com/mcp-compliance-tester/internal/compliance"
)

// Feature names shared between registration and the individual checks.
const (
	FeatureTransport      = "Transport Layer"
	FeatureJSONRPC        = "JSON-RPC 2.0"
	FeatureInitialization = "Initialization"
	FeatureTools          = "Tools"
	FeatureResources      = "Resources"
	FeaturePrompts        = "Prompts"
	FeatureLogging        = "Logging"
)

// Category names used on individual tests. Tests carry the protocol category
// of their feature so the flat and hierarchical report views agree.
const (
	categoryBaseProtocol   = string(compliance.CategoryBaseProtocol)
	categoryLifecycle      = string(compliance.CategoryLifecycle)
	categoryServerFeatures = string(compliance.CategoryServerFeatures)
	categoryUtilities      = string(compliance.CategoryUtilities)
)

// Register wires the full diagnostic suite into the given registries and
// cross-validates them. Call once at startup.
func Register(tests *compliance.TestRegistry, features *compliance.FeatureRegistry) error {
	features.MustRegister(
		&compliance.ProtocolFeature{
			Name:        FeatureTransport,
			Category:    compliance.CategoryBaseProtocol,
			Description: "Connection establishment and transport identity",
		},
		&compliance.ProtocolFeature{
			Name:        FeatureJSONRPC,
			Category:    compliance.CategoryBaseProtocol,
			Description: "JSON-RPC 2.0 message and error conformance",
		},
		&compliance.ProtocolFeature{
			Name:        FeatureInitialization,
			Category:    compliance.CategoryLifecycle,
			Description: "Initialize handshake: server identity, protocol version, capabilities",
		},
		&compliance.ProtocolFeature{
			Name:               FeatureTools,
			Category:           compliance.CategoryServerFeatures,
			RequiredCapability: compliance.CapabilityTools,
			Description:        "Tool listing, schemas, and invocation error handling",
		},
		&compliance.ProtocolFeature{
			Name:               FeatureResources,
			Category:           compliance.CategoryServerFeatures,
			RequiredCapability: compliance.CapabilityResources,
			Description:        "Resource listing, reading, and URI error handling",
		},
		&compliance.ProtocolFeature{
			Name:               FeaturePrompts,
			Category:           compliance.CategoryServerFeatures,
			RequiredCapability: compliance.CapabilityPrompts,
			Description:        "Prompt listing, retrieval, and argument error handling",
		},
		&compliance.ProtocolFeature{
			Name:               FeatureLogging,
			Category:           compliance.CategoryUtilities,
			RequiredCapability: compliance.CapabilityLogging,
			Description:        "Logging capability declaration",
		},
	)

	tests.MustRegister(transportChecks()...)
	tests.MustRegister(lifecycleChecks()...)
	tests.MustRegister(toolChecks()...)
	tests.MustRegister(resourceChecks()...)
	tests.MustRegister(promptChecks()...)
	tests.MustRegister(utilityChecks()...)

	return features.Validate(tests)
}
