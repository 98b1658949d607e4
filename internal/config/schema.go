package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/server-config.schema.json
var serverConfigSchema string

//go:embed schemas/test-file.schema.json
var testFileSchema string

var (
	compiledServerSchema *jsonschema.Schema
	compiledTestSchema   *jsonschema.Schema
)

func init() {
	compiledServerSchema = jsonschema.MustCompileString("server-config.schema.json", serverConfigSchema)
	compiledTestSchema = jsonschema.MustCompileString("test-file.schema.json", testFileSchema)
}

// ValidateServerConfig checks raw JSON against the server config schema.
func ValidateServerConfig(raw []byte) error {
	return validate(compiledServerSchema, raw)
}

// ValidateTestFile checks a decoded tool-test document against its schema.
// Test files are YAML; the caller decodes them before validation.
func ValidateTestFile(doc any) error {
	if err := compiledTestSchema.Validate(normalize(doc)); err != nil {
		return fmt.Errorf("test file schema violation: %w", err)
	}
	return nil
}

// SchemaJSON returns the named embedded schema for the "schema" CLI command.
func SchemaJSON(name string) (string, error) {
	switch strings.ToLower(name) {
	case "server-config", "serverconfig":
		return serverConfigSchema, nil
	case "test-file", "testfile", "tests":
		return testFileSchema, nil
	default:
		return "", fmt.Errorf("unknown schema %q; available: server-config, test-file", name)
	}
}

func validate(schema *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}

// normalize converts YAML-decoded values (map[string]any with non-string
// scalars) into the shapes the schema validator accepts.
func normalize(doc any) any {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}
