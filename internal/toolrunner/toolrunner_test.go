package toolrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-compliance-tester/internal/client"
	"github.com/mcp-compliance-tester/internal/compliance"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidatesAgainstSchema(t *testing.T) {
	t.Run("valid file loads", func(t *testing.T) {
		path := writeTestFile(t, `
tests:
  - name: echo works
    tool: echo
    arguments:
      text: hello
    expectContains: hello
`)
		tf, err := Load(path)
		require.NoError(t, err)
		require.Len(t, tf.Tests, 1)
		assert.Equal(t, "echo works", tf.Tests[0].Name)
	})

	t.Run("missing tool is rejected", func(t *testing.T) {
		path := writeTestFile(t, `
tests:
  - name: broken
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("empty tests list is rejected", func(t *testing.T) {
		path := writeTestFile(t, "tests: []\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestRunJudgesOutcomes(t *testing.T) {
	mock := &client.MockClient{
		CallToolFunc: func(ctx context.Context, name string, args map[string]any) (*client.ToolResult, error) {
			switch name {
			case "echo":
				return &client.ToolResult{Content: []client.Content{{Type: "text", Text: "hello world"}}}, nil
			case "guarded":
				return &client.ToolResult{IsError: true, Content: []client.Content{{Type: "text", Text: "denied"}}}, nil
			default:
				return nil, client.NewError(client.CodeInvalidParams, "unknown tool")
			}
		},
	}

	tf := &TestFile{Tests: []ToolTest{
		{Name: "output matches", Tool: "echo", ExpectContains: "hello"},
		{Name: "output mismatch", Tool: "echo", ExpectContains: "goodbye"},
		{Name: "expected rejection", Tool: "guarded", ExpectError: true},
		{Name: "unexpected failure", Tool: "missing"},
	}}

	results := NewRunner(time.Second, quietLogger()).Run(context.Background(), mock, tf)
	require.Len(t, results, 4)

	byName := make(map[string]*compliance.DiagnosticResult)
	for _, r := range results {
		byName[r.TestName] = r
	}
	assert.Equal(t, compliance.StatusPassed, byName["output matches"].Status)
	assert.Equal(t, compliance.StatusFailed, byName["output mismatch"].Status)
	assert.Equal(t, compliance.StatusPassed, byName["expected rejection"].Status)
	assert.Equal(t, compliance.StatusFailed, byName["unexpected failure"].Status)
	assert.Equal(t, compliance.IssueCriticalFailure, byName["unexpected failure"].IssueType)
}

func TestExpectedErrorButSuccessFails(t *testing.T) {
	mock := &client.MockClient{
		CallToolFunc: func(ctx context.Context, name string, args map[string]any) (*client.ToolResult, error) {
			return &client.ToolResult{Content: []client.Content{{Type: "text", Text: "fine"}}}, nil
		},
	}
	tf := &TestFile{Tests: []ToolTest{{Name: "should fail", Tool: "echo", ExpectError: true}}}

	results := NewRunner(time.Second, quietLogger()).Run(context.Background(), mock, tf)
	require.Len(t, results, 1)
	assert.Equal(t, compliance.StatusFailed, results[0].Status)
	assert.Equal(t, "an error result", results[0].Expected)
}
