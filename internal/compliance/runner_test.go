package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-compliance-tester/internal/client"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newRunner(tests *TestRegistry, cfg Config) *Runner {
	return NewRunner(tests, nil, WithConfig(cfg), WithLogger(quietLogger()))
}

func TestConnectionFailureShortCircuits(t *testing.T) {
	tests := NewTestRegistry()
	executed := 0
	tt := newTest("never-runs", "base-protocol", "")
	tt.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
		executed++
		return &DiagnosticResult{Status: StatusPassed}, nil
	}
	tests.MustRegister(tt)

	mock := &client.MockClient{
		ConnectFunc: func(ctx context.Context) error {
			return errors.New("dial tcp 127.0.0.1:9999: connect: ECONNREFUSED")
		},
	}

	runner := newRunner(tests, DefaultConfig())
	report := runner.Run(context.Background(), mock)

	require.Len(t, report.Results, 1)
	only := report.Results[0]
	assert.Equal(t, "System: Connection", only.TestName)
	assert.Equal(t, SeverityCritical, only.Severity)
	assert.Equal(t, StatusFailed, only.Status)
	assert.Equal(t, 1, report.Summary.TestResults.Total)

	assert.Equal(t, 0, executed)
	assert.Equal(t, 0, mock.CallCount("GetServerCapabilities"))
	assert.Equal(t, 0, mock.CallCount("ListTools"))
	assert.Equal(t, StateConnectionFailed, runner.State())
}

func TestSkippedTestsNeverExecuteAndCiteCapability(t *testing.T) {
	tests := NewTestRegistry()
	executed := 0
	tt := newTest("resources-only", "server-features", CapabilityResources)
	tt.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
		executed++
		return &DiagnosticResult{Status: StatusPassed}, nil
	}
	tests.MustRegister(tt)

	// Server declares only tools.
	mock := &client.MockClient{Capabilities: map[string]any{"tools": map[string]any{}}}

	report := newRunner(tests, DefaultConfig()).Run(context.Background(), mock)

	assert.Equal(t, 0, executed)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Contains(t, res.Message, "resources")
	assert.Zero(t, res.DurationMS)
	assert.Empty(t, res.IssueType)
}

func TestRunnerSurvivesMisbehavingTests(t *testing.T) {
	tests := NewTestRegistry()

	panicking := newTest("panics", "base-protocol", "")
	panicking.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
		panic("boom")
	}
	erroring := newTest("errors", "base-protocol", "")
	erroring.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
		return nil, errors.New("exploded")
	}
	nilResult := newTest("nil-result", "base-protocol", "")
	nilResult.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
		return nil, nil
	}
	passing := newTest("passes", "base-protocol", "")
	passing.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
		r := &DiagnosticResult{TestName: "passes", Category: "base-protocol", Severity: SeverityCritical}
		r.Status = StatusPassed
		return r, nil
	}
	skippedByCap := newTest("needs-roots", "server-features", CapabilityRoots)

	tests.MustRegister(panicking, erroring, nilResult, passing, skippedByCap)

	mock := &client.MockClient{Capabilities: map[string]any{"tools": true}}
	report := newRunner(tests, DefaultConfig()).Run(context.Background(), mock)

	// applicable(4) + skipped(1)
	require.Len(t, report.Results, 5)
	byName := make(map[string]*DiagnosticResult)
	for _, r := range report.Results {
		byName[r.TestName] = r
	}
	assert.Equal(t, StatusFailed, byName["panics"].Status)
	assert.Equal(t, StatusFailed, byName["errors"].Status)
	assert.Equal(t, StatusFailed, byName["nil-result"].Status)
	assert.Equal(t, StatusPassed, byName["passes"].Status)
	assert.Equal(t, StatusSkipped, byName["needs-roots"].Status)
}

func TestPerTestTimeoutConvertsToFailure(t *testing.T) {
	tests := NewTestRegistry()
	hung := newTest("hangs", "base-protocol", "")
	hung.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
		time.Sleep(5 * time.Second)
		return &DiagnosticResult{Status: StatusPassed}, nil
	}
	tests.MustRegister(hung)

	cfg := DefaultConfig()
	cfg.TestTimeout = 50 * time.Millisecond

	mock := &client.MockClient{Capabilities: map[string]any{"tools": true}}
	report := newRunner(tests, cfg).Run(context.Background(), mock)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, IssuePerformanceIssue, res.IssueType)
	assert.Equal(t, "hangs", res.TestName)
	assert.Equal(t, SeverityCritical, res.Severity)
}

func TestCategoryAllowListFiltersExecution(t *testing.T) {
	tests := NewTestRegistry()
	ran := make(map[string]bool)
	for _, spec := range []struct{ name, category string }{
		{"base", "base-protocol"},
		{"life", "lifecycle"},
	} {
		spec := spec
		tt := newTest(spec.name, spec.category, "")
		tt.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
			ran[spec.name] = true
			return &DiagnosticResult{TestName: spec.name, Category: spec.category, Status: StatusPassed}, nil
		}
		tests.MustRegister(tt)
	}

	cfg := DefaultConfig()
	cfg.EnabledCategories = []string{"lifecycle"}

	mock := &client.MockClient{Capabilities: map[string]any{"tools": true}}
	report := newRunner(tests, cfg).Run(context.Background(), mock)

	assert.False(t, ran["base"])
	assert.True(t, ran["life"])
	require.Len(t, report.Results, 1)
}

func TestRunnerDisconnectsBestEffort(t *testing.T) {
	tests := NewTestRegistry()
	mock := &client.MockClient{
		Capabilities:   map[string]any{"tools": true},
		DisconnectFunc: func() error { return errors.New("already gone") },
	}

	runner := newRunner(tests, DefaultConfig())
	report := runner.Run(context.Background(), mock)
	require.NotNil(t, report)
	assert.Equal(t, 1, mock.CallCount("Disconnect"))
	assert.Equal(t, StateDone, runner.State())
}

func TestPacingThrottlesExecution(t *testing.T) {
	tests := NewTestRegistry()
	for _, name := range []string{"first", "second", "third"} {
		tt := newTest(name, "base-protocol", "")
		tt.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
			return &DiagnosticResult{Status: StatusPassed}, nil
		}
		tests.MustRegister(tt)
	}

	cfg := DefaultConfig()
	cfg.PaceLimit = 20 // 50ms between executions

	mock := &client.MockClient{Capabilities: map[string]any{"tools": true}}
	started := time.Now()
	report := newRunner(tests, cfg).Run(context.Background(), mock)

	require.Len(t, report.Results, 3)
	// First execution is immediate, the next two wait for the limiter.
	assert.GreaterOrEqual(t, time.Since(started), 80*time.Millisecond)
}

func TestDurationBackfilled(t *testing.T) {
	tests := NewTestRegistry()
	tt := newTest("timed", "base-protocol", "")
	tt.Execute = func(ctx context.Context, tc *TestContext) (*DiagnosticResult, error) {
		time.Sleep(20 * time.Millisecond)
		return &DiagnosticResult{TestName: "timed", Category: "base-protocol", Status: StatusPassed}, nil
	}
	tests.MustRegister(tt)

	mock := &client.MockClient{Capabilities: map[string]any{"tools": true}}
	report := newRunner(tests, DefaultConfig()).Run(context.Background(), mock)

	require.Len(t, report.Results, 1)
	assert.GreaterOrEqual(t, report.Results[0].DurationMS, int64(20))
}
