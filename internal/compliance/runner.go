package compliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mcp-compliance-tester/internal/client"
)

// RunnerState tracks the runner through its lifecycle. The runner is
// single-shot: one Run per Runner, observed via State while in flight.
type RunnerState string

const (
	StateIdle                RunnerState = "idle"
	StateConnecting          RunnerState = "connecting"
	StateCapabilityDetection RunnerState = "capability_detection"
	StateExecuting           RunnerState = "executing"
	StateAggregating         RunnerState = "aggregating"
	StateDone                RunnerState = "done"
	StateConnectionFailed    RunnerState = "connection_failed"
)

// connectionTestName is the synthetic diagnostic reported when the server
// cannot be reached at all.
const connectionTestName = "System: Connection"

// Runner drives one compliance run: connect, detect capabilities, execute the
// applicable tests sequentially, and fold the results into a health report.
// Execution never aborts on a failing test; every outcome becomes a result.
type Runner struct {
	tests    *TestRegistry
	features *FeatureRegistry
	detector *CapabilityDetector
	reporter *ReportGenerator
	config   Config
	logger   *logrus.Logger

	mu    sync.RWMutex
	state RunnerState
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConfig overrides the default runner configuration.
func WithConfig(cfg Config) RunnerOption {
	return func(r *Runner) { r.config = cfg }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *logrus.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner over the given registries.
func NewRunner(tests *TestRegistry, features *FeatureRegistry, opts ...RunnerOption) *Runner {
	r := &Runner{
		tests:    tests,
		features: features,
		config:   DefaultConfig(),
		logger:   logrus.New(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.detector = NewCapabilityDetector(r.logger)
	r.reporter = NewReportGenerator(features, r.logger)
	return r
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() RunnerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Runner) setState(s RunnerState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.logger.WithField("state", s).Debug("Runner state changed")
}

// Run executes the full compliance suite against the server behind c and
// returns its health report. The report is always non-nil; a server that
// cannot be reached yields a report with a single connection failure.
func (r *Runner) Run(ctx context.Context, c client.Client) *HealthReport {
	runID := uuid.New().String()
	started := time.Now()
	log := r.logger.WithField("runId", runID)
	log.WithField("tests", r.tests.Len()).Info("Starting compliance run")

	r.setState(StateConnecting)
	if err := r.connect(ctx, c); err != nil {
		r.setState(StateConnectionFailed)
		log.WithError(err).Error("Connection to server failed")
		return r.connectionFailureReport(runID, c, err, started)
	}
	defer func() {
		if err := c.Disconnect(); err != nil {
			log.WithError(err).Debug("Disconnect failed")
		}
	}()

	r.setState(StateCapabilityDetection)
	caps := r.detector.Detect(ctx, c)
	log.WithField("capabilities", caps.Sorted()).Info("Capabilities detected")

	r.setState(StateExecuting)
	results := r.execute(ctx, c, caps, log)

	r.setState(StateAggregating)
	report := r.reporter.Generate(runID, serverInfoOf(c), caps, results, started, time.Now())

	if r.config.OverallTimeout > 0 {
		if elapsed := time.Since(started); elapsed > r.config.OverallTimeout {
			log.WithFields(logrus.Fields{
				"elapsed": elapsed.String(),
				"budget":  r.config.OverallTimeout.String(),
			}).Warn("Run exceeded its overall time budget")
		}
	}

	r.setState(StateDone)
	log.WithFields(logrus.Fields{
		"score":    report.Summary.OverallScore,
		"status":   report.Summary.Status,
		"duration": time.Since(started).String(),
	}).Info("Compliance run finished")
	return report
}

func (r *Runner) connect(ctx context.Context, c client.Client) error {
	connectCtx := ctx
	if r.config.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, r.config.ConnectionTimeout)
		defer cancel()
	}
	return c.Connect(connectCtx)
}

// execute runs every enabled test in registration order: applicable tests are
// guarded with a timeout and panic recovery, inapplicable ones emit skip
// results. Pacing, when configured, throttles only real executions.
func (r *Runner) execute(ctx context.Context, c client.Client, caps CapabilitySet, log *logrus.Entry) []*DiagnosticResult {
	tc := &TestContext{
		Client:     c,
		Config:     r.config,
		Inventory:  NewInventory(c),
		Classifier: NewErrorClassifier(r.config.TestTimeout, r.logger),
	}

	var limiter *rate.Limiter
	if r.config.PaceLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.config.PaceLimit), 1)
	}

	var results []*DiagnosticResult
	for _, t := range r.tests.All() {
		if !r.config.CategoryEnabled(t.Category) {
			continue
		}
		if t.RequiredCapability != "" && !caps.Has(t.RequiredCapability) {
			results = append(results, skipResult(t))
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				log.WithError(err).Warn("Run cancelled while pacing; remaining tests skipped")
				break
			}
		}
		results = append(results, r.runOne(ctx, t, tc, log))
	}
	return results
}

// runOne executes a single diagnostic. Whatever happens inside the test
// (error return, nil result, timeout, panic) comes back as exactly one
// result.
func (r *Runner) runOne(ctx context.Context, t *DiagnosticTest, tc *TestContext, log *logrus.Entry) *DiagnosticResult {
	started := time.Now()

	testCtx := ctx
	if r.config.TestTimeout > 0 {
		var cancel context.CancelFunc
		testCtx, cancel = context.WithTimeout(ctx, r.config.TestTimeout)
		defer cancel()
	}

	type outcome struct {
		result *DiagnosticResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("test panicked: %v", rec)}
			}
		}()
		res, err := t.Execute(testCtx, tc)
		done <- outcome{result: res, err: err}
	}()

	var result *DiagnosticResult
	select {
	case out := <-done:
		switch {
		case out.err != nil:
			result = failResult(t, fmt.Sprintf("Test execution failed: %v", out.err))
		case out.result == nil:
			result = failResult(t, "Test returned no result")
		default:
			result = out.result
		}
	case <-testCtx.Done():
		result = failResult(t, fmt.Sprintf("Test did not complete within %s", r.config.TestTimeout))
		result.IssueType = IssuePerformanceIssue
	}

	result.DurationMS = time.Since(started).Milliseconds()
	log.WithFields(logrus.Fields{
		"test":     t.Name,
		"status":   result.Status,
		"duration": result.DurationMS,
	}).Debug("Test executed")
	return result
}

func skipResult(t *DiagnosticTest) *DiagnosticResult {
	result := resultFor(t)
	result.Status = StatusSkipped
	result.Message = fmt.Sprintf("Server does not support the %s capability", t.RequiredCapability)
	return result
}

func failResult(t *DiagnosticTest, message string) *DiagnosticResult {
	result := resultFor(t)
	result.Status = StatusFailed
	result.Message = message
	result.IssueType = IssueCriticalFailure
	return result
}

// connectionFailureReport builds the degenerate report for a server that
// never accepted a connection: one critical failure and nothing else.
func (r *Runner) connectionFailureReport(runID string, c client.Client, err error, started time.Time) *HealthReport {
	result := &DiagnosticResult{
		TestName:  connectionTestName,
		Category:  "base-protocol",
		Status:    StatusFailed,
		Severity:  SeverityCritical,
		IssueType: IssueCriticalFailure,
		Message:   fmt.Sprintf("Failed to connect to server: %v", err),
		Recommendations: []string{
			"Verify the server process is running and reachable",
			"Check the transport configuration (command, URL, port)",
		},
	}
	return r.reporter.Generate(runID, serverInfoOf(c), nil, []*DiagnosticResult{result}, started, time.Now())
}

// serverInfoOf reads whatever identity the client can provide; a server that
// never connected yields "unknown".
func serverInfoOf(c client.Client) ServerInfo {
	info := ServerInfo{Name: "unknown", Version: "unknown", Transport: c.TransportType()}
	if v := c.GetServerVersion(); v != nil {
		if v.Name != "" {
			info.Name = v.Name
		}
		if v.Version != "" {
			info.Version = v.Version
		}
	}
	info.ProtocolVersion = c.ProtocolVersion()
	return info
}
