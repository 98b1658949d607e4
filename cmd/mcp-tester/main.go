// Command mcp-tester diagnoses MCP servers: compliance runs, direct tool
// tests, LLM-judged evals, run history, and an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mcp-compliance-tester/internal/api"
	"github.com/mcp-compliance-tester/internal/client"
	"github.com/mcp-compliance-tester/internal/compliance"
	"github.com/mcp-compliance-tester/internal/compliance/checks"
	"github.com/mcp-compliance-tester/internal/config"
	"github.com/mcp-compliance-tester/internal/evals"
	"github.com/mcp-compliance-tester/internal/history"
	"github.com/mcp-compliance-tester/internal/llm"
	"github.com/mcp-compliance-tester/internal/report"
	"github.com/mcp-compliance-tester/internal/toolrunner"
)

const usage = `Usage: mcp-tester <command> [flags]

Commands:
  compliance   Run the compliance suite against a server
  tools        Run a YAML tool-test file against a server
  evals        Run LLM-judged evals against a server
  history      List past runs or show one report
  schema       Print an embedded JSON schema (server-config, test-file)
  serve        Start the HTTP API server
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "compliance":
		err = complianceCmd(os.Args[2:])
	case "tools":
		err = toolsCmd(os.Args[2:])
	case "evals":
		err = evalsCmd(os.Args[2:])
	case "history":
		err = historyCmd(os.Args[2:])
	case "schema":
		err = schemaCmd(os.Args[2:])
	case "serve":
		err = serveCmd(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		if failure, ok := err.(*exitError); ok {
			if failure.message != "" {
				fmt.Fprintln(os.Stderr, failure.message)
			}
			os.Exit(failure.code)
		}
		fmt.Fprintf(os.Stderr, "mcp-tester: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries a specific exit code past main's error handling.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.JSONFormatter{})
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
	return logger
}

// connectClient builds a client for a server definition. The caller owns the
// connection lifecycle.
func buildClient(def config.ServerDefinition, connectTimeout time.Duration, logger *logrus.Logger) client.Client {
	opts := client.ConnectOptions{
		Command:        def.Command,
		Args:           def.Args,
		Env:            def.Env,
		URL:            def.URL,
		Transport:      def.TransportType(),
		ConnectTimeout: connectTimeout,
	}
	return client.NewSDKClient(opts, logger)
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

type commonFlags struct {
	configFile  string
	serversFile string
	serverName  string
}

func registerCommonFlags(fs *flag.FlagSet, cf *commonFlags) {
	fs.StringVar(&cf.configFile, "config", "", "harness config file")
	fs.StringVar(&cf.serversFile, "servers", "mcp-servers.json", "server registry file")
	fs.StringVar(&cf.serverName, "server", "", "server name from the registry")
}

func resolveServer(cf commonFlags) (config.ServerDefinition, error) {
	sc, err := config.LoadServerConfig(cf.serversFile)
	if err != nil {
		return config.ServerDefinition{}, err
	}
	return sc.Select(cf.serverName)
}

func complianceCmd(args []string) error {
	fs := flag.NewFlagSet("compliance", flag.ExitOnError)
	var cf commonFlags
	registerCommonFlags(fs, &cf)
	format := fs.String("format", "", "output format: console, json, junit")
	verbose := fs.Bool("verbose", false, "include the detailed result breakdown")
	categories := fs.String("categories", "", "comma-separated category allow-list")
	timeout := fs.Duration("timeout", 0, "per-test timeout override")
	junitFile := fs.String("junit-xml", "", "also write a JUnit XML report to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mgr, err := config.NewManager(cf.configFile)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	if *categories != "" {
		var enabled []string
		for _, cat := range strings.Split(*categories, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				enabled = append(enabled, cat)
			}
		}
		cfg.Categories.Enabled = enabled
	}
	if *timeout > 0 {
		cfg.Timeouts.TestExecution = *timeout
	}
	logger := newLogger(cfg.LogLevel)

	def, err := resolveServer(cf)
	if err != nil {
		return err
	}

	tests := compliance.NewTestRegistry()
	features := compliance.NewFeatureRegistry()
	if err := checks.Register(tests, features); err != nil {
		return fmt.Errorf("registering checks: %w", err)
	}

	runner := compliance.NewRunner(tests, features,
		compliance.WithConfig(complianceConfig(cfg)),
		compliance.WithLogger(logger),
	)

	ctx, cancel := signalContext()
	defer cancel()

	c := buildClient(def, cfg.Timeouts.Connection, logger)
	healthReport := runner.Run(ctx, c)

	if cfg.History.Enabled {
		saveToHistory(ctx, cfg, healthReport, logger)
	}

	outFormat := cfg.Output.Format
	if *format != "" {
		outFormat = *format
	}
	if err := render(outFormat, *verbose || cfg.Output.Verbose, healthReport); err != nil {
		return err
	}
	if *junitFile != "" {
		if err := writeJUnitFile(*junitFile, healthReport); err != nil {
			return err
		}
	}

	if len(healthReport.Issues) > 0 {
		return &exitError{code: 1}
	}
	return nil
}

func complianceConfig(cfg *config.Config) compliance.Config {
	return compliance.Config{
		ConnectionTimeout:    cfg.Timeouts.Connection,
		TestTimeout:          cfg.Timeouts.TestExecution,
		OverallTimeout:       cfg.Timeouts.Overall,
		PaceLimit:            cfg.Timeouts.PaceLimit,
		EnabledCategories:    cfg.EnabledCategories(),
		UseSDKErrorDetection: cfg.Experimental.UseSDKErrorDetection,
	}
}

func saveToHistory(ctx context.Context, cfg *config.Config, r *compliance.HealthReport, logger *logrus.Logger) {
	store, err := history.NewStore(cfg.History.Path, logger)
	if err != nil {
		logger.WithError(err).Warn("History store unavailable; run not saved")
		return
	}
	defer store.Close()

	if prev, err := store.PreviousScore(ctx, r.Server.Name); err == nil {
		delta := r.Summary.OverallScore - prev
		logger.WithFields(logrus.Fields{
			"previous": prev,
			"current":  r.Summary.OverallScore,
			"delta":    delta,
		}).Info("Score change since last run")
	}
	if err := store.Save(ctx, r); err != nil {
		logger.WithError(err).Warn("Saving run to history failed")
	}
}

// writeJUnitFile writes the JUnit rendering alongside whatever the primary
// format printed to stdout.
func writeJUnitFile(path string, r *compliance.HealthReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating junit report file: %w", err)
	}
	defer f.Close()
	if err := (&report.JUnitFormatter{}).Write(f, r); err != nil {
		return fmt.Errorf("writing junit report: %w", err)
	}
	return nil
}

func render(format string, verbose bool, r *compliance.HealthReport) error {
	switch format {
	case "", "console":
		f := &report.ConsoleFormatter{Verbose: verbose}
		return f.Write(os.Stdout, r)
	case "json":
		f := &report.JSONFormatter{Indent: true}
		return f.Write(os.Stdout, r)
	case "junit":
		f := &report.JUnitFormatter{}
		return f.Write(os.Stdout, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func toolsCmd(args []string) error {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	var cf commonFlags
	registerCommonFlags(fs, &cf)
	file := fs.String("file", "", "tool-test YAML file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("tools: -file is required")
	}

	mgr, err := config.NewManager(cf.configFile)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger := newLogger(cfg.LogLevel)

	def, err := resolveServer(cf)
	if err != nil {
		return err
	}
	tf, err := toolrunner.Load(*file)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := buildClient(def, cfg.Timeouts.Connection, logger)
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer c.Disconnect()

	results := toolrunner.NewRunner(cfg.Timeouts.TestExecution, logger).Run(ctx, c, tf)
	return printResults(results)
}

func evalsCmd(args []string) error {
	fs := flag.NewFlagSet("evals", flag.ExitOnError)
	var cf commonFlags
	registerCommonFlags(fs, &cf)
	file := fs.String("file", "", "eval YAML file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("evals: -file is required")
	}

	mgr, err := config.NewManager(cf.configFile)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger := newLogger(cfg.LogLevel)

	def, err := resolveServer(cf)
	if err != nil {
		return err
	}
	ef, err := evals.Load(*file)
	if err != nil {
		return err
	}
	judge, err := llm.NewJudge(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		RateLimit: cfg.LLM.RateLimit,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := buildClient(def, cfg.Timeouts.Connection, logger)
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer c.Disconnect()

	results := evals.NewRunner(judge, cfg.Timeouts.TestExecution, logger).Run(ctx, c, ef)
	return printResults(results)
}

// printResults renders a flat result list and returns the exit-code error if
// anything failed.
func printResults(results []*compliance.DiagnosticResult) error {
	failed := 0
	for _, r := range results {
		glyph := "✓"
		switch r.Status {
		case compliance.StatusFailed:
			glyph = "✗"
			failed++
		case compliance.StatusSkipped:
			glyph = "○"
		}
		fmt.Printf("%s %s - %s (%dms)\n", glyph, r.TestName, r.Message, r.DurationMS)
	}
	fmt.Printf("\n%d tests, %d failed\n", len(results), failed)
	if failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}

func historyCmd(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configFile := fs.String("config", "", "harness config file")
	show := fs.String("show", "", "run id to print as JSON")
	limit := fs.Int("limit", 20, "number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mgr, err := config.NewManager(*configFile)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger := newLogger(cfg.LogLevel)

	store, err := history.NewStore(cfg.History.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if *show != "" {
		r, err := store.Get(ctx, *show)
		if err != nil {
			return err
		}
		f := &report.JSONFormatter{Indent: true}
		return f.Write(os.Stdout, r)
	}

	records, err := store.List(ctx, *limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %-24s score %3d  %-8s %s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.ServerName, rec.Score, rec.Status, rec.ID)
	}
	return nil
}

func schemaCmd(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mcp-tester schema <server-config|test-file>")
	}
	s, err := config.SchemaJSON(args[0])
	if err != nil {
		return err
	}
	fmt.Println(s)
	return nil
}

func serveCmd(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "", "harness config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mgr, err := config.NewManager(*configFile)
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger := newLogger(cfg.LogLevel)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.Path, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	run := func(ctx context.Context, def config.ServerDefinition) (*compliance.HealthReport, error) {
		tests := compliance.NewTestRegistry()
		features := compliance.NewFeatureRegistry()
		if err := checks.Register(tests, features); err != nil {
			return nil, fmt.Errorf("registering checks: %w", err)
		}
		runner := compliance.NewRunner(tests, features,
			compliance.WithConfig(complianceConfig(cfg)),
			compliance.WithLogger(logger),
		)
		return runner.Run(ctx, buildClient(def, cfg.Timeouts.Connection, logger)), nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	server := api.NewServer(cfg.API, store, run, logger)
	return server.Start(ctx)
}
