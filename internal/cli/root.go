// Package cli implements the ruleforge command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ruleforge/ruleforge/internal/config"
	"github.com/ruleforge/ruleforge/internal/metrics"
	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability"
	"github.com/ruleforge/ruleforge/internal/observability/logging"
	otelobs "github.com/ruleforge/ruleforge/internal/observability/otel"
	"github.com/ruleforge/ruleforge/internal/observability/receipt"
	"github.com/ruleforge/ruleforge/internal/version"
)

// Exit codes
const (
	ExitOK    = 0
	ExitFail  = 1 // runtime failure, drift, failed verification
	ExitUsage = 2 // bad flags, profile or input
)

const shutdownTimeout = 5 * time.Second

// ExitError carries an exit code out of a command. A nil Err exits silently.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// globalFlags are shared by every command.
type globalFlags struct {
	logFormat    string
	logLevel     string
	logOutput    string
	otel         bool
	otelEndpoint string
	otelProtocol string
	otelInsecure bool
	receiptPath  string
	receiptMode  string
	metricsFile  string
	profile      string
	envFile      string
}

// app holds per-invocation state set up before a command runs.
type app struct {
	args    []string
	flags   globalFlags
	logger  logging.Logger
	tracing *otelobs.Handle
	receipt receipt.Writer
	metrics *metrics.Collector
	cfg     *config.Config
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ruleforge",
		Short: "Synthesize and merge AppLocker rules from scan artifacts",
		Long: `ruleforge turns file inventories into AppLocker allow-list rules.

It prefers publisher rules for signed files, falls back to hash rules,
merges the result into an existing policy without duplicates, and scores
the policy's security posture.`,
		Version:           version.BuildVersion(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.logFormat, "log-format", logging.FormatPretty, "Diagnostic log format: pretty or jsonl")
	pf.StringVar(&a.flags.logLevel, "log-level", logging.LevelInfo, "Diagnostic log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logOutput, "log-output", "stderr", "Diagnostic log destination: stderr, stdout or a file path")
	pf.BoolVar(&a.flags.otel, "otel", false, "Export OpenTelemetry traces")
	pf.StringVar(&a.flags.otelEndpoint, "otel-endpoint", "", "OTLP endpoint (default from OTEL_EXPORTER_OTLP_ENDPOINT)")
	pf.StringVar(&a.flags.otelProtocol, "otel-protocol", otelobs.ProtocolHTTP, "OTLP protocol: otlphttp or otlpgrpc")
	pf.BoolVar(&a.flags.otelInsecure, "otel-insecure", false, "Disable TLS for the OTLP exporter")
	pf.StringVar(&a.flags.receiptPath, "receipt", "", "Write an audit receipt to this path")
	pf.StringVar(&a.flags.receiptMode, "receipt-mode", string(receipt.ModeOverwrite), "Receipt write mode: overwrite or append")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	pf.StringVar(&a.flags.profile, "profile", "", "Generation profile YAML")
	pf.StringVar(&a.flags.envFile, "env-file", config.DefaultEnvFile, "Optional dotenv file with RULEFORGE_* overrides")

	root.AddCommand(
		newGenerateCmd(a),
		newMergeCmd(a),
		newHealthCmd(a),
		newDiffCmd(a),
		newRuleCmd(a),
		newKeygenCmd(),
		newSignCmd(a),
		newVerifyCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup wires logging, tracing, receipts and metrics into the command context.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	ctx := observability.WithOpID(cmd.Context())

	logger, err := logging.NewLogger(logging.Config{
		Format: a.flags.logFormat,
		Level:  a.flags.logLevel,
		Output: a.flags.logOutput,
	})
	if err != nil {
		return usageError(fmt.Errorf("invalid logging flags: %w", err))
	}
	a.logger = logger
	ctx = logging.WithLogger(ctx, logger)

	if a.flags.otel {
		cfg := otelobs.DefaultConfig()
		cfg.Enabled = true
		cfg.Endpoint = a.flags.otelEndpoint
		cfg.Protocol = a.flags.otelProtocol
		cfg.Insecure = a.flags.otelInsecure
		h, err := otelobs.Init(ctx, cfg)
		if err != nil {
			return usageError(fmt.Errorf("failed to initialize tracing: %w", err))
		}
		a.tracing = h
		ctx = otelobs.WithHandle(ctx, h)
	}

	if a.flags.receiptPath != "" {
		mode, err := receipt.ParseMode(a.flags.receiptMode)
		if err != nil {
			return usageError(err)
		}
		w, err := receipt.NewWriter(a.flags.receiptPath, mode)
		if err != nil {
			return err
		}
		a.receipt = w
		ctx = receipt.WithWriter(ctx, w)
	}

	if a.flags.metricsFile != "" {
		a.metrics = metrics.NewCollector()
		ctx = metrics.WithCollector(ctx, a.metrics)
	}

	cmd.SetContext(ctx)
	return nil
}

// config loads the profile once per invocation.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.flags.profile, a.flags.envFile)
	if err != nil {
		return nil, usageError(err)
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) shutdown() {
	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.flags.metricsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	if a.receipt != nil {
		_ = a.receipt.Close()
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.tracing.Shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// Run executes ruleforge with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{args: args}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.shutdown()
	return exitCode(err, stderr)
}

// Execute runs the CLI against the process arguments.
func Execute() int {
	return Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return ExitOK
	}

	code := ExitFail
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		code = exitErr.Code
		if exitErr.Err == nil {
			return code
		}
	case errors.Is(err, models.ErrConfiguration), errors.Is(err, models.ErrInvalidInput):
		code = ExitUsage
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return code
}
