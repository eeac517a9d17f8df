package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	app "github.com/okian/ivscan/internal/app"
	"github.com/okian/ivscan/internal/config"
	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/pkg/logger"
	"github.com/okian/ivscan/pkg/metrics"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli holds the flag values and the state built before a subcommand runs.
type cli struct {
	out    io.Writer
	errOut io.Writer

	// Global flags
	configFile  string
	logLevel    string
	logFormat   string
	locale      string
	workers     int
	metricsFile string

	cfg  *config.Config
	refs *refdata.Store
	log  logger.Logger
}

// newRootCmd builds the command tree writing results to out and logs to errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "ivscan",
		Short: "Recover hidden IVs from creature scanner transcripts",
		Long: `ivscan reads the "Received values:" lines a screen reader logs for each
scanned creature, works out every hidden attack/defense/stamina triple that
matches the displayed CP and HP, and ranks the readings by IV percentage.

Configuration is layered: defaults, then the YAML file named by --config or
IVSCAN_CONFIG, then IVSCAN_* environment variables, then flags.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "YAML configuration file (default $"+config.EnvFile+")")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&c.locale, "locale", "", "species name locale: en or fr")
	pf.IntVar(&c.workers, "workers", 0, "evaluation workers (default one per CPU)")
	pf.StringVar(&c.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		newEvaluateCmd(c),
		newDetailCmd(c),
		newSpeciesCmd(c),
		newSelfcheckCmd(c),
	)
	// Cobra skips post-run hooks when RunE fails; metrics are written either way.
	for _, sub := range root.Commands() {
		run := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) (err error) {
			defer func() { err = errors.Join(err, c.teardown(cmd, args)) }()
			return run(cmd, args)
		}
	}
	return root
}

// setup loads configuration, applies flag overrides and prepares logging and
// reference data.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	path := c.configFile
	if path == "" {
		path = os.Getenv(config.EnvFile)
	}
	cfg, err := config.Read(ctx, path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = c.logFormat
	}
	if flags.Changed("locale") {
		cfg.NameLocale = c.locale
	}
	if flags.Changed("workers") {
		cfg.WorkerCount = c.workers
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = c.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	if err := logger.InitWithOptions(c.errOut, cfg.LogFormat); err != nil {
		return err
	}
	c.log = logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if cfg.ReferenceFile != "" {
		c.refs, err = refdata.Load(ctx, cfg.ReferenceFile)
	} else {
		c.refs, err = refdata.Default()
	}
	if err != nil {
		return fmt.Errorf("load reference data: %w", err)
	}

	c.log.Debug(ctx, "configuration loaded",
		logger.String("config", path),
		logger.String("locale", cfg.NameLocale),
		logger.Int("workers", cfg.WorkerCount),
		logger.Int("species", c.refs.Len()),
	)
	return nil
}

// teardown writes the metrics textfile when one is configured.
func (c *cli) teardown(cmd *cobra.Command, _ []string) error {
	if c.cfg == nil || c.cfg.MetricsFile == "" {
		return nil
	}
	updateSystemMetrics()
	if err := metrics.WriteTextfile(c.cfg.MetricsFile); err != nil {
		return err
	}
	c.log.Debug(cmd.Context(), "metrics written", logger.String("file", c.cfg.MetricsFile))
	return nil
}

// service creates and starts a service from the loaded configuration.
func (c *cli) service(ctx context.Context) (*app.Service, error) {
	svc := app.New(
		app.WithLogger(c.log),
		app.WithReferenceData(c.refs),
		app.WithLocale(c.cfg.NameLocale),
		app.WithWorkerCount(c.cfg.WorkerCount),
		app.WithQueueSize(c.cfg.QueueSize),
		app.WithCacheSize(c.cfg.CacheSize),
		app.WithDedupeSize(c.cfg.DedupeSize),
		app.WithMaxResolveDistance(c.cfg.MaxResolveDistance),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("start service: %w", err)
	}
	return svc, nil
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// errInterrupted marks a run stopped by a signal.
var errInterrupted = errors.New("interrupted")
