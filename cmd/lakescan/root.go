package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/paveg/lakescan"
	"github.com/paveg/lakescan/internal/config"
	"github.com/paveg/lakescan/internal/logging"
	"github.com/paveg/lakescan/internal/monitoring"
	"github.com/paveg/lakescan/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// app carries what every subcommand shares.
type app struct {
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs // dataset reads
	outFS  afero.Fs // --out writes

	configPath  string
	logLevel    string
	logFormat   string
	workers     int
	metricsFile string

	cfg     config.Config
	logger  *slog.Logger
	metrics *monitoring.Collector
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, fs: afero.NewOsFs(), outFS: afero.NewOsFs()}
	return a.rootCmd()
}

func (a *app) outputFS() afero.Fs {
	if a.outFS == nil {
		return afero.NewOsFs()
	}
	return a.outFS
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lakescan",
		Short:         "Scan and aggregate partitioned Parquet datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.writeMetrics()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "configuration file (.json, .yaml or .yml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	flags.IntVar(&a.workers, "workers", 0, "concurrent file scans (default: configuration or number of CPUs)")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(a.filesCmd(), a.schemaCmd(), a.queryCmd(), a.versionCmd())
	return root
}

// setup resolves configuration: defaults, then the config file, then
// LAKESCAN_* variables, then flags.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.NewConfig()
	if a.configPath != "" {
		loaded, err := config.LoadFromFile(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg = config.LoadFromEnv(cfg)
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}
	if cmd.Flags().Changed("workers") {
		cfg.WorkerPoolSize = a.workers
	}
	if a.metricsFile != "" {
		cfg.MetricsCollection = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.New(a.stderr, logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	a.metrics = monitoring.NewCollector(cfg.MetricsCollection)
	return nil
}

func (a *app) open(ctx context.Context, root string) (*lakescan.Dataset, error) {
	return lakescan.Open(ctx, root,
		lakescan.WithFS(a.fs),
		lakescan.WithConfig(a.cfg),
		lakescan.WithLogger(a.logger),
		lakescan.WithMetrics(a.metrics),
	)
}

func (a *app) writeMetrics() error {
	if a.metricsFile == "" || a.metrics == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.metricsFile, a.metrics.Registry()); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprint(a.stdout, version.Info().String())
			return err
		},
	}
}
