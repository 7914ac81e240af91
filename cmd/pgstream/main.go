package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/pgstream/pkg/config"
	"github.com/ajitpratap0/pgstream/pkg/connector/sources/postgresql"
	"github.com/ajitpratap0/pgstream/pkg/streamerrors"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(viper.New())
}

// buildRootCommand wires every command to v, which resolves flags and
// PGSTREAM_ environment variables.
func buildRootCommand(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix("PGSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "pgstream",
		Short: "pgstream - typed bulk export from PostgreSQL",
		Long: `pgstream exports PostgreSQL tables and queries with COPY ... (FORMAT BINARY),
spreading the work over one connection per assignment.

Every flag can also be set through a PGSTREAM_ environment variable, for
example PGSTREAM_WORKERS=8 or PGSTREAM_METRICS_ADDR=:9187.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to export configuration YAML file (required)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pgstream v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate an export configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			assignments, err := postgresql.AssignmentsFromConfig(cfg)
			if err != nil {
				return err
			}
			relations := 0
			for _, a := range assignments {
				relations += len(a.Relations)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d assignment(s), %d relation(s), %d column(s)\n",
				cfg.Name, len(assignments), relations, len(cfg.Columns))
			return nil
		},
	})

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Run an export",
		Long: `Export every relation of every assignment as JSON, one object per row.

Example:
  pgstream export --config weather.yaml --output weather.jsonl.zst --compression zstd`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), cfg)
		},
	}
	flags := exportCmd.Flags()
	flags.StringP("output", "o", "", "Output file, - for stdout")
	flags.String("format", "", "Output format (jsonl, array)")
	flags.String("compression", "", "Output compression (none, gzip, snappy, lz4, zstd, s2, deflate)")
	flags.Int("workers", 0, "Number of assignments exported concurrently")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.Duration("timeout", 0, "Abort the export after this long")
	for _, name := range []string{"output", "format", "compression", "workers", "log-level", "metrics-addr", "timeout"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	root.AddCommand(exportCmd)

	return root
}

// loadConfig reads the configuration file, applies flag and environment
// overrides and validates the result.
func loadConfig(v *viper.Viper) (*config.ExportConfig, error) {
	path := v.GetString("config")
	if path == "" {
		return nil, streamerrors.New(streamerrors.ErrorTypeConfig, "a configuration file is required (--config or PGSTREAM_CONFIG)")
	}

	return config.LoadExport(path, func(cfg *config.ExportConfig) { applyOverrides(cfg, v) })
}

func applyOverrides(cfg *config.ExportConfig, v *viper.Viper) {
	if v.IsSet("output") {
		cfg.Output.Path = v.GetString("output")
	}
	if v.IsSet("format") {
		cfg.Output.Format = v.GetString("format")
	}
	if v.IsSet("compression") {
		cfg.Output.Compression = v.GetString("compression")
	}
	if v.IsSet("workers") {
		cfg.Performance.Workers = v.GetInt("workers")
	}
	if v.IsSet("log-level") {
		cfg.Observability.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("metrics-addr") {
		cfg.Observability.EnableMetrics = true
		cfg.Observability.MetricsAddr = v.GetString("metrics-addr")
	}
	if v.IsSet("timeout") {
		cfg.Timeouts.Export = v.GetDuration("timeout")
	}
}
