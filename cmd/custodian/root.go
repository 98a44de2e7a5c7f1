package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/config"
	"lexsign/custodian/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "custodian",
	Short: "Custodian - retention and compliance for signed documents",
	Long: `Custodian enforces plan-driven retention for signed documents and serves
compliance reads over the tamper-evident audit log.

Retention commands default to a dry run. Deleting requires --execute plus
RETENTION_ALLOW_DELETE=true and RETENTION_CONFIRM=DELETE in the environment.

Configuration is read from --config (YAML), then overridden by CUSTODIAN_*
environment variables. Without --config, defaults and the environment apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: built-in defaults plus environment)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig loads the configuration and installs the default logger.
// Logs go to stderr so stdout carries only command output.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("--config", err.Error())
	}
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, cmd.ErrOrStderr()))
	if err != nil {
		return nil, cli.NewConfigError("--log-level", err.Error())
	}
	slog.SetDefault(logger)
	return cfg, nil
}
