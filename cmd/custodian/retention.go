package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/config"
	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/retention"
	"lexsign/custodian/pkg/telemetry/metrics"
)

// exitInterrupted is the conventional status after SIGINT.
const exitInterrupted = 130

var retentionRunFlags struct {
	scope           scopeFlags
	dryRun          bool
	execute         bool
	now             string
	maxDocs         int
	softBufferDays  int
	metricsTextfile string
}

var retentionRecoverFlags struct {
	execute         bool
	now             string
	olderThan       time.Duration
	maxDocs         int
	metricsTextfile string
}

var retentionRunsFlags struct {
	limit  int
	output string
}

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Apply plan retention to signed documents",
	Long: `Find documents past their plan retention window and delete them together
with their storage objects, keeping the audit chain verifiable.

Subcommands:
  run       - One batch over every scope, or one tenant or firm
  recover   - Finish documents stuck between claim and delete
  schedule  - Run batches on the configured cron schedule
  runs      - List recent run records`,
}

var retentionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one retention batch",
	Long: `Run one retention batch and print its summary as JSON.

The default is a dry run that only reports candidates. --execute deletes,
and additionally requires RETENTION_ALLOW_DELETE=true and
RETENTION_CONFIRM=DELETE in the environment.

The exit code is non-zero when an executed run recorded document errors.

Examples:
  # Preview every scope
  custodian retention run

  # Preview one tenant as of a fixed instant
  custodian retention run --tenant t-1 --now 2025-06-01T00:00:00Z

  # Delete for one firm and publish metrics for node_exporter
  RETENTION_ALLOW_DELETE=true RETENTION_CONFIRM=DELETE \
    custodian retention run --firm acme --execute \
    --metrics-textfile /var/lib/node_exporter/custodian.prom`,
	RunE: runRetention,
}

var retentionRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Finish documents stuck in pending delete",
	Long: `Retry documents whose retention claim is older than --older-than. A claim
is never released: recovery either completes the delete or records the
error again for the next pass.`,
	RunE: recoverRetention,
}

var retentionScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run retention batches on a cron schedule",
	Long: `Run retention batches on retention.schedule until interrupted.

With --config, the file is watched: schedule, execute, max_docs and
soft_buffer_days changes apply without a restart. Invalid edits are logged
and ignored.`,
	RunE: scheduleRetention,
}

var retentionRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent retention runs",
	RunE:  listRetentionRuns,
}

func init() {
	rootCmd.AddCommand(retentionCmd)
	retentionCmd.AddCommand(retentionRunCmd, retentionRecoverCmd, retentionScheduleCmd, retentionRunsCmd)

	f := retentionRunCmd.Flags()
	retentionRunFlags.scope.register(retentionRunCmd, "process")
	f.BoolVar(&retentionRunFlags.dryRun, "dry-run", true, "report candidates without deleting")
	f.BoolVar(&retentionRunFlags.execute, "execute", false, "delete eligible documents (requires the environment gates)")
	f.StringVar(&retentionRunFlags.now, "now", "", "logical time for cutoffs (RFC 3339, default: current time)")
	f.IntVar(&retentionRunFlags.maxDocs, "max-docs", retention.DefaultMaxDocs, "maximum documents processed across all scopes")
	f.IntVar(&retentionRunFlags.softBufferDays, "soft-buffer-days", retention.DefaultSoftBufferDays, "minimum document age in days regardless of plan")
	f.StringVar(&retentionRunFlags.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	retentionRunCmd.MarkFlagsMutuallyExclusive("dry-run", "execute")

	f = retentionRecoverCmd.Flags()
	f.BoolVar(&retentionRecoverFlags.execute, "execute", false, "complete the deletes (requires the environment gates)")
	f.StringVar(&retentionRecoverFlags.now, "now", "", "logical time (RFC 3339, default: current time)")
	f.DurationVar(&retentionRecoverFlags.olderThan, "older-than", retention.DefaultRecoveryThreshold, "minimum claim age")
	f.IntVar(&retentionRecoverFlags.maxDocs, "max-docs", retention.DefaultMaxDocs, "maximum documents retried")
	f.StringVar(&retentionRecoverFlags.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the pass")

	retentionRunsCmd.Flags().IntVar(&retentionRunsFlags.limit, "limit", 20, "number of runs to list")
	retentionRunsCmd.Flags().StringVarP(&retentionRunsFlags.output, "output", "o", "text", "output format: text, json, yaml")
}

func runRetention(cmd *cobra.Command, args []string) error {
	flags := &retentionRunFlags

	scope, err := flags.scope.scope()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dry-run") && !flags.dryRun {
		return cli.NewConfigError("--dry-run", "use --execute to delete")
	}
	now, err := parseTime("now", flags.now)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := retention.DefaultOptions()
	opts.Scope = scope
	opts.DryRun = !flags.execute
	opts.Now = now
	opts.MaxDocs = intFlagOr(cmd, "max-docs", flags.maxDocs, cfg.Retention.MaxDocs)
	opts.SoftBufferDays = intFlagOr(cmd, "soft-buffer-days", flags.softBufferDays, cfg.Retention.SoftBufferDays)
	if err := opts.Validate(); err != nil {
		return cli.NewConfigError("--max-docs", err.Error())
	}
	if flags.execute {
		if err := cli.CheckExecuteGates(); err != nil {
			return err
		}
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := openApp(cfg, appOptions{objects: true, now: now})
	if err != nil {
		return cli.NewCommandError("retention run", err)
	}
	defer a.Close()

	run, err := a.runner().Run(ctx, opts)
	if err != nil {
		return cli.NewCommandError("retention run", err)
	}
	return finishRun(cmd, a, run, textfilePath(flags.metricsTextfile, cfg))
}

func recoverRetention(cmd *cobra.Command, args []string) error {
	flags := &retentionRecoverFlags

	now, err := parseTime("now", flags.now)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	olderThan := flags.olderThan
	if !cmd.Flags().Changed("older-than") && cfg.Retention.RecoveryThreshold > 0 {
		olderThan = cfg.Retention.RecoveryThreshold
	}
	if olderThan <= 0 {
		return cli.NewConfigError("--older-than", "must be positive")
	}
	if flags.execute {
		if err := cli.CheckExecuteGates(); err != nil {
			return err
		}
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := openApp(cfg, appOptions{objects: true, now: now})
	if err != nil {
		return cli.NewCommandError("retention recover", err)
	}
	defer a.Close()

	run, err := a.runner().Recover(ctx, retention.RecoverOptions{
		DryRun:    !flags.execute,
		Now:       now,
		OlderThan: olderThan,
		MaxDocs:   intFlagOr(cmd, "max-docs", flags.maxDocs, cfg.Retention.MaxDocs),
	})
	if err != nil {
		return cli.NewCommandError("retention recover", err)
	}
	return finishRun(cmd, a, run, textfilePath(flags.metricsTextfile, cfg))
}

// finishRun prints the summary, publishes metrics and maps the outcome to
// an exit code.
func finishRun(cmd *cobra.Command, a *app, run *records.RetentionRun, textfile string) error {
	formatter := &cli.JSONFormatter{Indent: true}
	if err := formatter.FormatTo(cmd.OutOrStdout(), run); err != nil {
		return cli.NewCommandError(cmd.CommandPath(), err)
	}

	if textfile != "" {
		if err := a.metrics.WriteToTextfile(textfile); err != nil {
			return cli.NewCommandError(cmd.CommandPath(), err)
		}
	}

	if run.Summary.Interrupted {
		return &cli.ExitError{Code: exitInterrupted, Reason: fmt.Sprintf("run %s interrupted", run.RunID)}
	}
	if !run.DryRun {
		if n := retention.DocumentErrors(run); n > 0 {
			return &cli.ExitError{
				Code:   cli.ExitFailure,
				Reason: fmt.Sprintf("run %s finished with %d document errors", run.RunID, n),
			}
		}
	}
	return nil
}

func scheduleRetention(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Retention.Schedule == "" {
		return cli.NewConfigError("retention.schedule", "a cron schedule is required")
	}
	if cfg.Retention.Execute {
		if err := cli.CheckExecuteGates(); err != nil {
			return err
		}
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := openApp(cfg, appOptions{objects: true})
	if err != nil {
		return cli.NewCommandError("retention schedule", err)
	}
	defer a.Close()

	runner := a.runner()
	runner.SetObserver(&textfileObserver{
		Observer:  a.metrics.Retention,
		collector: a.metrics,
		path:      func() string { return textfilePath("", config.GetConfig()) },
	})

	scheduler := retention.NewScheduler(runner, func() retention.Options {
		return scheduledOptions(config.GetConfig())
	})
	if err := scheduler.Start(ctx, cfg.Retention.Schedule); err != nil {
		return cli.NewConfigError("retention.schedule", err.Error())
	}
	defer scheduler.Stop()

	if cfgFile != "" {
		watcher, err := config.NewWatcher(cfgFile, 0)
		if err != nil {
			return cli.NewCommandError("retention schedule", err)
		}
		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) {
				if err := scheduler.Reschedule(next.Retention.Schedule); err != nil {
					slog.Error("Failed to apply reloaded schedule", "schedule", next.Retention.Schedule, "error", err)
				}
			})
			if err != nil {
				slog.Error("Configuration watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	slog.Info("Retention scheduler running",
		"schedule", cfg.Retention.Schedule,
		"execute", cfg.Retention.Execute,
		"next_run", scheduler.NextRun(),
	)
	<-ctx.Done()
	slog.Info("Retention scheduler stopping")
	return nil
}

// scheduledOptions builds batch options from the current configuration. An
// execute configuration whose gates are closed falls back to a dry run.
func scheduledOptions(cfg *config.Config) retention.Options {
	opts := retention.DefaultOptions()
	if cfg.Retention.MaxDocs > 0 {
		opts.MaxDocs = cfg.Retention.MaxDocs
	}
	opts.SoftBufferDays = cfg.Retention.SoftBufferDays
	if cfg.Retention.Execute {
		if err := cli.CheckExecuteGates(); err != nil {
			slog.Warn("Execute configured but deletion gates are closed, running dry", "error", err)
		} else {
			opts.DryRun = false
		}
	}
	return opts
}

// textfileObserver rewrites the metrics textfile after every scheduled run.
type textfileObserver struct {
	retention.Observer
	collector *metrics.Collector
	path      func() string
}

func (o *textfileObserver) RunFinished(run *records.RetentionRun, elapsed time.Duration) {
	o.Observer.RunFinished(run, elapsed)
	if path := o.path(); path != "" {
		if err := o.collector.WriteToTextfile(path); err != nil {
			slog.Warn("Failed to write metrics textfile", "path", path, "error", err)
		}
	}
}

func listRetentionRuns(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(retentionRunsFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("retention runs", err)
	}
	defer a.Close()

	runs, err := retention.ListRuns(cmd.Context(), a.store, retentionRunsFlags.limit)
	if err != nil {
		return cli.NewCommandError("retention runs", err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), runList(runs))
}

type runList []*records.RetentionRun

func (l runList) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tMODE\tSCOPE\tSCANNED\tDELETED\tERRORS")
	for _, run := range l {
		mode := "execute"
		if run.DryRun {
			mode = "dry-run"
		}
		scope := "all"
		if run.Scope != nil {
			scope = run.Scope.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			run.RunID, run.StartedAt.Format(time.RFC3339), mode, scope,
			run.Summary.DocumentsScanned, run.DeletedCounts.SigningFiles, len(run.Errors))
	}
	return tw.Flush()
}

// intFlagOr returns the flag value when set explicitly, else the
// configured value when positive, else the flag default.
func intFlagOr(cmd *cobra.Command, name string, flagValue, configured int) int {
	if cmd.Flags().Changed(name) || configured <= 0 {
		return flagValue
	}
	return configured
}

func textfilePath(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg == nil {
		return ""
	}
	return cfg.Retention.MetricsTextfile
}
