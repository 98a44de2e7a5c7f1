package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/usage"
)

var usageMetrics = []string{
	records.MetricDocuments,
	records.MetricStorageBytes,
	records.MetricOTPSMS,
	records.MetricEvidenceGenerations,
	records.MetricEvidenceCPUSeconds,
}

var usageShowFlags struct {
	scope  scopeFlags
	now    string
	output string
}

var usageRecordFlags struct {
	scope    scopeFlags
	metric   string
	quantity int64
	at       string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect and record metered usage",
}

var usageShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show usage against plan quotas",
	Long: `Show the current usage of every metered metric against the effective
plan's quota. Monthly metrics count the calendar month (UTC); storage is
the running balance.`,
	RunE: showUsage,
}

var usageRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a usage event",
	Long: `Record one usage event, for example to backfill or to correct a balance.
Storage corrections may be negative.

Example:
  custodian usage record --tenant t-1 --metric otp_sms --quantity 3`,
	RunE: recordUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageShowCmd, usageRecordCmd)

	usageShowFlags.scope.register(usageShowCmd, "report for")
	usageShowCmd.Flags().StringVar(&usageShowFlags.now, "now", "", "report as of this instant (RFC 3339)")
	usageShowCmd.Flags().StringVarP(&usageShowFlags.output, "output", "o", "text", "output format: text, json, yaml")

	usageRecordFlags.scope.register(usageRecordCmd, "record for")
	usageRecordCmd.Flags().StringVar(&usageRecordFlags.metric, "metric", "", "metric name")
	usageRecordCmd.Flags().Int64Var(&usageRecordFlags.quantity, "quantity", 1, "quantity in the metric's unit")
	usageRecordCmd.Flags().StringVar(&usageRecordFlags.at, "at", "", "event time (RFC 3339, default: now)")
}

func showUsage(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(usageShowFlags.output)
	if err != nil {
		return err
	}
	scope, err := usageShowFlags.scope.requireScope()
	if err != nil {
		return err
	}
	now, err := parseTime("now", usageShowFlags.now)
	if err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cfg, appOptions{now: now})
	if err != nil {
		return cli.NewCommandError("usage show", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	caps, err := a.store.DetectCapabilities(ctx)
	if err != nil {
		return cli.NewCommandError("usage show", err)
	}
	plan, err := a.resolver.Resolve(ctx, scope, caps)
	if err != nil {
		return cli.NewCommandError("usage show", err)
	}

	report := usageReport{Scope: scope.String()}
	if plan != nil {
		report.PlanKey = plan.PlanKey
	}
	for _, metric := range usageMetrics {
		status, err := a.tracker.CheckQuota(ctx, scope, plan, metric, 0, now)
		if err != nil {
			return cli.NewCommandError("usage show", err)
		}
		report.Metrics = append(report.Metrics, *status)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report)
}

func recordUsage(cmd *cobra.Command, args []string) error {
	scope, err := usageRecordFlags.scope.requireScope()
	if err != nil {
		return err
	}
	at, err := parseTime("at", usageRecordFlags.at)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("usage record", err)
	}
	defer a.Close()

	event, err := a.tracker.Record(cmd.Context(), scope, usageRecordFlags.metric, usageRecordFlags.quantity, at)
	if err != nil {
		return cli.NewCommandError("usage record", err)
	}
	return (&cli.JSONFormatter{Indent: true}).FormatTo(cmd.OutOrStdout(), event)
}

type usageReport struct {
	Scope   string         `json:"scope" yaml:"scope"`
	PlanKey string         `json:"planKey" yaml:"plan_key"`
	Metrics []usage.Status `json:"metrics" yaml:"metrics"`
}

func (r usageReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s on plan %s\n", r.Scope, r.PlanKey)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tUSED\tLIMIT\tREMAINING")
	for _, s := range r.Metrics {
		limit, remaining := "unlimited", "-"
		if !s.Unlimited {
			limit = fmt.Sprint(s.Limit)
			remaining = fmt.Sprint(s.Remaining)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Metric, s.Used, limit, remaining)
	}
	return tw.Flush()
}
