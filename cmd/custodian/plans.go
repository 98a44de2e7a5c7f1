package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/plans"
	"lexsign/custodian/pkg/records"
)

var plansShowFlags struct {
	scope  scopeFlags
	now    string
	output string
}

var plansListFlags struct {
	output string
}

var plansSeedFlags struct {
	file string
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Inspect and seed subscription plans",
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plan definitions",
	RunE:  listPlans,
}

var plansShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective plan of a tenant or firm",
	Long: `Resolve the effective plan of a tenant or firm the way a retention run
would: active subscription, default plan fallback, retention floor and the
firm's unlimited override.

Examples:
  custodian plans show --tenant t-1
  custodian plans show --firm acme --now 2025-06-01T00:00:00Z -o json`,
	RunE: showPlan,
}

var plansSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upsert plan definitions from a YAML file",
	Long: `Upsert every plan in a plans.yaml file in one transaction.

The file defaults to plans.seed_file from the configuration:

  plans:
    - plan_key: PRO
      name: Professional
      retention_days_core: 365
      retention_days_pii: 180
      quotas:
        documents_per_month: 500
        storage_gb: 50`,
	RunE: seedPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
	plansCmd.AddCommand(plansListCmd, plansShowCmd, plansSeedCmd)

	plansListCmd.Flags().StringVarP(&plansListFlags.output, "output", "o", "text", "output format: text, json, yaml")

	plansShowFlags.scope.register(plansShowCmd, "resolve for")
	plansShowCmd.Flags().StringVar(&plansShowFlags.now, "now", "", "resolve as of this instant (RFC 3339)")
	plansShowCmd.Flags().StringVarP(&plansShowFlags.output, "output", "o", "text", "output format: text, json, yaml")

	plansSeedCmd.Flags().StringVarP(&plansSeedFlags.file, "file", "f", "", "plans.yaml path (default: plans.seed_file)")
}

func listPlans(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(plansListFlags.output)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("plans list", err)
	}
	defer a.Close()

	list, err := plans.ListPlans(cmd.Context(), a.store)
	if err != nil {
		return cli.NewCommandError("plans list", err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), planList(list))
}

func showPlan(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(plansShowFlags.output)
	if err != nil {
		return err
	}
	scope, err := plansShowFlags.scope.requireScope()
	if err != nil {
		return err
	}
	now, err := parseTime("now", plansShowFlags.now)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cfg, appOptions{now: now})
	if err != nil {
		return cli.NewCommandError("plans show", err)
	}
	defer a.Close()

	caps, err := a.store.DetectCapabilities(cmd.Context())
	if err != nil {
		return cli.NewCommandError("plans show", err)
	}
	plan, err := a.resolver.Resolve(cmd.Context(), scope, caps)
	if err != nil {
		return cli.NewCommandError("plans show", err)
	}
	if plan == nil {
		return cli.NewCommandError("plans show", fmt.Errorf("%s: firm tables are not installed", scope))
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), resolvedPlan{Scope: scope.String(), ResolvedPlan: *plan})
}

func seedPlans(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := plansSeedFlags.file
	if path == "" {
		path = cfg.Plans.SeedFile
	}
	if path == "" {
		return cli.NewConfigError("--file", "no plan file given and plans.seed_file is not set")
	}

	list, err := plans.LoadPlanFile(path)
	if err != nil {
		return cli.NewConfigError("--file", err.Error())
	}
	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("plans seed", err)
	}
	defer a.Close()

	if err := plans.Seed(cmd.Context(), a.store, list); err != nil {
		return cli.NewCommandError("plans seed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d plans from %s\n", len(list), path)
	return nil
}

type planList []*records.SubscriptionPlan

func (l planList) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAN\tNAME\tCORE DAYS\tPII DAYS")
	for _, p := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.PlanKey, p.Name, days(p.RetentionDaysCore), days(p.RetentionDaysPii))
	}
	return tw.Flush()
}

func days(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

// resolvedPlan labels a resolved plan with the scope it was resolved for.
type resolvedPlan struct {
	Scope                string `json:"scope" yaml:"scope"`
	records.ResolvedPlan `yaml:",inline"`
}

func (p resolvedPlan) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Scope:\t%s\n", p.Scope)
	fmt.Fprintf(tw, "Plan:\t%s (%s)\n", p.PlanKey, p.Name)
	fmt.Fprintf(tw, "Retention (core):\t%d days\n", p.EffectiveRetentionDaysCore)
	fmt.Fprintf(tw, "Retention (PII):\t%d days\n", p.EffectiveRetentionDaysPii)
	if p.Synthetic {
		fmt.Fprintln(tw, "Note:\tno plan row found, platform defaults in effect")
	}
	return tw.Flush()
}
