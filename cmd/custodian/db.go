package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/store"
)

var dbMigrateFlags struct {
	firmTables bool
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema",
	Long: `Create the tables, indexes and audit guards. Safe to run repeatedly.

The multi-firm tables follow database.firm_tables unless --firm-tables is
given.`,
	RunE: migrateDB,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)

	dbMigrateCmd.Flags().BoolVar(&dbMigrateFlags.firmTables, "firm-tables", true, "create the multi-firm tables")
}

func migrateDB(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	firmTables := cfg.Database.FirmTablesEnabled()
	if cmd.Flags().Changed("firm-tables") {
		firmTables = dbMigrateFlags.firmTables
	}

	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("db migrate", err)
	}
	defer a.Close()

	if err := a.store.Migrate(cmd.Context(), store.MigrateOptions{FirmTables: firmTables}); err != nil {
		return cli.NewCommandError("db migrate", err)
	}
	caps, err := a.store.DetectCapabilities(cmd.Context())
	if err != nil {
		return cli.NewCommandError("db migrate", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (driver %s, firm tables: %t)\n", a.store.Driver(), caps.HasFirmTables())
	return nil
}
