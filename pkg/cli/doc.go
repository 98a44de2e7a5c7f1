/*
Package cli provides helpers shared by the custodian commands.

Output Formatting:

Commands render results as text, JSON or YAML:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(cmd.OutOrStdout(), summary); err != nil {
		return err
	}

Errors and Exit Codes:

ConfigError marks problems found before any work (bad flags, closed
deletion gates) and maps to exit code 2. ExitError carries an explicit code
for commands that already printed their result, such as a retention run
with document errors. Everything else exits 1.

Deletion Gates:

	if err := cli.CheckExecuteGates(); err != nil {
		return err // RETENTION_ALLOW_DELETE=true and RETENTION_CONFIRM=DELETE are required
	}

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
