package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lexsign/custodian/pkg/audit"
	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/compliance"
	"lexsign/custodian/pkg/export"
	"lexsign/custodian/pkg/records"
)

var auditVerifyFlags struct {
	system  bool
	entries bool
}

var auditExportFlags struct {
	format        string
	output        string
	caseID        string
	signingFileID string
	actorType     string
	eventType     string
	from          string
	to            string
	search        string
	success       string
	progress      bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify and export the audit log",
	Long: `Work with the hash-chained audit log.

Subcommands:
  verify  - Recompute and check the hash chain of documents
  export  - Write the filtered audit listing as JSON, CSV or XLSX`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [signing-file-id...]",
	Short: "Verify audit hash chains",
	Long: `Recompute every event hash of each document's chain and check the links.

The exit code is non-zero when any chain is broken.

Examples:
  # Verify two documents
  custodian audit verify doc-1 doc-2

  # Verify the chain of events not tied to a document
  custodian audit verify --system`,
	RunE: verifyAudit,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events",
	Long: `Export every audit event matching the filters, newest first.

Examples:
  # All events of one case as CSV
  custodian audit export --case case-9 --format csv --output case-9.csv

  # Failed signer actions in March as a spreadsheet
  custodian audit export --actor-type signer --success false \
    --from 2025-03-01T00:00:00Z --to 2025-04-01T00:00:00Z \
    --format xlsx --output march.xlsx`,
	RunE: exportAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditExportCmd)

	auditVerifyCmd.Flags().BoolVar(&auditVerifyFlags.system, "system", false, "verify the chain of events without a document")
	auditVerifyCmd.Flags().BoolVar(&auditVerifyFlags.entries, "entries", false, "include per-event results")

	f := auditExportCmd.Flags()
	f.StringVar(&auditExportFlags.format, "format", export.FormatJSON, "export format: json, csv, xlsx")
	f.StringVarP(&auditExportFlags.output, "output", "o", "", "output file (default: stdout)")
	f.StringVar(&auditExportFlags.caseID, "case", "", "filter by case id")
	f.StringVar(&auditExportFlags.signingFileID, "signing-file", "", "filter by signing file id")
	f.StringVar(&auditExportFlags.actorType, "actor-type", "", "filter by actor type (user, signer, system)")
	f.StringVar(&auditExportFlags.eventType, "event-type", "", "filter by event type")
	f.StringVar(&auditExportFlags.from, "from", "", "earliest event time, inclusive (RFC 3339)")
	f.StringVar(&auditExportFlags.to, "to", "", "latest event time, exclusive (RFC 3339)")
	f.StringVar(&auditExportFlags.search, "search", "", "case-insensitive text search")
	f.StringVar(&auditExportFlags.success, "success", "", "filter by outcome (true, false)")
	f.BoolVar(&auditExportFlags.progress, "progress", false, "report progress on stderr")
}

func verifyAudit(cmd *cobra.Command, args []string) error {
	ids := args
	if auditVerifyFlags.system {
		ids = append(ids, "")
	}
	if len(ids) == 0 {
		return cli.NewConfigError("signing-file-id", "give at least one id or --system")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("audit verify", err)
	}
	defer a.Close()

	results := make([]audit.VerifyResult, 0, len(ids))
	broken := 0
	for _, id := range ids {
		res, err := audit.VerifyDocument(cmd.Context(), a.store, id)
		if err != nil {
			return cli.NewCommandError("audit verify", err)
		}
		if !res.Valid {
			broken++
		}
		if !auditVerifyFlags.entries {
			res.Entries = nil
		}
		results = append(results, res)
	}

	formatter := &cli.JSONFormatter{Indent: true}
	if err := formatter.FormatTo(cmd.OutOrStdout(), results); err != nil {
		return cli.NewCommandError("audit verify", err)
	}
	if broken > 0 {
		return &cli.ExitError{Code: cli.ExitFailure, Reason: fmt.Sprintf("%d of %d chains are broken", broken, len(ids))}
	}
	return nil
}

func exportAudit(cmd *cobra.Command, args []string) error {
	flags := &auditExportFlags

	exporter, err := export.New(flags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}
	filter, err := exportFilter()
	if err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		return cli.NewConfigError("filter", err.Error())
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("audit export", err)
	}
	defer a.Close()

	var w io.Writer = cmd.OutOrStdout()
	if flags.output != "" {
		file, err := os.Create(flags.output)
		if err != nil {
			return cli.NewCommandError("audit export", err)
		}
		defer file.Close()
		w = file
	}

	var progressOut io.Writer
	if flags.progress {
		progressOut = cmd.ErrOrStderr()
	}
	progress := cli.NewProgress(progressOut, "Exported", 0)
	progress.Start()

	reader := compliance.NewReader(a.store, cfg.Storage.DefaultBucket)
	if err := streamEvents(ctx, reader, filter, exporter, w, progress); err != nil {
		return cli.NewCommandError("audit export", err)
	}
	progress.Finish()
	return nil
}

// streamEvents pages through the listing on one goroutine and feeds the
// exporter on the caller's.
func streamEvents(ctx context.Context, reader *compliance.Reader, filter compliance.AuditFilter, exporter export.Exporter, w io.Writer, progress *cli.Progress) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan *records.AuditEvent, 64)
	listErr := make(chan error, 1)
	go func() {
		defer close(events)
		listErr <- reader.EachAuditEvent(ctx, filter, func(e *records.AuditEvent) error {
			event := *e
			select {
			case events <- &event:
				progress.Add(1)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	exportErr := exporter.ExportStream(ctx, events, w)
	cancel()
	// drain so the producer can observe cancellation and exit
	for range events {
	}
	if err := <-listErr; err != nil && exportErr == nil {
		return err
	}
	return exportErr
}

func exportFilter() (compliance.AuditFilter, error) {
	flags := &auditExportFlags
	f := compliance.AuditFilter{
		CaseID:        flags.caseID,
		SigningFileID: flags.signingFileID,
		ActorType:     flags.actorType,
		EventType:     flags.eventType,
		Search:        flags.search,
	}

	from, err := parseTime("from", flags.from)
	if err != nil {
		return f, err
	}
	if !from.IsZero() {
		f.From = &from
	}
	to, err := parseTime("to", flags.to)
	if err != nil {
		return f, err
	}
	if !to.IsZero() {
		f.To = &to
	}
	if f.Success, err = parseBool("success", flags.success); err != nil {
		return f, err
	}
	return f, nil
}
