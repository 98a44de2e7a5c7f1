package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/compliance"
	"lexsign/custodian/pkg/server"
	"lexsign/custodian/pkg/telemetry/health"
)

var serveFlags struct {
	listenAddress string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compliance read API",
	Long: `Serve audit listings, evidence listings and chain verification over HTTP.

Examples:
  custodian serve --config custodian.yaml
  custodian serve --listen 0.0.0.0:8080`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer a.Close()

	checker := health.New(2 * time.Second)
	checker.Register("database", a.store.DB().PingContext)
	checker.Register("schema", a.store.CheckSchema)
	if a.redis != nil {
		checker.Register("plan_cache", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}

	opts := server.Options{
		Reader:  compliance.NewReader(a.store, cfg.Storage.DefaultBucket),
		Querier: a.store,
		Checker: checker,
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		a.metrics.RegisterRuntimeCollectors()
		opts.Metrics = a.metrics
		opts.MetricsPath = cfg.Telemetry.Metrics.Path
	}

	if err := server.New(cfg.Server, opts).Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	return nil
}
