// Package metrics provides the Prometheus metrics of custodian.
//
// A Collector owns a private registry with three groups:
//
//   - RetentionMetrics: documents by result, runs by mode and outcome, run
//     duration and the last run's deletions. It implements
//     retention.Observer and is attached with Runner.SetObserver.
//   - RequestMetrics: compliance API requests by route and status.
//   - CacheMetrics: plan cache hits and misses, via CacheMetrics.Instrument.
//
// "custodian serve" exposes the registry with Handler. Batch commands have
// nothing to scrape, so they write it with WriteToTextfile for the node
// exporter textfile collector:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	runner.SetObserver(collector.Retention)
//	run, err := runner.Run(ctx, opts)
//	collector.WriteToTextfile("/var/lib/node_exporter/custodian.prom")
package metrics
