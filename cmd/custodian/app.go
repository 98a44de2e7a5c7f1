package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"lexsign/custodian/pkg/audit"
	"lexsign/custodian/pkg/blobstore"
	"lexsign/custodian/pkg/config"
	"lexsign/custodian/pkg/plans"
	"lexsign/custodian/pkg/retention"
	"lexsign/custodian/pkg/store"
	"lexsign/custodian/pkg/telemetry/metrics"
	"lexsign/custodian/pkg/telemetry/tracing"
	"lexsign/custodian/pkg/usage"
)

// tracerFlushTimeout bounds the span flush on exit.
const tracerFlushTimeout = 5 * time.Second

// app holds the collaborators a command needs, built from one
// configuration.
type app struct {
	cfg      *config.Config
	store    *store.Store
	objects  *blobstore.Store
	redis    *redis.Client
	resolver *plans.Resolver
	chain    *audit.Chain
	tracker  *usage.Tracker
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
}

// appOptions tunes wiring per command.
type appOptions struct {
	// objects opens the object store; only deleting commands need it.
	objects bool

	// now pins the plan resolver clock to a logical time.
	now time.Time
}

func openApp(cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}

	st, err := store.Open(&store.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.store = st

	if opts.objects {
		objects, err := blobstore.New(blobstore.Config{
			Provider:      cfg.Storage.Provider,
			DefaultBucket: cfg.Storage.DefaultBucket,
			FileRoot:      cfg.Storage.FileRoot,
			S3Endpoint:    cfg.Storage.S3.Endpoint,
			S3Region:      cfg.Storage.S3.Region,
			S3AccessKeyID: cfg.Storage.S3.AccessKeyID,
			S3Secret:      cfg.Storage.S3.SecretAccessKey,
			S3Token:       cfg.Storage.S3.SessionToken,
			S3PathStyle:   cfg.Storage.S3.PathStyle,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open object storage: %w", err)
		}
		a.objects = objects
	}

	a.metrics = metrics.NewCollector(cfg.Telemetry.Metrics, prometheus.NewRegistry())

	tracer, err := tracing.New(cfg.Telemetry.Tracing, Version)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}
	a.tracer = tracer

	planOpts := plans.Options{
		DefaultPlanKey:     cfg.Plans.DefaultPlanKey,
		RetentionFloorDays: cfg.Plans.RetentionFloorDays,
		DefaultFirmKey:     cfg.Plans.DefaultFirmKey,
		UnlimitedUntil:     cfg.Plans.UnlimitedUntil,
		CacheTTL:           cfg.Plans.Cache.TTL,
	}
	if !opts.now.IsZero() {
		now := opts.now
		planOpts.Clock = func() time.Time { return now }
	}
	a.resolver = plans.NewResolver(st, a.planCache(), planOpts)

	a.chain = audit.NewChain(st, audit.NewRedactor(cfg.Audit.RedactKeys...))
	a.tracker = usage.NewTracker(st)
	return a, nil
}

func (a *app) planCache() plans.Cache {
	backend := a.cfg.Plans.Cache.Backend
	var cache plans.Cache
	switch backend {
	case "redis":
		r := a.cfg.Plans.Cache.Redis
		a.redis = plans.NewRedisClient(r.Addr, r.Password, r.DB)
		cache = plans.NewRedisCache(a.redis, r.Prefix)
	case "memory":
		cache = plans.NewMemoryCache()
	default:
		return plans.NopCache{}
	}
	return a.metrics.Cache.Instrument(backend, cache)
}

// runner wires the retention engine. The metrics collector observes it.
func (a *app) runner() *retention.Runner {
	deleter := retention.NewDeleter(a.store, a.objects, a.chain)
	r := retention.NewRunner(a.store, a.resolver, deleter)
	r.SetObserver(a.metrics.Retention)
	return r
}

// Close releases every opened resource.
func (a *app) Close() error {
	var errs []error
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
		errs = append(errs, a.tracer.Shutdown(ctx))
		cancel()
	}
	if a.objects != nil {
		errs = append(errs, a.objects.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Default().Warn("Failed to release resources", "error", err)
		return err
	}
	return nil
}
