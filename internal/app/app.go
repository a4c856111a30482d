// Package app builds the issuance workflow and its collaborators from
// configuration. cmd/server and cmd/workflow share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bskt/internal/audit"
	"bskt/internal/basket"
	basketstore "bskt/internal/basket/store"
	"bskt/internal/ledger"
	"bskt/internal/ledger/httpclient"
	"bskt/internal/ledger/simulated"
	"bskt/internal/platform/config"
	"bskt/internal/platform/postgres"
	"bskt/internal/platform/redis"
	"bskt/internal/reconcile"
	reconcilestore "bskt/internal/reconcile/store"
	"bskt/internal/report"
	reportmetrics "bskt/internal/report/metrics"
	"bskt/internal/reserve"
	reservemetrics "bskt/internal/reserve/metrics"
	"bskt/internal/reserve/sources"
	"bskt/internal/workflow"
	workflowmetrics "bskt/internal/workflow/metrics"
	workflowstore "bskt/internal/workflow/store"
)

// App is a fully wired workflow with the stores it depends on.
type App struct {
	Service        *workflow.Service
	Reserves       *reserve.Aggregator
	Gateway        ledger.Gateway
	Baskets        basket.Registry
	Reconciliation reconcile.Store
	Idempotency    workflow.Idempotency
	// HealthChecks probe the optional external stores.
	HealthChecks map[string]func(ctx context.Context) error

	auditWorker *audit.Worker
	closers     []func()
}

// Options selects process-level behaviour.
type Options struct {
	// Metrics registers Prometheus collectors. Only one App per process may
	// set it.
	Metrics bool
	// Persistent connects Postgres, Redis and Kafka when configured.
	Persistent bool
	// AsyncAudit hands audit events to a background worker started by
	// RunBackground instead of appending them inline.
	AsyncAudit bool
}

// Build wires every collaborator. Close must be called on the result.
func Build(ctx context.Context, srv config.Server, wf config.Workflow, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{HealthChecks: map[string]func(context.Context) error{}}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	gateway, err := a.gateway(srv, wf, logger)
	if err != nil {
		return nil, err
	}
	a.Gateway = gateway

	var (
		rm *reservemetrics.Metrics
		sm *reportmetrics.Metrics
		wm *workflowmetrics.Metrics
	)
	if opts.Metrics {
		rm, sm, wm = reservemetrics.New(), reportmetrics.New(), workflowmetrics.New()
	}

	srcs, err := sources.FromConfig(wf.Reserves.Sources, &http.Client{Timeout: wf.Reserves.Timeout})
	if err != nil {
		return nil, fmt.Errorf("reserve sources: %w", err)
	}
	a.Reserves, err = reserve.NewAggregator(srcs,
		reserve.WithLogger(logger),
		reserve.WithMetrics(rm),
		reserve.WithMinResponses(wf.Reserves.MinResponses),
		reserve.WithConcurrency(wf.Reserves.Concurrency),
		reserve.WithTimeout(wf.Reserves.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("reserve aggregator: %w", err)
	}

	submitter, err := report.NewSubmitter(gateway, report.WithLogger(logger), report.WithMetrics(sm))
	if err != nil {
		return nil, err
	}

	if err := a.stores(ctx, srv, wf, logger, opts.Persistent); err != nil {
		return nil, err
	}

	serviceOpts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithMetrics(wm),
		workflow.WithIdempotency(a.Idempotency),
		workflow.WithReconciliation(a.Reconciliation),
	}
	if publisher := a.auditPublisher(ctx, srv, logger, opts); publisher != nil {
		serviceOpts = append(serviceOpts, workflow.WithAudit(publisher))
	}
	if !wf.Issuing.BasketFactoryAddress.IsNil() {
		provisioner, err := basket.NewProvisioner(submitter, gateway, a.Baskets, wf.Issuing.BasketFactoryAddress,
			wf.Gas.Factory, basket.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		serviceOpts = append(serviceOpts, workflow.WithProvisioner(provisioner))
	}

	a.Service, err = workflow.NewService(wf, a.Reserves, gateway, submitter, serviceOpts...)
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *App) gateway(srv config.Server, wf config.Workflow, logger *slog.Logger) (ledger.Gateway, error) {
	if srv.LedgerServiceURL != "" {
		client, err := httpclient.New(srv.LedgerServiceURL, srv.LedgerTimeout,
			httpclient.WithLogger(logger),
			httpclient.WithAPIKey(srv.LedgerAPIKey),
		)
		if err != nil {
			return nil, fmt.Errorf("ledger client: %w", err)
		}
		return client, nil
	}
	logger.Warn("LEDGER_SERVICE_URL not set, using the in-process simulated ledger")
	return simulated.New(simulated.Contracts{
		Stablecoin:      wf.Issuing.StablecoinAddress,
		MintingConsumer: wf.Issuing.MintingConsumerAddress,
		BridgeConsumer:  wf.Issuing.BridgeConsumerAddress,
		Factory:         wf.Issuing.BasketFactoryAddress,
	}, simulated.WithLogger(logger)), nil
}

func (a *App) stores(ctx context.Context, srv config.Server, wf config.Workflow, logger *slog.Logger, persistent bool) error {
	a.Baskets = basketstore.NewInMemory()
	a.Reconciliation = reconcilestore.NewInMemory()
	a.Idempotency = workflowstore.NewInMemory()
	if !persistent {
		return nil
	}

	if srv.PostgresDSN != "" {
		db, err := postgres.Open(ctx, srv.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		registry := basketstore.NewPostgres(db)
		if err := registry.Migrate(ctx); err != nil {
			return err
		}
		a.Baskets = registry
		a.HealthChecks["postgres"] = db.PingContext

		pool, err := postgres.OpenPool(ctx, srv.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		rs := reconcilestore.NewPostgres(pool)
		if err := rs.Migrate(ctx); err != nil {
			return err
		}
		a.Reconciliation = rs
	} else {
		logger.Warn("DATABASE_URL not set, basket registry and reconciliation entries are kept in memory")
	}

	client, err := redis.New(ctx, srv.Redis)
	if err != nil {
		return err
	}
	if client != nil {
		a.closers = append(a.closers, func() { _ = client.Close() })
		// A claim outlives the longest run: reserves, supply, mint, bridge.
		claimTTL := 5 * wf.StepTimeout
		a.Idempotency = workflowstore.NewRedis(client.Client, claimTTL, srv.Redis.ResultTTL)
		a.HealthChecks["redis"] = client.Health
	} else {
		logger.Warn("REDIS_URL not set, idempotency claims are process-local")
	}
	return nil
}

func (a *App) auditPublisher(ctx context.Context, srv config.Server, logger *slog.Logger, opts Options) *audit.Publisher {
	if !opts.Persistent || len(srv.Kafka.Brokers) == 0 {
		return nil
	}
	sink, err := audit.NewKafkaSink(srv.Kafka.Brokers, srv.Kafka.Topic)
	if err != nil {
		logger.Error("audit sink disabled", "error", err)
		return nil
	}
	a.closers = append(a.closers, sink.Close)
	a.HealthChecks["kafka"] = sink.Ping
	if srv.Kafka.CreateTopic {
		if err := sink.EnsureTopic(ctx, int32(srv.Kafka.Partitions), int16(srv.Kafka.ReplicationFactor)); err != nil {
			logger.Error("audit topic not provisioned", "topic", srv.Kafka.Topic, "error", err)
		}
	}

	if !opts.AsyncAudit {
		return audit.NewPublisher(sink, audit.WithLogger(logger))
	}
	queue := make(chan audit.Event, 1024)
	a.auditWorker = audit.NewWorker(sink, queue, logger)
	return audit.NewPublisher(sink, audit.WithLogger(logger), audit.WithQueue(queue))
}

// RunBackground runs background workers until ctx is done.
func (a *App) RunBackground(ctx context.Context) error {
	if a.auditWorker == nil {
		<-ctx.Done()
		return nil
	}
	if err := a.auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second
