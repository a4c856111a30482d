package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"bskt/internal/app"
	basketHandler "bskt/internal/basket/handler"
	httpapi "bskt/internal/http"
	"bskt/internal/platform/config"
	"bskt/internal/platform/httpserver"
	"bskt/internal/platform/logger"
	"bskt/internal/platform/metrics"
	reconcileHandler "bskt/internal/reconcile/handler"
	workflowHandler "bskt/internal/workflow/handler"
)

// main wires the issuance workflow behind the HTTP API and keeps the server
// lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	wf, err := config.LoadWorkflow(cfg.WorkflowConfigPath)
	if err != nil {
		log.Error("load workflow config", "path", cfg.WorkflowConfigPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, wf, log, app.Options{Metrics: true, Persistent: true, AsyncAudit: true})
	if err != nil {
		log.Error("wire workflow", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN not set, admin routes reject every request")
	}

	checks := make(map[string]httpapi.HealthCheck, len(a.HealthChecks))
	for name, check := range a.HealthChecks {
		checks[name] = check
	}
	router := httpapi.NewRouter(log, metrics.New(), checks,
		workflowHandler.New(a.Service, log),
		basketHandler.New(a.Baskets, log, cfg.AdminToken),
		reconcileHandler.New(a.Reconciliation, log, cfg.AdminToken),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting bskt", "addr", cfg.Addr)
		return httpserver.Run(gctx, srv, app.ShutdownTimeout)
	})
	g.Go(func() error {
		return a.RunBackground(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
	log.Info("server stopped")
}
