package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"bskt/internal/mockbank"
	"bskt/internal/platform/httpserver"
	"bskt/internal/platform/logger"
	"bskt/internal/platform/middleware"
	request "bskt/pkg/platform/middleware/request"
	"bskt/pkg/platform/middleware/requesttime"
)

// main serves a demo bank reserve API. MOCKBANK_INITIAL_RESERVE seeds the
// total; ADMIN_TOKEN, when set, guards the update route.
func main() {
	log := logger.New(envOr("LOG_LEVEL", "info"), envOr("LOG_FORMAT", "text"))

	initial, err := decimal.NewFromString(envOr("MOCKBANK_INITIAL_RESERVE", "1000000"))
	if err != nil {
		log.Error("invalid MOCKBANK_INITIAL_RESERVE", "error", err)
		os.Exit(1)
	}
	// The reserve API publishes totalReserve as a JSON number.
	decimal.MarshalJSONWithoutQuotes = true

	bank := mockbank.New(initial, envOr("MOCKBANK_CURRENCY", "USD"), time.Now())

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(log))
	mockbank.NewHandler(bank, log, os.Getenv("ADMIN_TOKEN")).Register(r)

	addr := envOr("MOCKBANK_ADDR", ":3002")
	srv := httpserver.New(addr, r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("mock bank listening", "addr", addr, "total_reserve", initial.String())
	if err := httpserver.Run(ctx, srv, 5*time.Second); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
