// Package mockbank serves a stand-in bank reserve API for local runs and
// demos. Its GET /reserves body is the document reserve/sources.HTTPSource
// reads.
package mockbank

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	dErrors "bskt/pkg/domain-errors"
	"bskt/pkg/platform/httputil"
	"bskt/pkg/platform/middleware/admin"
	request "bskt/pkg/platform/middleware/request"
	"bskt/pkg/requestcontext"
)

// Reserves is the published reserve document.
type Reserves struct {
	TotalReserve decimal.Decimal `json:"totalReserve"`
	Currency     string          `json:"currency"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}

// Bank holds the current reserve figure.
type Bank struct {
	mu       sync.RWMutex
	reserves Reserves
}

// New starts a bank holding total in currency.
func New(total decimal.Decimal, currency string, now time.Time) *Bank {
	return &Bank{reserves: Reserves{
		TotalReserve: total,
		Currency:     currency,
		LastUpdated:  now.UTC(),
	}}
}

// Reserves returns a snapshot.
func (b *Bank) Reserves() Reserves {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reserves
}

// Update replaces the reserve total.
func (b *Bank) Update(total decimal.Decimal, at time.Time) Reserves {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserves.TotalReserve = total
	b.reserves.LastUpdated = at.UTC()
	return b.reserves
}

// Handler exposes a Bank over HTTP.
type Handler struct {
	bank       *Bank
	logger     *slog.Logger
	adminToken string
}

// NewHandler builds the HTTP surface. An empty adminToken leaves the update
// route open, as a local demo bank expects.
func NewHandler(bank *Bank, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{bank: bank, logger: logger, adminToken: adminToken}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/reserves", h.handleReserves)
	r.Group(func(r chi.Router) {
		if h.adminToken != "" {
			r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		}
		r.Post("/admin/update-reserves", h.handleUpdate)
	})
}

// UpdateRequest sets a new reserve total.
type UpdateRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func (req *UpdateRequest) Validate() error {
	if req.Amount == nil {
		return dErrors.New(dErrors.CodeValidation, "amount must be a number")
	}
	if req.Amount.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "amount must not be negative")
	}
	return nil
}

// UpdateResponse acknowledges an update.
type UpdateResponse struct {
	Success     bool            `json:"success"`
	NewReserves decimal.Decimal `json:"newReserves"`
}

func (h *Handler) handleReserves(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res := h.bank.Reserves()
	h.logger.InfoContext(ctx, "reserve query",
		"request_id", request.GetRequestID(ctx),
		"total_reserve", res.TotalReserve.String(),
		"currency", res.Currency,
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res := h.bank.Update(*req.Amount, requestcontext.Now(ctx))
	h.logger.InfoContext(ctx, "reserves updated",
		"request_id", requestID,
		"total_reserve", res.TotalReserve.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, UpdateResponse{Success: true, NewReserves: res.TotalReserve})
}
