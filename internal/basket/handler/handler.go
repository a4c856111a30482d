package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bskt/internal/basket"
	id "bskt/pkg/domain"
	dErrors "bskt/pkg/domain-errors"
	"bskt/pkg/platform/httputil"
	"bskt/pkg/platform/middleware/admin"
	request "bskt/pkg/platform/middleware/request"
	"bskt/pkg/platform/sentinel"
	"bskt/pkg/requestcontext"
)

// Registry is the subset of the basket registry the handler needs.
type Registry interface {
	Save(ctx context.Context, rec *basket.Record) error
	List(ctx context.Context) ([]*basket.Record, error)
}

// Handler serves the basket registry.
type Handler struct {
	registry   Registry
	logger     *slog.Logger
	adminToken string
}

// New creates a basket Handler. Registration requires adminToken.
func New(registry Registry, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{registry: registry, logger: logger, adminToken: adminToken}
}

// Register mounts GET /baskets and the admin-only POST /baskets.
func (h *Handler) Register(r chi.Router) {
	r.Get("/baskets", h.handleList)
	r.With(admin.RequireAdminToken(h.adminToken, h.logger)).Post("/baskets", h.handleRegister)
}

// RegisterRequest registers a basket created outside this service.
type RegisterRequest struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Stablecoin      string `json:"stablecoin"`
	MintingConsumer string `json:"mintingConsumer"`
	Admin           string `json:"admin"`
	TxHash          string `json:"txHash"`

	record *basket.Record
}

func (req *RegisterRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Name == "" || req.Symbol == "" {
		return dErrors.New(dErrors.CodeValidation, "name and symbol are required")
	}
	stablecoin, err := parseContract("stablecoin", req.Stablecoin)
	if err != nil {
		return err
	}
	consumer, err := parseContract("mintingConsumer", req.MintingConsumer)
	if err != nil {
		return err
	}
	adminAddr, err := parseContract("admin", req.Admin)
	if err != nil {
		return err
	}
	rec := &basket.Record{
		Name:                req.Name,
		Symbol:              req.Symbol,
		AssetContract:       stablecoin,
		EnforcementConsumer: consumer,
		Admin:               adminAddr,
	}
	if req.TxHash != "" {
		hash, err := id.ParseTxHash(req.TxHash)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "txHash must be a 32-byte hex hash")
		}
		rec.CreationTxHash = hash
	}
	req.record = rec
	return nil
}

func parseContract(field, raw string) (id.Address, error) {
	addr, err := id.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, field+": "+dErrors.Message(err))
	}
	if addr == id.ZeroAddress {
		return "", dErrors.New(dErrors.CodeValidation, field+" must not be the zero address")
	}
	return addr, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.registry.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list baskets",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "basket registry unavailable"))
		return
	}
	if records == nil {
		records = []*basket.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"baskets": records})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rec := req.record
	rec.CreatedAt = requestcontext.Now(ctx)

	if err := h.registry.Save(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeConflict, "basket symbol "+rec.Symbol+" is already registered"))
			return
		}
		h.logger.ErrorContext(ctx, "failed to register basket",
			"request_id", requestID,
			"symbol", rec.Symbol,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "basket registry unavailable"))
		return
	}

	h.logger.InfoContext(ctx, "basket registered",
		"request_id", requestID,
		"symbol", rec.Symbol,
		"stablecoin", rec.AssetContract,
	)
	httputil.WriteJSON(w, http.StatusCreated, rec)
}
