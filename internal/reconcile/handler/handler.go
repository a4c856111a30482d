package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bskt/internal/reconcile"
	id "bskt/pkg/domain"
	dErrors "bskt/pkg/domain-errors"
	"bskt/pkg/platform/httputil"
	"bskt/pkg/platform/middleware/admin"
	request "bskt/pkg/platform/middleware/request"
	"bskt/pkg/platform/sentinel"
	"bskt/pkg/requestcontext"
)

// Handler exposes reconciliation entries to operators.
type Handler struct {
	store      reconcile.Store
	logger     *slog.Logger
	adminToken string
}

func New(store reconcile.Store, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{store: store, logger: logger, adminToken: adminToken}
}

// Register mounts the admin-only reconciliation routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		r.Get("/reconciliation", h.handleList)
		r.Post("/reconciliation/{transactionID}/resolve", h.handleResolve)
	})
}

// ResolveRequest closes an entry with an operator note.
type ResolveRequest struct {
	Resolution string `json:"resolution"`
}

func (r *ResolveRequest) Validate() error {
	r.Resolution = strings.TrimSpace(r.Resolution)
	if r.Resolution == "" {
		return dErrors.New(dErrors.CodeValidation, "resolution is required")
	}
	return nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	includeResolved, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	entries, err := h.store.List(ctx, includeResolved)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list reconciliation entries",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "reconciliation store unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	txID, err := id.ParseTransactionID(chi.URLParam(r, "transactionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entry, err := h.store.Resolve(ctx, txID, req.Resolution, requestcontext.Now(ctx))
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no reconciliation entry for "+txID.String()))
		return
	case errors.Is(err, sentinel.ErrConflict):
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeConflict, "entry already resolved"))
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to resolve reconciliation entry",
			"request_id", requestID,
			"transaction_id", txID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "reconciliation store unavailable"))
		return
	}

	h.logger.InfoContext(ctx, "reconciliation entry resolved",
		"request_id", requestID,
		"transaction_id", txID,
		"kind", entry.Kind,
	)
	httputil.WriteJSON(w, http.StatusOK, entry)
}
