package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bskt/internal/instruction"
	"bskt/internal/workflow"
	dErrors "bskt/pkg/domain-errors"
	"bskt/pkg/platform/httputil"
	request "bskt/pkg/platform/middleware/request"
)

// Service runs raw instructions.
type Service interface {
	Process(ctx context.Context, raw []byte) *workflow.Result
}

// Handler is the instruction front door.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts POST /instructions and the POST /mint shorthand.
func (h *Handler) Register(r chi.Router) {
	r.Post("/instructions", h.handleInstruction)
	r.Post("/mint", h.handleMint)
}

func (h *Handler) handleInstruction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := httputil.ReadBody(w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	h.respond(w, h.service.Process(ctx, body))
}

// handleMint accepts a MINT instruction without its messageType.
func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	body, ok := httputil.ReadBody(w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body must be a JSON object"))
		return
	}
	kind, _ := json.Marshal(instruction.KindMint)
	fields["messageType"] = kind
	raw, err := json.Marshal(fields)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to re-encode mint request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to encode instruction"))
		return
	}
	h.respond(w, h.service.Process(ctx, raw))
}

func (h *Handler) respond(w http.ResponseWriter, res *workflow.Result) {
	httputil.WriteJSON(w, StatusFor(res), res)
}

// StatusFor maps a result kind to its HTTP status.
func StatusFor(res *workflow.Result) int {
	switch res.Kind {
	case workflow.KindSuccess:
		return http.StatusOK
	case workflow.KindMalformedInstruction:
		return http.StatusBadRequest
	case workflow.KindDuplicateInFlight:
		return http.StatusConflict
	case workflow.KindReserveRejected, workflow.KindPolicyRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
