package queue

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/karthik-ak-dev/pulse-ops/internal/tenancy"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// Handler exposes the engine over HTTP. Route wiring lives in the router
// package; every method here assumes the actor middleware already ran.
type Handler struct {
	engine *Controller
	logger *logging.Logger
}

// NewHandler creates a queue HTTP handler.
func NewHandler(engine *Controller, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("queue: handler engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine: engine,
		logger: logger.Component("queue_handler"),
	}
}

// CreateQueue handles POST /v1/queues.
func (h *Handler) CreateQueue(w http.ResponseWriter, r *http.Request) {
	actor, ok := tenancy.ActorFromContext(r.Context())
	if !ok {
		h.respondErr(w, Invalid("missing actor context"))
		return
	}

	var in CreateQueueInput
	if err := decodeJSON(r, &in); err != nil {
		h.respondErr(w, Invalid("invalid request body"))
		return
	}
	in.ClinicID = actor.ClinicID

	q, err := h.engine.CreateQueue(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// ListQueues handles GET /v1/queues.
func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	actor, ok := tenancy.ActorFromContext(r.Context())
	if !ok {
		h.respondErr(w, Invalid("missing actor context"))
		return
	}

	queues, err := h.engine.ListOpenQueues(r.Context(), actor.ClinicID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queues": queues,
		"count":  len(queues),
	})
}

// GetSnapshot handles GET /v1/queues/{queueID}.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StartQueue handles POST /v1/queues/{queueID}/start.
func (h *Handler) StartQueue(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.StartQueue(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// PauseQueue handles POST /v1/queues/{queueID}/pause.
func (h *Handler) PauseQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason PauseReason `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondErr(w, Invalid("invalid request body"))
		return
	}

	q, err := h.engine.PauseQueue(r.Context(), chi.URLParam(r, "queueID"), req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ResumeQueue handles POST /v1/queues/{queueID}/resume.
func (h *Handler) ResumeQueue(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.ResumeQueue(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// CloseQueue handles POST /v1/queues/{queueID}/close.
func (h *Handler) CloseQueue(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.CloseQueue(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// CreateToken handles POST /v1/queues/{queueID}/tokens.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var in CreateTokenInput
	if err := decodeJSON(r, &in); err != nil {
		h.respondErr(w, Invalid("invalid request body"))
		return
	}
	in.QueueID = chi.URLParam(r, "queueID")
	if actor, ok := tenancy.ActorFromContext(r.Context()); ok {
		in.ClinicID = actor.ClinicID
	}

	t, err := h.engine.CreateToken(r.Context(), in)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// CallNext handles POST /v1/queues/{queueID}/call-next.
func (h *Handler) CallNext(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.CallNext(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CompleteCurrent handles POST /v1/queues/{queueID}/complete.
func (h *Handler) CompleteCurrent(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.CompleteCurrent(r.Context(), chi.URLParam(r, "queueID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// SkipCurrent handles POST /v1/queues/{queueID}/skip.
func (h *Handler) SkipCurrent(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		h.respondErr(w, Invalid("invalid request body"))
		return
	}

	t, err := h.engine.SkipCurrent(r.Context(), chi.URLParam(r, "queueID"), reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetToken handles GET /v1/tokens/{tokenID}.
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	pos, err := h.engine.TokenPosition(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// ConfirmToken handles POST /v1/tokens/{tokenID}/confirm.
func (h *Handler) ConfirmToken(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.ConfirmToken(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// MarkArrived handles POST /v1/tokens/{tokenID}/arrive.
func (h *Handler) MarkArrived(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.MarkArrived(r.Context(), chi.URLParam(r, "tokenID"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CancelToken handles POST /v1/tokens/{tokenID}/cancel.
func (h *Handler) CancelToken(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		h.respondErr(w, Invalid("invalid request body"))
		return
	}

	t, err := h.engine.CancelToken(r.Context(), chi.URLParam(r, "tokenID"), reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// MarkNoShow handles POST /v1/tokens/{tokenID}/no-show.
func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	reason, err := decodeReason(r)
	if err != nil {
		h.respondErr(w, Invalid("invalid request body"))
		return
	}

	t, err := h.engine.MarkNoShow(r.Context(), chi.URLParam(r, "tokenID"), reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// PaymentResult handles POST /v1/internal/payments/result.
func (h *Handler) PaymentResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID   string        `json:"tokenId"`
		Status    PaymentStatus `json:"status"`
		Reference string        `json:"reference"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondErr(w, Invalid("invalid request body"))
		return
	}
	if req.TokenID == "" {
		h.respondErr(w, Invalid("tokenId required"))
		return
	}

	t, err := h.engine.HandlePaymentResult(r.Context(), req.TokenID, req.Status, req.Reference)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	code := CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "code", code, "error", err)
	} else {
		h.logger.Debug("request rejected", "code", code, "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: MessageOf(err)}})
}

// statusFor maps taxonomy codes to HTTP status.
func statusFor(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound, CodeQueueEmpty:
		return http.StatusNotFound
	case CodeInvalidState, CodeInvalidTransition, CodeConsultationInProgress, CodeConcurrencyConflict:
		return http.StatusConflict
	case CodeCapacityExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeReason reads an optional {"reason": "..."} body. An empty body is
// fine; the engine applies its own default.
func decodeReason(r *http.Request) (string, error) {
	var req struct {
		Reason string `json:"reason"`
	}
	err := decodeJSON(r, &req)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return req.Reason, nil
}
