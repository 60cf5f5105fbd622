package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/draftcoach/billing/core"
	billingsvc "github.com/draftcoach/billing/pkg/billing"
)

type handlers struct {
	svc             billingsvc.Service
	log             *slog.Logger
	signatureHeader string
	maxWebhookBody  int64
}

type checkoutRequest struct {
	UserID uuid.UUID         `json:"user_id"`
	Plan   billingsvc.PlanID `json:"plan_id"`
}

func (h *handlers) startCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.render(w, r, core.JSONError(core.ErrBadRequest.WithKey("malformed_request")))
		return
	}

	sess, err := h.svc.StartCheckout(r.Context(), req.UserID, req.Plan)
	if err != nil {
		h.render(w, r, core.JSONError(mapServiceError(err)))
		return
	}
	h.render(w, r, core.JSON(sess))
}

// handleWebhook acknowledges with 200 whenever redelivery cannot help;
// provider retry queues are reserved for transient failures on our side.
func (h *handlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxWebhookBody))
	if err != nil {
		h.render(w, r, core.JSONError(core.ErrBadRequest.WithKey("unreadable_payload")))
		return
	}

	err = h.svc.HandleWebhook(r.Context(), payload, r.Header.Get(h.signatureHeader))
	if err != nil {
		h.render(w, r, core.JSONError(mapServiceError(err)))
		return
	}
	h.render(w, r, core.JSON(map[string]string{"status": "ok"}))
}

type entitlementResponse struct {
	UserID    uuid.UUID       `json:"user_id"`
	Entitled  bool            `json:"entitled"`
	Tier      billingsvc.Tier `json:"tier"`
	PeriodEnd *time.Time      `json:"period_end,omitempty"`
}

func (h *handlers) getEntitlement(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		h.render(w, r, core.JSONError(core.ErrBadRequest.WithKey("invalid_user_id")))
		return
	}

	rec, err := h.svc.GetRecord(r.Context(), userID)
	if err != nil {
		h.render(w, r, core.JSONError(mapServiceError(err)))
		return
	}

	h.render(w, r, core.JSON(entitlementResponse{
		UserID:    userID,
		Entitled:  rec.EntitledAt(time.Now()),
		Tier:      rec.Tier,
		PeriodEnd: rec.PeriodEnd,
	}))
}

func (h *handlers) render(w http.ResponseWriter, r *http.Request, resp core.Response) {
	if err := resp.Render(w, r); err != nil {
		h.log.ErrorContext(r.Context(), "response render failed", slog.Any("error", err))
	}
}

// mapServiceError translates domain errors to the HTTP surface. Signature
// failures are 400 so the provider does not retry forged payloads; provider
// outages are 503 and persistence failures 500 so it does.
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, billingsvc.ErrMissingUserID):
		return core.ErrBadRequest.WithKey("missing_user_id")
	case errors.Is(err, billingsvc.ErrInvalidPlan):
		return core.ErrBadRequest.WithKey("invalid_plan")
	case errors.Is(err, billingsvc.ErrSignatureInvalid):
		return core.ErrBadRequest.WithKey("invalid_signature")
	case errors.Is(err, billingsvc.ErrEventExpired):
		return core.ErrBadRequest.WithKey("event_expired")
	case errors.Is(err, billingsvc.ErrProviderUnavailable):
		return core.ErrServiceUnavailable.WithKey("provider_unavailable")
	case errors.Is(err, billingsvc.ErrNoCheckoutURL):
		return core.ErrServiceUnavailable.WithKey("provider_unavailable")
	case errors.Is(err, billingsvc.ErrPersistenceFailure):
		return core.ErrInternalServerError
	default:
		return core.ErrInternalServerError
	}
}
