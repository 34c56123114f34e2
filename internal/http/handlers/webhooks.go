package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"vidgen/internal/domain"
	"vidgen/internal/middleware"
	"vidgen/internal/reconcile"
)

// HeaderWebhookSecret carries the shared secret when the provider can send
// custom headers; otherwise it arrives as the token query parameter.
const HeaderWebhookSecret = "X-Webhook-Secret"

var errMissingCorrelation = errors.New("jobId and provider query parameters are required")

type webhookAck struct {
	Received bool             `json:"received"`
	Status   domain.JobStatus `json:"status,omitempty"`
}

// VideoWebhook receives provider callbacks. Once the correlation parameters
// and secret check pass it always answers 200 so providers stop retrying;
// internal failures are only logged.
func (a *App) VideoWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobID := strings.TrimSpace(q.Get("jobId"))
	provider := strings.TrimSpace(q.Get("provider"))
	if jobID == "" || provider == "" {
		a.error(w, http.StatusBadRequest, "bad_request", errMissingCorrelation.Error())
		return
	}
	secret := r.Header.Get(HeaderWebhookSecret)
	if secret == "" {
		secret = q.Get("token")
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}

	view, err := a.Reconciler.HandleWebhook(r.Context(), reconcile.WebhookEvent{
		JobID:    jobID,
		Provider: provider,
		Secret:   secret,
		Body:     body,
	})
	log := a.Logger.With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("job_id", jobID).
		Str("provider", provider).
		Logger()
	switch {
	case err == nil:
		a.json(w, http.StatusOK, webhookAck{Received: true, Status: view.Status})
	case errors.Is(err, domain.ErrUnauthorized):
		log.Warn().Msg("http: webhook secret mismatch")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid webhook secret")
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		log.Warn().Err(err).Msg("http: webhook not applied")
		a.json(w, http.StatusOK, webhookAck{Received: true})
	default:
		log.Error().Err(err).Int("status", http.StatusInternalServerError).Msg("http: webhook processing failed")
		a.json(w, http.StatusOK, webhookAck{Received: true})
	}
}
