package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"vidgen/internal/dispatch"
	"vidgen/internal/domain"
	"vidgen/internal/domain/jsoncfg"
	"vidgen/internal/infra"
	"vidgen/internal/middleware"
	"vidgen/internal/reconcile"
)

// maxWebhookBody caps provider callback payloads.
const maxWebhookBody = 1 << 20

type Dispatcher interface {
	Dispatch(ctx context.Context, ownerID string, req jsoncfg.VideoPrompt) (*dispatch.Result, error)
}

type Reconciler interface {
	HandleWebhook(ctx context.Context, ev reconcile.WebhookEvent) (*reconcile.JobView, error)
	Poll(ctx context.Context, req reconcile.PollRequest) (*reconcile.JobView, error)
}

// App holds the collaborators every handler needs.
type App struct {
	Jobs       domain.JobLedger
	Dispatcher Dispatcher
	Reconciler Reconciler
	Logger     *infra.Logger
	// Ping reports backing store health; nil means always healthy.
	Ping func(ctx context.Context) error
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, errorBody{Error: kind, Message: msg})
}

// fail maps a domain error onto its HTTP status.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var allFailed *domain.AllProvidersFailedError
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrQuotaExceeded):
		a.error(w, http.StatusPaymentRequired, "quota_exceeded", "daily video quota exhausted")
	case errors.As(err, &allFailed):
		a.error(w, http.StatusBadGateway, "all_providers_failed", allFailed.Error())
	case errors.Is(err, domain.ErrConfiguration):
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("http: configuration error")
		a.error(w, http.StatusInternalServerError, "configuration", "video generation is not configured")
	default:
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("http: internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentOwnerID(r *http.Request) string {
	return middleware.OwnerIDFromContext(r.Context())
}
