// Package reconcile folds provider completion reports into the job ledger.
// Webhooks (push) and polls (pull) build the same kind of patch and apply it
// through the ledger's merge, so replays and races between the two paths
// are harmless.
package reconcile

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/providers/video"
	"vidgen/internal/status"
)

const checkingProgress = 70

// WebhookEvent is one inbound provider callback.
type WebhookEvent struct {
	JobID    string
	Provider string
	Secret   string
	Body     []byte
}

// PollRequest asks for one status check. Provider and NativeJobID fall back
// to what the ledger recorded at dispatch time.
type PollRequest struct {
	JobID       string
	Provider    string
	NativeJobID string
}

// JobView is the caller-facing projection of a job.
type JobView struct {
	JobID     string           `json:"jobId"`
	ShortID   string           `json:"jobShortId"`
	Provider  domain.Provider  `json:"provider,omitempty"`
	Status    domain.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	OutputURL string           `json:"outputUrl,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ViewOf projects job for API responses.
func ViewOf(job *domain.Job) *JobView {
	provider := job.Output.Provider
	if provider == "" {
		provider = job.Input.Provider
	}
	return &JobView{
		JobID:     job.ID,
		ShortID:   job.ShortID,
		Provider:  provider,
		Status:    job.Status,
		Progress:  job.Progress,
		OutputURL: job.Output.OutputURL,
		Error:     job.Error,
	}
}

// Gateway is the reconciliation entry point for both ingress paths.
type Gateway struct {
	ledger   domain.JobLedger
	adapters map[domain.Provider]video.Adapter
	sink     domain.MediaSink
	secret   string
	logger   *infra.Logger
	metrics  *infra.Metrics
	now      func() time.Time
}

// Config carries the gateway's tunables. An empty WebhookSecret disables the
// shared-secret check.
type Config struct {
	WebhookSecret string
}

func New(jobs domain.JobLedger, adapters []video.Adapter, sink domain.MediaSink, cfg Config, logger *infra.Logger, metrics *infra.Metrics) *Gateway {
	byName := make(map[domain.Provider]video.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Gateway{
		ledger:   jobs,
		adapters: byName,
		sink:     sink,
		secret:   strings.TrimSpace(cfg.WebhookSecret),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// HandleWebhook applies one provider callback.
func (g *Gateway) HandleWebhook(ctx context.Context, ev WebhookEvent) (*JobView, error) {
	jobID := strings.TrimSpace(ev.JobID)
	if jobID == "" || strings.TrimSpace(ev.Provider) == "" {
		g.metrics.Reconciliation("webhook", "invalid")
		return nil, domain.Validationf("jobId and provider are required")
	}
	provider, ok := domain.ParseProvider(strings.ToLower(strings.TrimSpace(ev.Provider)))
	if !ok {
		g.metrics.Reconciliation("webhook", "invalid")
		return nil, domain.Validationf("unknown provider %q", ev.Provider)
	}
	if !g.secretMatches(ev.Secret) {
		g.metrics.Reconciliation("webhook", "unauthorized")
		return nil, domain.ErrUnauthorized
	}

	var payload map[string]any
	if err := json.Unmarshal(ev.Body, &payload); err != nil {
		g.metrics.Reconciliation("webhook", "invalid")
		return nil, domain.Validationf("webhook body must be a json object")
	}
	nativeID := extractNativeID(payload)

	job, err := g.ledger.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) && nativeID != "" {
		job, err = g.ledger.FindByNativeJobID(ctx, provider, nativeID)
	}
	if err != nil {
		g.metrics.Reconciliation("webhook", "unknown_job")
		return nil, fmt.Errorf("reconcile: webhook job %s: %w", jobID, err)
	}
	log := g.logger.With().Str("job_id", job.ID).Str("provider", string(provider)).Logger()

	if current := currentProvider(job); current != "" && current != provider {
		// The job has moved on to another provider; this callback belongs to
		// an abandoned attempt.
		log.Info().Str("current_provider", string(current)).Msg("reconcile: ignoring webhook from superseded provider")
		g.metrics.Reconciliation("webhook", "superseded")
		return ViewOf(job), nil
	}

	report := video.StatusReport{
		NativeStatus: extractStatus(payload),
		OutputURL:    extractMediaURL(payload),
		Error:        extractError(payload),
		Raw:          payload,
	}
	if report.NativeStatus == "" && report.OutputURL != "" {
		report.NativeStatus = "succeeded"
	}
	patch := g.patchFor(job, provider, nativeID, report, "webhook")
	return g.apply(ctx, &log, job, patch, "webhook")
}

// Poll performs one status check against the provider and applies the result.
// Provider failures are logged and the last known state is returned.
func (g *Gateway) Poll(ctx context.Context, req PollRequest) (*JobView, error) {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		return nil, domain.Validationf("jobId is required")
	}
	job, err := g.ledger.Get(ctx, jobID)
	if err != nil {
		g.metrics.Reconciliation("poll", "unknown_job")
		return nil, fmt.Errorf("reconcile: poll job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		g.metrics.Reconciliation("poll", "terminal")
		return ViewOf(job), nil
	}

	provider := job.Output.Provider
	if provider == "" {
		p, ok := domain.ParseProvider(strings.ToLower(strings.TrimSpace(req.Provider)))
		if !ok {
			return nil, domain.Validationf("provider is required until the job is accepted")
		}
		if current := currentProvider(job); current != "" && current != p {
			g.metrics.Reconciliation("poll", "superseded")
			return ViewOf(job), nil
		}
		provider = p
	}
	nativeID := job.Output.NativeJobID
	if nativeID == "" {
		nativeID = strings.TrimSpace(req.NativeJobID)
	}
	if nativeID == "" {
		g.metrics.Reconciliation("poll", "not_submitted")
		return ViewOf(job), nil
	}
	adapter, ok := g.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("reconcile: no adapter for %s: %w", provider, domain.ErrConfiguration)
	}
	log := g.logger.With().Str("job_id", job.ID).Str("provider", string(provider)).Logger()

	report, err := adapter.CheckStatus(ctx, nativeID)
	if err != nil {
		log.Warn().Err(err).Str("native_job_id", nativeID).Msg("reconcile: poll failed, returning last known state")
		g.metrics.Reconciliation("poll", "provider_error")
		return ViewOf(job), nil
	}
	patch := g.patchFor(job, provider, nativeID, *report, "poll")
	return g.apply(ctx, &log, job, patch, "poll")
}

// patchFor turns a provider report into a ledger patch. Repeated reports of
// an in-progress state alternate running and checking on the poll path.
func (g *Gateway) patchFor(job *domain.Job, provider domain.Provider, nativeID string, report video.StatusReport, via string) domain.Patch {
	next := status.Normalize(provider, report.NativeStatus)
	progress := status.Progress(report.NativeStatus)

	awaitingAsset := false
	if next == domain.JobStatusReady && report.OutputURL == "" && job.Output.OutputURL == "" {
		// Finished upstream but no asset location yet; keep checking.
		next = domain.JobStatusChecking
		progress = checkingProgress
		awaitingAsset = true
	}
	if via == "poll" && !awaitingAsset && (next == domain.JobStatusRunning || next == domain.JobStatusChecking) {
		if job.Status == domain.JobStatusRunning {
			next = domain.JobStatusChecking
			progress = max(progress, checkingProgress)
		} else {
			next = domain.JobStatusRunning
		}
	}

	out := &domain.OutputData{
		Provider:     provider,
		NativeStatus: report.NativeStatus,
		OutputURL:    report.OutputURL,
		Extra: map[string]any{
			"last_" + via + "_at": g.now().UTC().Format(time.RFC3339),
		},
	}
	if job.Output.NativeJobID == "" {
		out.NativeJobID = nativeID
	}
	if report.Error != "" {
		out.ErrorDetail = report.Error
	}
	patch := domain.Patch{Status: domain.Ptr(next), Output: out}
	if !next.IsTerminal() || next == domain.JobStatusReady {
		patch.Progress = domain.Ptr(progress)
	}
	if next == domain.JobStatusFailed || next == domain.JobStatusCanceled {
		reason := report.Error
		if reason == "" {
			reason = fmt.Sprintf("%s reported %s", provider, strings.ToLower(report.NativeStatus))
		}
		patch.Error = domain.Ptr(reason)
	}
	return patch
}

func (g *Gateway) apply(ctx context.Context, log *zerolog.Logger, before *domain.Job, patch domain.Patch, via string) (*JobView, error) {
	after, changed, err := g.ledger.AdvanceOrComplete(ctx, before.ID, patch)
	if err != nil {
		g.metrics.Reconciliation(via, "error")
		log.Error().Err(err).Msg("reconcile: apply failed")
		return nil, fmt.Errorf("reconcile: apply %s: %w", via, err)
	}
	outcome := "noop"
	if changed {
		outcome = "applied"
	}
	g.metrics.Reconciliation(via, outcome)
	log.Debug().
		Str("via", via).
		Str("status", string(after.Status)).
		Int("progress", after.Progress).
		Str("outcome", outcome).
		Msg("reconcile: report applied")

	// Ready jobs never change again, so a changing write that ends in ready
	// is the one transition into it.
	if changed && after.Status == domain.JobStatusReady {
		g.emitReady(ctx, log, after)
	}
	return ViewOf(after), nil
}

// emitReady hands the finished asset to the media sink. Sink failures are
// logged only; the job is already complete.
func (g *Gateway) emitReady(ctx context.Context, log *zerolog.Logger, job *domain.Job) {
	if g.sink == nil {
		return
	}
	event := domain.MediaReady{
		JobID:            job.ID,
		OwnerID:          job.OwnerID,
		OutputURL:        job.Output.OutputURL,
		Provider:         job.Output.Provider,
		DurationEstimate: job.Input.Duration,
	}
	if err := g.sink.Publish(ctx, event); err != nil {
		log.Error().Err(err).Msg("reconcile: media sink publish failed")
		return
	}
	log.Info().Str("output_url", job.Output.OutputURL).Msg("reconcile: media ready")
}

// currentProvider is the provider whose reports may still change the job:
// the one that accepted it, or the one being attempted before acceptance.
func currentProvider(job *domain.Job) domain.Provider {
	if job.Output.Provider != "" {
		return job.Output.Provider
	}
	return job.Input.Provider
}

func (g *Gateway) secretMatches(got string) bool {
	if g.secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(g.secret)) == 1
}
