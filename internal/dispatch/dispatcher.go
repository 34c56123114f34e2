// Package dispatch accepts generation requests and walks the provider
// fallback chain until one provider accepts the job.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/domain"
	"vidgen/internal/domain/jsoncfg"
	"vidgen/internal/infra"
	"vidgen/internal/ledger"
	"vidgen/internal/providers/video"
)

// AcceptedProgress is reported once a provider has accepted the job.
const AcceptedProgress = 20

// DefaultPrimaryTimeout bounds the first provider attempt when no timeout is configured.
const DefaultPrimaryTimeout = 4 * time.Second

// Config carries the dispatcher's tunables.
type Config struct {
	PrimaryTimeout time.Duration
	// WebhookURL is the public address of the webhook endpoint; empty
	// disables callbacks and leaves completion to polling.
	WebhookURL    string
	WebhookSecret string
	// EstimatedCost is the quota units one video job consumes.
	EstimatedCost int
}

// Result is what the caller gets back once a provider has accepted the job.
type Result struct {
	JobID    string
	ShortID  string
	Provider domain.Provider
	Status   domain.JobStatus
}

// Dispatcher tries providers strictly one after another: the primary
// provider (the head of domain.FallbackOrder) runs under the primary
// deadline, the rest run under the caller's context only.
type Dispatcher struct {
	ledger   domain.JobLedger
	quota    domain.QuotaGate
	adapters []video.Adapter
	cfg      Config
	logger   *infra.Logger
	metrics  *infra.Metrics
}

// New builds a dispatcher. Adapters are reordered to follow domain.FallbackOrder.
func New(jobs domain.JobLedger, quota domain.QuotaGate, adapters []video.Adapter, cfg Config, logger *infra.Logger, metrics *infra.Metrics) *Dispatcher {
	ordered := slices.Clone(adapters)
	slices.SortStableFunc(ordered, func(a, b video.Adapter) int {
		return slices.Index(domain.FallbackOrder, a.Name()) - slices.Index(domain.FallbackOrder, b.Name())
	})
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = DefaultPrimaryTimeout
	}
	if cfg.EstimatedCost <= 0 {
		cfg.EstimatedCost = 1
	}
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Dispatcher{
		ledger:   jobs,
		quota:    quota,
		adapters: ordered,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch validates the request, creates the job and submits it to the
// first provider that accepts it.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID string, req jsoncfg.VideoPrompt) (*Result, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		d.metrics.Dispatch("unauthorized")
		return nil, domain.ErrUnauthorized
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		d.metrics.Dispatch("invalid")
		return nil, err
	}
	if len(d.adapters) == 0 {
		d.metrics.Dispatch("misconfigured")
		return nil, fmt.Errorf("dispatch: no provider configured: %w", domain.ErrConfiguration)
	}
	if d.quota != nil {
		ok, err := d.quota.CanDispatch(ctx, ownerID, d.cfg.EstimatedCost)
		if err != nil {
			d.metrics.Dispatch("error")
			return nil, fmt.Errorf("dispatch: quota check: %w", err)
		}
		if !ok {
			d.metrics.Dispatch("quota_exceeded")
			return nil, domain.ErrQuotaExceeded
		}
	}

	input := req.InputData()
	input.Provider = d.adapters[0].Name()
	job, err := d.ledger.Create(ctx, ownerID, input)
	if err != nil {
		d.metrics.Dispatch("error")
		return nil, fmt.Errorf("dispatch: create job: %w", err)
	}
	log := d.logger.With().Str("job_id", job.ID).Str("owner_id", ownerID).Logger()
	// Ledger writes outlive the caller; the job always reaches a recorded state.
	writeCtx := context.WithoutCancel(ctx)

	var attempts []error
	configured := 0
	canceled := false
	for i, adapter := range d.adapters {
		provider := adapter.Name()
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Str("provider", string(provider)).Msg("dispatch: caller gone, stopping fallback chain")
			attempts = append(attempts, classify(provider, err))
			canceled = true
			break
		}
		if i > 0 {
			if _, _, err := d.ledger.AdvanceOrComplete(writeCtx, job.ID, domain.Patch{
				InputProvider: domain.Ptr(provider),
				Progress:      domain.Ptr(ledger.InitialProgress),
				ResetProgress: true,
			}); err != nil {
				log.Error().Err(err).Str("provider", string(provider)).Msg("dispatch: record provider switch failed")
			}
		}

		sub, err := d.attempt(ctx, provider == domain.FallbackOrder[0], adapter, job.ID, req)
		if err != nil {
			if errors.Is(err, domain.ErrConfiguration) {
				log.Warn().Err(err).Str("provider", string(provider)).Msg("dispatch: provider not configured, skipping")
				d.metrics.ProviderAttempt(string(provider), "skipped", 0)
				attempts = append(attempts, err)
				continue
			}
			configured++
			d.logAttemptFailure(&log, provider, err)
			attempts = append(attempts, err)
			continue
		}

		updated, _, err := d.ledger.AdvanceOrComplete(writeCtx, job.ID, domain.Patch{
			Status:        domain.Ptr(domain.JobStatusRunning),
			Progress:      domain.Ptr(AcceptedProgress),
			InputProvider: domain.Ptr(provider),
			Output: &domain.OutputData{
				Provider:     provider,
				NativeJobID:  sub.NativeJobID,
				NativeStatus: sub.NativeStatus,
			},
		})
		if err != nil {
			d.metrics.Dispatch("error")
			log.Error().Err(err).Str("provider", string(provider)).Str("native_job_id", sub.NativeJobID).Msg("dispatch: record acceptance failed")
			return nil, fmt.Errorf("dispatch: record acceptance: %w", err)
		}
		d.metrics.Dispatch("accepted")
		log.Info().Str("provider", string(provider)).Str("native_job_id", sub.NativeJobID).Msg("dispatch: job accepted")
		return &Result{
			JobID:    updated.ID,
			ShortID:  updated.ShortID,
			Provider: provider,
			Status:   updated.Status,
		}, nil
	}

	reason := (&domain.AllProvidersFailedError{JobID: job.ID, Attempts: attempts}).Error()
	if _, _, err := d.ledger.AdvanceOrComplete(writeCtx, job.ID, domain.Patch{
		Status: domain.Ptr(domain.JobStatusFailed),
		Error:  domain.Ptr(reason),
	}); err != nil {
		log.Error().Err(err).Msg("dispatch: record failure failed")
	}
	if configured == 0 && !canceled {
		d.metrics.Dispatch("misconfigured")
		return nil, fmt.Errorf("dispatch: no provider usable: %w", domain.ErrConfiguration)
	}
	d.metrics.Dispatch("failed")
	log.Error().Int("attempts", len(attempts)).Msg("dispatch: all providers failed")
	return nil, &domain.AllProvidersFailedError{JobID: job.ID, Attempts: attempts}
}

func (d *Dispatcher) attempt(ctx context.Context, primary bool, adapter video.Adapter, jobID string, req jsoncfg.VideoPrompt) (*video.Submission, error) {
	if primary {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.PrimaryTimeout)
		defer cancel()
	}
	submit := video.SubmitRequest{
		JobID:        jobID,
		Prompt:       req.Prompt,
		AspectRatio:  req.AspectRatio,
		SeedImageURL: req.SeedImageURL,
		Duration:     req.Duration,
		Style:        req.Style,
		Options:      req.Options,
	}
	if adapter.SupportsWebhook() && d.cfg.WebhookURL != "" {
		submit.CallbackURL = video.CallbackURL(d.cfg.WebhookURL, jobID, adapter.Name(), d.cfg.WebhookSecret)
	}

	start := time.Now()
	sub, err := adapter.Submit(ctx, submit)
	took := time.Since(start)
	if err != nil {
		err = classify(adapter.Name(), err)
		var pe *domain.ProviderError
		if errors.As(err, &pe) {
			d.metrics.ProviderAttempt(string(adapter.Name()), string(pe.Class), took)
		}
		return nil, err
	}
	if sub == nil || strings.TrimSpace(sub.NativeJobID) == "" {
		d.metrics.ProviderAttempt(string(adapter.Name()), string(domain.ClassTransient), took)
		return nil, &domain.ProviderError{Provider: adapter.Name(), Class: domain.ClassTransient, Err: errors.New("accepted without a job id")}
	}
	d.metrics.ProviderAttempt(string(adapter.Name()), "accepted", took)
	return sub, nil
}

// classify makes sure every adapter failure other than a configuration
// problem surfaces as a *domain.ProviderError. Unclassified errors (network
// failures, deadlines) are transient; only adapters mark a failure permanent.
func classify(provider domain.Provider, err error) error {
	if errors.Is(err, domain.ErrConfiguration) {
		return err
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &domain.ProviderError{Provider: provider, Class: domain.ClassTransient, Err: err}
}

func (d *Dispatcher) logAttemptFailure(log *zerolog.Logger, provider domain.Provider, err error) {
	evt := log.Warn().Err(err).Str("provider", string(provider))
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		evt = evt.Str("class", string(pe.Class)).Int("status_code", pe.StatusCode)
	}
	evt.Msg("dispatch: provider attempt failed")
}
