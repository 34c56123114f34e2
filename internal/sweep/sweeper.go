// Package sweep fails jobs that stopped hearing from their provider.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/reconcile"
)

// StalledReason is recorded on jobs the sweeper gives up on.
const StalledReason = "stalled: no completion reported"

const defaultBatch = 100

// Poller runs one reconciliation poll. *reconcile.Gateway satisfies it.
type Poller interface {
	Poll(ctx context.Context, req reconcile.PollRequest) (*reconcile.JobView, error)
}

// Config controls how old a job must be and how many are handled per pass.
type Config struct {
	StallTimeout time.Duration
	Interval     time.Duration
	Batch        int
	// PollOnly lists providers that never call back; their stale jobs get
	// one last poll before being failed.
	PollOnly []domain.Provider
}

// Summary counts what one pass did.
type Summary struct {
	Scanned   int
	Recovered int
	Stalled   int
	Errors    int

	// Skipped is set when another replica held the lease.
	Skipped bool
}

type Sweeper struct {
	ledger   domain.JobLedger
	poller   Poller
	cfg      Config
	pollOnly map[domain.Provider]bool
	lease    Lease
	logger   *infra.Logger
	metrics  *infra.Metrics
	now      func() time.Time
}

func New(jobs domain.JobLedger, poller Poller, cfg Config, logger *infra.Logger, metrics *infra.Metrics) *Sweeper {
	if cfg.Batch <= 0 {
		cfg.Batch = defaultBatch
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	pollOnly := make(map[domain.Provider]bool, len(cfg.PollOnly))
	for _, p := range cfg.PollOnly {
		pollOnly[p] = true
	}
	return &Sweeper{
		ledger:   jobs,
		poller:   poller,
		cfg:      cfg,
		pollOnly: pollOnly,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// WithLease makes each pass conditional on holding lease.
func (s *Sweeper) WithLease(lease Lease) *Sweeper {
	s.lease = lease
	return s
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("stall_timeout", s.cfg.StallTimeout).
		Dur("interval", s.cfg.Interval).
		Msg("sweep: started")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("sweep: pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce handles one batch of jobs untouched for longer than StallTimeout.
// Such a job gets a final poll when its provider never calls back; anything
// still unfinished afterwards is failed.
func (s *Sweeper) SweepOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	if s.lease != nil {
		held, err := s.lease.Acquire(ctx)
		if err != nil {
			return sum, err
		}
		if !held {
			s.logger.Debug().Msg("sweep: lease held by another replica")
			sum.Skipped = true
			return sum, nil
		}
		defer func() {
			if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Msg("sweep: lease release failed")
			}
		}()
	}
	cutoff := s.now().Add(-s.cfg.StallTimeout)
	jobs, err := s.ledger.ListStale(ctx, cutoff, s.cfg.Batch)
	if err != nil {
		return sum, fmt.Errorf("sweep: list stale: %w", err)
	}
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Scanned++
		job := &jobs[i]
		log := s.logger.With().Str("job_id", job.ID).Str("status", string(job.Status)).Logger()

		if s.shouldPoll(job) {
			view, err := s.poller.Poll(ctx, reconcile.PollRequest{JobID: job.ID})
			if err != nil {
				log.Warn().Err(err).Msg("sweep: final poll failed")
			} else if view.Status.IsTerminal() {
				sum.Recovered++
				s.metrics.Reconciliation("sweep", "recovered")
				log.Info().Str("final_status", string(view.Status)).Msg("sweep: job finished on final poll")
				continue
			}
		}

		after, changed, err := s.ledger.AdvanceOrComplete(ctx, job.ID, domain.Patch{
			Status: domain.Ptr(domain.JobStatusFailed),
			Error:  domain.Ptr(StalledReason),
		})
		if err != nil {
			sum.Errors++
			s.metrics.Reconciliation("sweep", "error")
			log.Error().Err(err).Msg("sweep: mark stalled failed")
			continue
		}
		if !changed || after.Status != domain.JobStatusFailed || after.Error != StalledReason {
			// Finished between listing and now.
			sum.Recovered++
			s.metrics.Reconciliation("sweep", "recovered")
			continue
		}
		sum.Stalled++
		s.metrics.Reconciliation("sweep", "stalled")
		log.Warn().Time("updated_at", job.UpdatedAt).Msg("sweep: job marked stalled")
	}
	if sum.Scanned > 0 {
		s.logger.Info().
			Int("scanned", sum.Scanned).
			Int("recovered", sum.Recovered).
			Int("stalled", sum.Stalled).
			Int("errors", sum.Errors).
			Msg("sweep: pass complete")
	}
	return sum, nil
}

func (s *Sweeper) shouldPoll(job *domain.Job) bool {
	if s.poller == nil || job.Output.NativeJobID == "" {
		return false
	}
	return s.pollOnly[job.Output.Provider]
}
