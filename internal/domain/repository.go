package domain

import (
	"context"
	"time"
)

// JobLedger is the only owner of Job records. Every write goes through
// Create or AdvanceOrComplete. AdvanceOrComplete reports whether this call
// changed the stored job, so callers can act exactly once on a transition.
type JobLedger interface {
	Create(ctx context.Context, ownerID string, input InputData) (*Job, error)
	AdvanceOrComplete(ctx context.Context, jobID string, patch Patch) (*Job, bool, error)
	Get(ctx context.Context, jobID string) (*Job, error)
	FindByNativeJobID(ctx context.Context, provider Provider, nativeJobID string) (*Job, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]Job, error)
}

// QuotaGate is consulted once before a job is created.
type QuotaGate interface {
	CanDispatch(ctx context.Context, ownerID string, estimatedCost int) (bool, error)
}

// MediaSink receives finished media for the storage/catalog collaborator.
type MediaSink interface {
	Publish(ctx context.Context, event MediaReady) error
}
