package domain

import "time"

// JobKind enumerates supported generation media kinds.
type JobKind string

const (
	JobKindVideo JobKind = "video"
)

// JobStatus enumerates the shared job lifecycle every provider is normalized onto.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusChecking JobStatus = "checking"
	JobStatusReady    JobStatus = "ready"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// IsTerminal reports whether the status can no longer change.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusReady, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle. running and checking share a rank
// so they may alternate while a provider is being polled.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusQueued:
		return 1
	case JobStatusRunning, JobStatusChecking:
		return 2
	case JobStatusReady, JobStatusFailed, JobStatusCanceled:
		return 3
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next respects the lifecycle.
// Staying on the same status is always allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() || next.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

// Valid reports whether s is one of the seven lifecycle states.
func (s JobStatus) Valid() bool {
	return s.rank() >= 0
}

// Provider identifies one of the fixed set of upstream video providers.
type Provider string

const (
	ProviderSora     Provider = "sora"
	ProviderSeedance Provider = "seedance"
	ProviderKling    Provider = "kling"
)

// FallbackOrder lists providers from cheapest/fastest to most reliable.
var FallbackOrder = []Provider{ProviderSora, ProviderSeedance, ProviderKling}

// ParseProvider maps a correlation parameter back onto the closed provider set.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderSora, ProviderSeedance, ProviderKling:
		return Provider(s), true
	}
	return "", false
}

// InputData is the immutable request snapshot. Provider is the only field
// that changes, and only when the dispatcher advances to the next provider.
type InputData struct {
	Prompt       string         `json:"prompt"`
	AspectRatio  string         `json:"aspect_ratio"`
	SeedImageURL string         `json:"seed_image_url,omitempty"`
	Duration     int            `json:"duration,omitempty"`
	Style        string         `json:"style,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
	BrandID      string         `json:"brand_id,omitempty"`
	Provider     Provider       `json:"provider,omitempty"`
}

// OutputData accumulates what providers reported about the job.
type OutputData struct {
	Provider     Provider       `json:"provider,omitempty"`
	NativeJobID  string         `json:"native_job_id,omitempty"`
	NativeStatus string         `json:"native_status,omitempty"`
	OutputURL    string         `json:"output_url,omitempty"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Job is one tracked generation request, possibly spanning several provider attempts.
type Job struct {
	ID          string
	ShortID     string
	OwnerID     string
	Kind        JobKind
	Status      JobStatus
	Progress    int
	Input       InputData
	Output      OutputData
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	Version     int64
}

// Patch is a partial update applied through the ledger's merge routine.
// Nil fields are left untouched.
type Patch struct {
	Status        *JobStatus
	Progress      *int
	ResetProgress bool
	InputProvider *Provider
	Output        *OutputData
	Error         *string
}

// MediaReady is emitted once per job when it first reaches the ready state.
type MediaReady struct {
	JobID            string   `json:"job_id"`
	OwnerID          string   `json:"owner_id"`
	OutputURL        string   `json:"output_url"`
	Provider         Provider `json:"provider"`
	DurationEstimate int      `json:"duration_estimate"`
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T {
	return &v
}
