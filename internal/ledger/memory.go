package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidgen/internal/domain"
)

// Memory is an in-process ledger used by tests and LEDGER_BACKEND=memory.
// A single mutex serializes every write, which trivially gives per-job
// serialization.
type Memory struct {
	mu     sync.Mutex
	jobs   map[string]*domain.Job
	native map[nativeKey]string
	now    func() time.Time
}

type nativeKey struct {
	provider domain.Provider
	id       string
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]*domain.Job),
		native: make(map[nativeKey]string),
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Create(ctx context.Context, ownerID string, input domain.InputData) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	now := m.now()
	job := domain.Job{
		ID:        uuid.NewString(),
		ShortID:   newShortID(),
		OwnerID:   ownerID,
		Kind:      domain.JobKindVideo,
		Status:    domain.JobStatusQueued,
		Progress:  InitialProgress,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	job = cloneJob(job)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &job
	out := cloneJob(job)
	return &out, nil
}

func (m *Memory) AdvanceOrComplete(ctx context.Context, jobID string, patch domain.Patch) (*domain.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.jobs[jobID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	next, changed := Merge(*cur, patch, m.now())
	if !changed {
		out := cloneJob(*cur)
		return &out, false, nil
	}
	if next.Output.NativeJobID != "" {
		key := nativeKey{provider: next.Output.Provider, id: next.Output.NativeJobID}
		if owner, taken := m.native[key]; taken && owner != jobID {
			if other := m.jobs[owner]; other != nil && !other.Status.IsTerminal() {
				return nil, false, domain.ErrDuplicateNativeID
			}
		}
		m.native[key] = jobID
	}
	m.jobs[jobID] = &next
	out := cloneJob(next)
	return &out, true, nil
}

func (m *Memory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneJob(*cur)
	return &out, nil
}

func (m *Memory) FindByNativeJobID(ctx context.Context, provider domain.Provider, nativeJobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.native[nativeKey{provider: provider, id: nativeJobID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneJob(*m.jobs[id])
	return &out, nil
}

func (m *Memory) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Status.IsTerminal() || !j.UpdatedAt.Before(olderThan) {
			continue
		}
		out = append(out, cloneJob(*j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.Before(out[k].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.JobLedger = (*Memory)(nil)
