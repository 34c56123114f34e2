package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/sqlinline"
)

// maxWriteAttempts bounds the read-merge-write loop when concurrent writers
// keep bumping the row version.
const maxWriteAttempts = 5

// ErrWriteConflict is returned when the versioned update lost the race
// maxWriteAttempts times in a row.
var ErrWriteConflict = errors.New("ledger: write conflict")

// Postgres stores jobs in the video_jobs table. Writes read the row, merge in
// Go and apply a conditional update on the version column, which serializes
// concurrent updates to the same job.
type Postgres struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewPostgres(sql infra.SQLExecutor) *Postgres {
	return &Postgres{sql: sql, now: time.Now}
}

// WithClock overrides the time source.
func (p *Postgres) WithClock(now func() time.Time) *Postgres {
	p.now = now
	return p
}

func (p *Postgres) Create(ctx context.Context, ownerID string, input domain.InputData) (*domain.Job, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	now := p.now().UTC()
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
	inputRaw, err := json.Marshal(job.Input)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode input: %w", err)
	}
	outputRaw, err := json.Marshal(job.Output)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode output: %w", err)
	}
	if _, err := p.sql.Exec(ctx, sqlinline.QInsertVideoJob,
		job.ID, job.ShortID, job.OwnerID, string(job.Kind), string(job.Status), job.Progress,
		inputRaw, outputRaw, now,
	); err != nil {
		return nil, fmt.Errorf("ledger: insert job: %w", err)
	}
	return &job, nil
}

func (p *Postgres) AdvanceOrComplete(ctx context.Context, jobID string, patch domain.Patch) (*domain.Job, bool, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cur, err := p.Get(ctx, jobID)
		if err != nil {
			return nil, false, err
		}
		next, changed := Merge(*cur, patch, p.now().UTC())
		if !changed {
			return cur, false, nil
		}
		ok, err := p.update(ctx, cur.Version, next)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return &next, true, nil
		}
	}
	return nil, false, fmt.Errorf("%w: job %s", ErrWriteConflict, jobID)
}

func (p *Postgres) update(ctx context.Context, readVersion int64, next domain.Job) (bool, error) {
	inputRaw, err := json.Marshal(next.Input)
	if err != nil {
		return false, fmt.Errorf("ledger: encode input: %w", err)
	}
	outputRaw, err := json.Marshal(next.Output)
	if err != nil {
		return false, fmt.Errorf("ledger: encode output: %w", err)
	}
	tag, err := p.sql.Exec(ctx, sqlinline.QUpdateVideoJobVersioned,
		next.ID, readVersion, string(next.Status), next.Progress,
		inputRaw, outputRaw, next.Error,
		string(next.Output.Provider), next.Output.NativeJobID,
		next.UpdatedAt, next.CompletedAt,
	)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return false, domain.ErrDuplicateNativeID
		}
		return false, fmt.Errorf("ledger: update job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(p.sql.QueryRow(ctx, sqlinline.QSelectVideoJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("ledger: get job: %w", err)
	}
	return job, nil
}

func (p *Postgres) FindByNativeJobID(ctx context.Context, provider domain.Provider, nativeJobID string) (*domain.Job, error) {
	if strings.TrimSpace(nativeJobID) == "" {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(p.sql.QueryRow(ctx, sqlinline.QSelectVideoJobByNativeID, string(provider), nativeJobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("ledger: find by native id: %w", err)
	}
	return job, nil
}

func (p *Postgres) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.sql.Query(ctx, sqlinline.QSelectStaleVideoJobs, olderThan.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list stale: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan stale: %w", err)
		}
		out = append(out, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list stale: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job       domain.Job
		kind      string
		status    string
		inputRaw  []byte
		outputRaw []byte
		completed *time.Time
	)
	if err := row.Scan(
		&job.ID, &job.ShortID, &job.OwnerID, &kind, &status, &job.Progress,
		&inputRaw, &outputRaw, &job.Error, &job.CreatedAt, &job.UpdatedAt, &completed, &job.Version,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.CompletedAt = completed
	if len(inputRaw) > 0 {
		if err := json.Unmarshal(inputRaw, &job.Input); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
	}
	if len(outputRaw) > 0 {
		if err := json.Unmarshal(outputRaw, &job.Output); err != nil {
			return nil, fmt.Errorf("decode output: %w", err)
		}
	}
	return &job, nil
}

var _ domain.JobLedger = (*Postgres)(nil)
