// Package ledger owns Job records. All writes funnel through Create and
// AdvanceOrComplete, and every implementation delegates the actual state
// change to Merge so the lifecycle rules live in exactly one place.
package ledger

import (
	"crypto/rand"
	"encoding/base32"
	"maps"
	"reflect"
	"strings"
	"time"

	"vidgen/internal/domain"
)

// InitialProgress is the progress of a freshly queued job and of a job that
// just moved on to its next provider.
const InitialProgress = 5

const defaultFailureReason = "provider reported failure"

// Merge applies patch to job and reports whether anything changed.
//
// A terminal job is returned untouched. Status moves only forward along the
// lifecycle (running and checking may alternate); a patch asking for an
// earlier status keeps the current one. Progress never decreases unless the
// patch sets ResetProgress, and even then it cannot rise above the current
// value. CompletedAt is stamped exactly once, on the first terminal
// transition.
func Merge(job domain.Job, patch domain.Patch, now time.Time) (domain.Job, bool) {
	if job.Status.IsTerminal() {
		return job, false
	}
	next := cloneJob(job)

	if patch.Status != nil && job.Status.CanTransitionTo(*patch.Status) {
		next.Status = *patch.Status
	}

	if patch.Progress != nil {
		p := clamp(*patch.Progress, 0, 100)
		switch {
		case patch.ResetProgress:
			next.Progress = min(p, job.Progress)
		case p > next.Progress:
			next.Progress = p
		}
	}

	if patch.InputProvider != nil {
		next.Input.Provider = *patch.InputProvider
	}

	if patch.Output != nil {
		next.Output = mergeOutput(next.Output, *patch.Output)
	}

	if next.Status.IsTerminal() {
		if next.Status == domain.JobStatusReady {
			next.Progress = 100
		}
		if patch.Error != nil && next.Status != domain.JobStatusReady {
			next.Error = strings.TrimSpace(*patch.Error)
		}
		if next.Status == domain.JobStatusFailed && next.Error == "" {
			next.Error = defaultFailureReason
		}
		stamp := now
		next.CompletedAt = &stamp
	}

	if equalState(job, next) {
		return job, false
	}
	next.UpdatedAt = now
	next.Version = job.Version + 1
	return next, true
}

func mergeOutput(cur, in domain.OutputData) domain.OutputData {
	if in.Provider != "" {
		cur.Provider = in.Provider
	}
	if in.NativeJobID != "" {
		cur.NativeJobID = in.NativeJobID
	}
	if in.NativeStatus != "" {
		cur.NativeStatus = in.NativeStatus
	}
	if in.OutputURL != "" {
		cur.OutputURL = in.OutputURL
	}
	if in.ErrorDetail != "" {
		cur.ErrorDetail = in.ErrorDetail
	}
	if len(in.Extra) > 0 {
		if cur.Extra == nil {
			cur.Extra = make(map[string]any, len(in.Extra))
		}
		maps.Copy(cur.Extra, in.Extra)
	}
	return cur
}

func equalState(a, b domain.Job) bool {
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	a.Version, b.Version = 0, 0
	if (a.CompletedAt == nil) != (b.CompletedAt == nil) {
		return false
	}
	a.CompletedAt, b.CompletedAt = nil, nil
	return reflect.DeepEqual(a, b)
}

func cloneJob(job domain.Job) domain.Job {
	out := job
	out.Input.Options = maps.Clone(job.Input.Options)
	out.Output.Extra = maps.Clone(job.Output.Extra)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

var shortIDEncoding = base32.NewEncoding("abcdefghijkmnpqrstuvwxyz23456789").WithPadding(base32.NoPadding)

// newShortID returns an 8-character human-displayable alias.
func newShortID() string {
	var buf [5]byte
	_, _ = rand.Read(buf[:])
	return shortIDEncoding.EncodeToString(buf[:])
}
