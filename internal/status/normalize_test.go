package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vidgen/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		provider domain.Provider
		token    string
		want     domain.JobStatus
	}{
		{domain.ProviderSora, "queued", domain.JobStatusQueued},
		{domain.ProviderSora, "in_progress", domain.JobStatusRunning},
		{domain.ProviderSora, "completed", domain.JobStatusReady},
		{domain.ProviderSora, "cancelled", domain.JobStatusCanceled},
		{domain.ProviderSeedance, "starting", domain.JobStatusRunning},
		{domain.ProviderSeedance, "succeeded", domain.JobStatusReady},
		{domain.ProviderSeedance, "aborted", domain.JobStatusCanceled},
		{domain.ProviderKling, "submitted", domain.JobStatusQueued},
		{domain.ProviderKling, "succeed", domain.JobStatusReady},
		{domain.ProviderKling, "failed", domain.JobStatusFailed},
		{domain.ProviderKling, " SUCCEED ", domain.JobStatusReady},
		{domain.ProviderSeedance, "Error", domain.JobStatusFailed},
		{domain.ProviderSora, "warming_up", domain.JobStatusRunning},
		{domain.ProviderSora, "", domain.JobStatusRunning},
		{domain.Provider("other"), "done", domain.JobStatusReady},
	}
	for _, tc := range tests {
		t.Run(string(tc.provider)+"/"+tc.token, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.provider, tc.token))
		})
	}
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 5, Progress("queued"))
	assert.Equal(t, 15, Progress("starting"))
	assert.Equal(t, 60, Progress("processing"))
	assert.Equal(t, 60, Progress("IN_PROGRESS"))
	assert.Equal(t, 100, Progress("succeed"))
	assert.Equal(t, 100, Progress("cancelled"))
	assert.Equal(t, 100, Progress("failed"))
	assert.Equal(t, UnknownProgress, Progress("mystery-token"))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, token := range []string{"processing", "succeeded", "weird", "FAILED"} {
		first := Normalize(domain.ProviderSeedance, token)
		second := Normalize(domain.ProviderSeedance, token)
		assert.Equal(t, first, second)
		assert.Equal(t, Progress(token), Progress(token))
	}
}

func TestUnknownTokenMapsToRunningWithLowProgress(t *testing.T) {
	assert.Equal(t, domain.JobStatusRunning, Normalize(domain.ProviderKling, "rendering_frames"))
	assert.Equal(t, 10, Progress("rendering_frames"))
}
