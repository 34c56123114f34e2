// Package status maps each provider's native status vocabulary onto the
// shared job lifecycle. Everything here is pure: the webhook and poll paths
// both call it for the same event, and replaying an event must yield the
// same result.
package status

import (
	"strings"

	"golang.org/x/text/cases"

	"vidgen/internal/domain"
)

// UnknownProgress is reported for tokens outside the table so an accepted
// job never shows 0%.
const UnknownProgress = 10

var providerVocab = map[domain.Provider]map[string]domain.JobStatus{
	domain.ProviderSora: {
		"queued":      domain.JobStatusQueued,
		"in_progress": domain.JobStatusRunning,
		"completed":   domain.JobStatusReady,
		"failed":      domain.JobStatusFailed,
		"cancelled":   domain.JobStatusCanceled,
	},
	domain.ProviderSeedance: {
		"starting":   domain.JobStatusRunning,
		"processing": domain.JobStatusRunning,
		"succeeded":  domain.JobStatusReady,
		"failed":     domain.JobStatusFailed,
		"canceled":   domain.JobStatusCanceled,
		"aborted":    domain.JobStatusCanceled,
	},
	domain.ProviderKling: {
		"submitted":  domain.JobStatusQueued,
		"processing": domain.JobStatusRunning,
		"succeed":    domain.JobStatusReady,
		"failed":     domain.JobStatusFailed,
	},
}

// shared synonyms accepted from any provider
var commonVocab = map[string]domain.JobStatus{
	"pending":   domain.JobStatusQueued,
	"queued":    domain.JobStatusQueued,
	"running":   domain.JobStatusRunning,
	"checking":  domain.JobStatusChecking,
	"ready":     domain.JobStatusReady,
	"completed": domain.JobStatusReady,
	"succeeded": domain.JobStatusReady,
	"success":   domain.JobStatusReady,
	"succeed":   domain.JobStatusReady,
	"done":      domain.JobStatusReady,
	"failed":    domain.JobStatusFailed,
	"failure":   domain.JobStatusFailed,
	"error":     domain.JobStatusFailed,
	"canceled":  domain.JobStatusCanceled,
	"cancelled": domain.JobStatusCanceled,
	"aborted":   domain.JobStatusCanceled,
}

var progressTable = map[string]int{
	"pending":     5,
	"queued":      5,
	"submitted":   5,
	"starting":    15,
	"in_progress": 60,
	"processing":  60,
	"running":     60,
	"checking":    70,
}

// Normalize maps a native status token to the shared lifecycle. Unknown and
// transitional tokens map to running.
func Normalize(provider domain.Provider, token string) domain.JobStatus {
	key := fold(token)
	if vocab, ok := providerVocab[provider]; ok {
		if s, ok := vocab[key]; ok {
			return s
		}
	}
	if s, ok := commonVocab[key]; ok {
		return s
	}
	return domain.JobStatusRunning
}

// Progress estimates completion percentage from a native status token.
func Progress(token string) int {
	key := fold(token)
	if p, ok := progressTable[key]; ok {
		return p
	}
	if IsTerminalToken(key) {
		return 100
	}
	return UnknownProgress
}

// IsTerminalToken reports whether any provider uses token as a terminal state.
func IsTerminalToken(token string) bool {
	key := fold(token)
	if s, ok := commonVocab[key]; ok && s.IsTerminal() {
		return true
	}
	for _, vocab := range providerVocab {
		if s, ok := vocab[key]; ok && s.IsTerminal() {
			return true
		}
	}
	return false
}

// fold is a caseless, whitespace-trimmed key. A Caser carries state, so a new
// one is built per call.
func fold(token string) string {
	return cases.Fold().String(strings.TrimSpace(token))
}
