package video

import (
	"io"
	"testing"

	"github.com/rs/zerolog"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
)

func TestFromConfigSkipsProvidersWithoutKeys(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := &infra.Config{
		Sora:  infra.ProviderConfig{APIKey: "sk-sora"},
		Kling: infra.ProviderConfig{APIKey: "kl-key"},
	}
	adapters := FromConfig(cfg, &logger)
	if len(adapters) != 2 {
		t.Fatalf("expected 2 adapters, got %d", len(adapters))
	}
	if adapters[0].Name() != domain.ProviderSora || adapters[1].Name() != domain.ProviderKling {
		t.Fatalf("unexpected order %s, %s", adapters[0].Name(), adapters[1].Name())
	}

	pollOnly := PollOnly(adapters)
	if len(pollOnly) != 1 || pollOnly[0] != domain.ProviderSora {
		t.Fatalf("PollOnly = %v", pollOnly)
	}
}
