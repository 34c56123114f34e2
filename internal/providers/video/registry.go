package video

import (
	"net/http"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
)

// FromConfig builds an adapter for every provider that has an API key, in
// fallback order. Providers without a key are logged and left out.
func FromConfig(cfg *infra.Config, logger *infra.Logger) []Adapter {
	httpClient := &http.Client{Timeout: cfg.ProviderHTTPTimeout}
	opts := func(pc infra.ProviderConfig) Options {
		return Options{
			APIKey:         pc.APIKey,
			BaseURL:        pc.BaseURL,
			Model:          pc.Model,
			HTTPClient:     httpClient,
			Logger:         logger,
			RequestTimeout: cfg.ProviderHTTPTimeout,
		}
	}
	candidates := []struct {
		provider domain.Provider
		pc       infra.ProviderConfig
		build    func(Options) Adapter
	}{
		{domain.ProviderSora, cfg.Sora, func(o Options) Adapter { return NewSora(o) }},
		{domain.ProviderSeedance, cfg.Seedance, func(o Options) Adapter { return NewSeedance(o) }},
		{domain.ProviderKling, cfg.Kling, func(o Options) Adapter { return NewKling(o) }},
	}

	var out []Adapter
	for _, c := range candidates {
		if c.pc.APIKey == "" {
			logger.Warn().Str("provider", string(c.provider)).Msg("video: api key missing, provider disabled")
			continue
		}
		out = append(out, c.build(opts(c.pc)))
	}
	return out
}

// PollOnly lists the providers among adapters that never call back.
func PollOnly(adapters []Adapter) []domain.Provider {
	var out []domain.Provider
	for _, a := range adapters {
		if !a.SupportsWebhook() {
			out = append(out, a.Name())
		}
	}
	return out
}
