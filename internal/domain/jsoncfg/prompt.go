package jsoncfg

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"vidgen/internal/domain"
)

// VideoPrompt is the provider-agnostic generation contract accepted by the
// dispatch endpoint.
type VideoPrompt struct {
	Prompt       string         `json:"prompt"`
	AspectRatio  string         `json:"aspectRatio"`
	SeedImageURL string         `json:"seedImageUrl"`
	Duration     int            `json:"duration"`
	Style        string         `json:"style"`
	Options      map[string]any `json:"options"`
	BrandID      string         `json:"brandId"`
}

var allowedAspectRatios = map[string]struct{}{
	"16:9": {},
	"9:16": {},
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
}

const (
	// DefaultAspectRatio is used when the request omits the aspect ratio.
	DefaultAspectRatio = "16:9"
	// DefaultDurationSeconds is the clip length requested from providers.
	DefaultDurationSeconds = 5
	// MaxDurationSeconds caps the clip length any provider is asked for.
	MaxDurationSeconds = 10
	// MaxPromptRunes bounds the prompt length forwarded upstream.
	MaxPromptRunes = 2000
)

// Normalize trims the request and applies server defaults.
func (p *VideoPrompt) Normalize() {
	if p == nil {
		return
	}
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.AspectRatio = strings.TrimSpace(p.AspectRatio)
	p.SeedImageURL = strings.TrimSpace(p.SeedImageURL)
	p.Style = strings.TrimSpace(p.Style)
	p.BrandID = strings.TrimSpace(p.BrandID)
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspectRatio
	}
	if p.Duration <= 0 {
		p.Duration = DefaultDurationSeconds
	}
	if p.Duration > MaxDurationSeconds {
		p.Duration = MaxDurationSeconds
	}
}

// Validate ensures the request satisfies the contract before any provider is tried.
func (p VideoPrompt) Validate() error {
	if p.Prompt == "" {
		return domain.Validationf("prompt is required")
	}
	if utf8.RuneCountInString(p.Prompt) > MaxPromptRunes {
		return domain.Validationf("prompt must be at most %d characters", MaxPromptRunes)
	}
	if _, ok := allowedAspectRatios[p.AspectRatio]; !ok {
		return domain.Validationf("aspectRatio must be one of 16:9, 9:16, 1:1, 4:3, 3:4")
	}
	if p.SeedImageURL != "" {
		u, err := url.Parse(p.SeedImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.Validationf("seedImageUrl must be an absolute http(s) url")
		}
	}
	return nil
}

// InputData converts the normalized request into the ledger snapshot.
func (p VideoPrompt) InputData() domain.InputData {
	return domain.InputData{
		Prompt:       p.Prompt,
		AspectRatio:  p.AspectRatio,
		SeedImageURL: p.SeedImageURL,
		Duration:     p.Duration,
		Style:        p.Style,
		Options:      p.Options,
		BrandID:      p.BrandID,
	}
}
