package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/sqlinline"
)

// Store reads and writes provider API keys kept in integration_tokens. It is
// the fallback when a key is not present in the environment.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider domain.Provider) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, string(provider))
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken stores key for provider, replacing any previous value.
func (s *Store) SetToken(ctx context.Context, provider domain.Provider, key string, props map[string]any) error {
	if _, ok := domain.ParseProvider(string(provider)); !ok {
		return fmt.Errorf("unsupported provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, key, props)
}

// Resolve fills in any empty key in cfg from the store. Lookup failures are
// returned per provider so callers can log them and continue with what they have.
func (s *Store) Resolve(ctx context.Context, cfg *infra.Config) map[domain.Provider]error {
	failures := map[domain.Provider]error{}
	targets := map[domain.Provider]*infra.ProviderConfig{
		domain.ProviderSora:     &cfg.Sora,
		domain.ProviderSeedance: &cfg.Seedance,
		domain.ProviderKling:    &cfg.Kling,
	}
	for provider, pc := range targets {
		if pc.APIKey != "" {
			continue
		}
		key, err := s.Token(ctx, provider)
		if err != nil {
			failures[provider] = err
			continue
		}
		pc.APIKey = key
	}
	return failures
}

func (s *Store) upsert(ctx context.Context, provider domain.Provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, string(provider), token, raw)
	return err
}
