// Package video holds one adapter per upstream video provider. Each adapter
// performs exactly one HTTP call per operation and never retries; fallback
// and retry policy belong to the dispatcher.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
)

// Adapter is the capability every provider exposes to the dispatcher and the
// reconciliation gateway.
type Adapter interface {
	Name() domain.Provider
	SupportsWebhook() bool
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)
	CheckStatus(ctx context.Context, nativeJobID string) (*StatusReport, error)
}

// SubmitRequest is the provider-neutral generation request.
type SubmitRequest struct {
	JobID        string
	Prompt       string
	AspectRatio  string
	SeedImageURL string
	Duration     int
	Style        string
	Options      map[string]any
	// CallbackURL is attached by webhook-capable adapters only.
	CallbackURL string
}

type Submission struct {
	NativeJobID  string
	NativeStatus string
}

type StatusReport struct {
	NativeStatus string
	OutputURL    string
	Error        string
	Raw          map[string]any
}

// Options configures a provider adapter.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// CallbackURL builds the webhook address a provider should notify for jobID.
// Providers cannot be asked to send custom headers, so a configured secret
// travels as the token query parameter.
func CallbackURL(base, jobID string, provider domain.Provider, secret string) string {
	q := url.Values{}
	q.Set("jobId", jobID)
	q.Set("provider", string(provider))
	if secret != "" {
		q.Set("token", secret)
	}
	return strings.TrimRight(base, "/") + "?" + q.Encode()
}

// client is the HTTP plumbing shared by the adapters.
type client struct {
	provider   domain.Provider
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

func newClient(provider domain.Provider, opts Options, defaultBaseURL, defaultModel string) client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return client{
		provider:   provider,
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *client) hasCredentials() bool {
	return c.apiKey != ""
}

func (c *client) requireCredentials() error {
	if !c.hasCredentials() {
		return fmt.Errorf("%s: api key is missing: %w", c.provider, domain.ErrConfiguration)
	}
	return nil
}

// doJSON sends payload (if any) to path and decodes a 2xx body into out.
// Every failure comes back as a *domain.ProviderError.
func (c *client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return c.permanent(0, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return c.permanent(0, fmt.Errorf("build request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return c.transient(0, fmt.Errorf("timeout: %w", err))
		}
		return c.transient(0, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.transient(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return c.statusError(resp.StatusCode, raw)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return c.transient(resp.StatusCode, errors.New("empty response body"))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.transient(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *client) statusError(code int, raw []byte) error {
	msg := errorMessage(raw)
	if msg == "" {
		msg = http.StatusText(code)
	}
	err := errors.New(msg)
	if code == http.StatusTooManyRequests || code >= 500 {
		return c.transient(code, err)
	}
	return c.permanent(code, err)
}

func (c *client) transient(code int, err error) error {
	return &domain.ProviderError{Provider: c.provider, Class: domain.ClassTransient, StatusCode: code, Err: err}
}

func (c *client) permanent(code int, err error) error {
	return &domain.ProviderError{Provider: c.provider, Class: domain.ClassPermanent, StatusCode: code, Err: err}
}

// errorMessage digs the human-readable message out of the common error
// envelopes: {"error":{"message"}}, {"error":"..."}, {"detail"}, {"message"}.
func errorMessage(raw []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Detail  string          `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return truncate(strings.TrimSpace(string(raw)), 200)
	}
	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil && s != "" {
			return s
		}
	}
	if envelope.Detail != "" {
		return envelope.Detail
	}
	return envelope.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
