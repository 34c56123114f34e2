package video

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"vidgen/internal/domain"
)

var errMissingNativeID = errors.New("response carried no job id")

// Seedance runs ByteDance Seedance through Replicate predictions. Replicate
// calls the webhook when the prediction completes.
type Seedance struct {
	client
}

type predictionRequest struct {
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

type prediction struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Status  string `json:"status"`
	Output  any    `json:"output"`
	Error   any    `json:"error"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

func NewSeedance(opts Options) *Seedance {
	return &Seedance{client: newClient(domain.ProviderSeedance, opts, "https://api.replicate.com/v1", "bytedance/seedance-1-lite")}
}

func (s *Seedance) Name() domain.Provider { return domain.ProviderSeedance }

func (s *Seedance) SupportsWebhook() bool { return true }

func (s *Seedance) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if err := s.requireCredentials(); err != nil {
		return nil, err
	}
	input := map[string]any{
		"prompt":       composePrompt(req.Prompt, req.Style),
		"aspect_ratio": req.AspectRatio,
	}
	if req.Duration > 0 {
		input["duration"] = req.Duration
	}
	if req.SeedImageURL != "" {
		input["image"] = req.SeedImageURL
	}
	for k, v := range req.Options {
		if _, taken := input[k]; !taken {
			input[k] = v
		}
	}
	payload := predictionRequest{Input: input}
	if req.CallbackURL != "" {
		payload.Webhook = req.CallbackURL
		payload.WebhookEventsFilter = []string{"completed"}
	}
	var out prediction
	path := "/models/" + s.model + "/predictions"
	if err := s.doJSON(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, s.transient(http.StatusOK, errMissingNativeID)
	}
	s.logger.Debug().Str("job_id", req.JobID).Str("native_job_id", out.ID).Msg("seedance: prediction created")
	return &Submission{NativeJobID: out.ID, NativeStatus: out.Status}, nil
}

func (s *Seedance) CheckStatus(ctx context.Context, nativeJobID string) (*StatusReport, error) {
	if err := s.requireCredentials(); err != nil {
		return nil, err
	}
	var out prediction
	if err := s.doJSON(ctx, http.MethodGet, "/predictions/"+url.PathEscape(nativeJobID), nil, &out); err != nil {
		return nil, err
	}
	report := &StatusReport{NativeStatus: out.Status, Raw: toMap(out)}
	switch v := out.Output.(type) {
	case string:
		report.OutputURL = v
	case []any:
		if len(v) > 0 {
			if first, ok := v[0].(string); ok {
				report.OutputURL = first
			}
		}
	}
	if msg, ok := out.Error.(string); ok {
		report.Error = msg
	}
	return report, nil
}

var _ Adapter = (*Seedance)(nil)
