package video

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"vidgen/internal/domain"
)

// Sora talks to the OpenAI videos API. It is the primary provider and is
// poll-only: the API has no per-request callback.
type Sora struct {
	client
}

type soraCreateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Seconds string `json:"seconds,omitempty"`
	Size    string `json:"size,omitempty"`
}

type soraVideo struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Model    string `json:"model"`
	Seconds  string `json:"seconds"`
	Size     string `json:"size"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var soraSizes = map[string]string{
	"16:9": "1280x720",
	"9:16": "720x1280",
	"1:1":  "1024x1024",
	"4:3":  "1024x768",
	"3:4":  "768x1024",
}

func NewSora(opts Options) *Sora {
	return &Sora{client: newClient(domain.ProviderSora, opts, "https://api.openai.com/v1", "sora-2")}
}

func (s *Sora) Name() domain.Provider { return domain.ProviderSora }

func (s *Sora) SupportsWebhook() bool { return false }

func (s *Sora) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if err := s.requireCredentials(); err != nil {
		return nil, err
	}
	payload := soraCreateRequest{
		Model:  s.model,
		Prompt: composePrompt(req.Prompt, req.Style),
		Size:   soraSizes[req.AspectRatio],
	}
	if req.Duration > 0 {
		payload.Seconds = strconv.Itoa(req.Duration)
	}
	var out soraVideo
	if err := s.doJSON(ctx, http.MethodPost, "/videos", payload, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, s.transient(http.StatusOK, errMissingNativeID)
	}
	s.logger.Debug().Str("job_id", req.JobID).Str("native_job_id", out.ID).Msg("sora: video submitted")
	return &Submission{NativeJobID: out.ID, NativeStatus: out.Status}, nil
}

func (s *Sora) CheckStatus(ctx context.Context, nativeJobID string) (*StatusReport, error) {
	if err := s.requireCredentials(); err != nil {
		return nil, err
	}
	var out soraVideo
	if err := s.doJSON(ctx, http.MethodGet, "/videos/"+url.PathEscape(nativeJobID), nil, &out); err != nil {
		return nil, err
	}
	report := &StatusReport{NativeStatus: out.Status, Raw: toMap(out)}
	if out.Error != nil {
		report.Error = out.Error.Message
	}
	if out.Status == "completed" {
		// The finished asset is served from the content endpoint.
		report.OutputURL = s.baseURL + "/videos/" + url.PathEscape(out.ID) + "/content"
	}
	return report, nil
}

func composePrompt(prompt, style string) string {
	prompt = strings.TrimSpace(prompt)
	style = strings.TrimSpace(style)
	if style == "" {
		return prompt
	}
	return prompt + "\nStyle: " + style
}

var _ Adapter = (*Sora)(nil)
