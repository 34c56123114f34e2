package video

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"vidgen/internal/domain"
)

// Kling talks to the Kling text-to-video API. It reports completion through
// callback_url. Kling answers HTTP 200 with a non-zero code for most
// rejections; codes in the 5000 range are server-side and retryable.
type Kling struct {
	client
}

type klingCreateRequest struct {
	ModelName   string `json:"model_name"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Mode        string `json:"mode,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
	ExternalID  string `json:"external_task_id,omitempty"`
}

type klingEnvelope struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Data      klingTask `json:"data"`
}

type klingTask struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Videos []struct {
			ID       string `json:"id"`
			URL      string `json:"url"`
			Duration string `json:"duration"`
		} `json:"videos"`
	} `json:"task_result"`
}

func NewKling(opts Options) *Kling {
	return &Kling{client: newClient(domain.ProviderKling, opts, "https://api.klingai.com", "kling-v1-6")}
}

func (k *Kling) Name() domain.Provider { return domain.ProviderKling }

func (k *Kling) SupportsWebhook() bool { return true }

func (k *Kling) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if err := k.requireCredentials(); err != nil {
		return nil, err
	}
	if req.SeedImageURL != "" {
		k.logger.Debug().Str("job_id", req.JobID).Msg("kling: seed image not supported on text2video, ignoring")
	}
	payload := klingCreateRequest{
		ModelName:   k.model,
		Prompt:      composePrompt(req.Prompt, req.Style),
		AspectRatio: req.AspectRatio,
		CallbackURL: req.CallbackURL,
		ExternalID:  req.JobID,
	}
	if req.Duration > 0 {
		payload.Duration = strconv.Itoa(req.Duration)
	}
	if mode, ok := req.Options["mode"].(string); ok {
		payload.Mode = mode
	}
	var out klingEnvelope
	if err := k.doJSON(ctx, http.MethodPost, "/v1/videos/text2video", payload, &out); err != nil {
		return nil, err
	}
	if err := k.codeError(out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Data.TaskID) == "" {
		return nil, k.transient(http.StatusOK, errMissingNativeID)
	}
	k.logger.Debug().Str("job_id", req.JobID).Str("native_job_id", out.Data.TaskID).Msg("kling: task submitted")
	return &Submission{NativeJobID: out.Data.TaskID, NativeStatus: out.Data.TaskStatus}, nil
}

func (k *Kling) CheckStatus(ctx context.Context, nativeJobID string) (*StatusReport, error) {
	if err := k.requireCredentials(); err != nil {
		return nil, err
	}
	var out klingEnvelope
	if err := k.doJSON(ctx, http.MethodGet, "/v1/videos/text2video/"+url.PathEscape(nativeJobID), nil, &out); err != nil {
		return nil, err
	}
	if err := k.codeError(out); err != nil {
		return nil, err
	}
	report := &StatusReport{NativeStatus: out.Data.TaskStatus, Raw: toMap(out.Data)}
	if videos := out.Data.TaskResult.Videos; len(videos) > 0 {
		report.OutputURL = videos[0].URL
	}
	if out.Data.TaskStatus == "failed" {
		report.Error = out.Data.TaskStatusMsg
	}
	return report, nil
}

func (k *Kling) codeError(env klingEnvelope) error {
	if env.Code == 0 {
		return nil
	}
	err := fmt.Errorf("%s (code %d)", env.Message, env.Code)
	if env.Code >= 5000 {
		return k.transient(http.StatusOK, err)
	}
	return k.permanent(http.StatusOK, err)
}

var _ Adapter = (*Kling)(nil)
