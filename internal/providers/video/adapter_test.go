package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"vidgen/internal/domain"
)

type captureTransport struct {
	responses map[string]responseStub
	lastReq   *http.Request
	lastBody  []byte
	calls     int
	block     bool
}

type responseStub struct {
	status int
	body   []byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{responses: map[string]responseStub{}}
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	c.lastReq = req
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	if c.block {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	if stub, ok := c.responses[req.Method+" "+req.URL.Path]; ok {
		return &http.Response{
			StatusCode: stub.status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(bytes.NewReader(stub.body)),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSON(method, path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[method+" "+path] = responseStub{status: status, body: body}
}

func (c *captureTransport) setRaw(method, path string, status int, body string) {
	c.responses[method+" "+path] = responseStub{status: status, body: []byte(body)}
}

func (c *captureTransport) payload(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(c.lastBody, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return out
}

func opts(transport http.RoundTripper) Options {
	return Options{APIKey: "test-key", HTTPClient: &http.Client{Transport: transport}}
}

func providerErr(t *testing.T, err error) *domain.ProviderError {
	t.Helper()
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *domain.ProviderError, got %T %v", err, err)
	}
	return pe
}

func TestCallbackURL(t *testing.T) {
	got := CallbackURL("https://api.example.com/v1/webhooks/video/", "job-1", domain.ProviderKling, "")
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != "/v1/webhooks/video" {
		t.Fatalf("path = %q", u.Path)
	}
	if u.Query().Get("jobId") != "job-1" || u.Query().Get("provider") != "kling" {
		t.Fatalf("query = %q", u.RawQuery)
	}
	if u.Query().Has("token") {
		t.Fatalf("token should be omitted without a secret")
	}

	withSecret, _ := url.Parse(CallbackURL("https://api.example.com/v1/webhooks/video", "job-1", domain.ProviderKling, "s3cr3t"))
	if withSecret.Query().Get("token") != "s3cr3t" {
		t.Fatalf("token = %q", withSecret.Query().Get("token"))
	}
}

func TestMissingAPIKeyFailsFast(t *testing.T) {
	transport := newCaptureTransport()
	for _, a := range []Adapter{
		NewSora(Options{HTTPClient: &http.Client{Transport: transport}}),
		NewSeedance(Options{HTTPClient: &http.Client{Transport: transport}}),
		NewKling(Options{HTTPClient: &http.Client{Transport: transport}}),
	} {
		_, err := a.Submit(context.Background(), SubmitRequest{Prompt: "cat"})
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", a.Name(), err)
		}
	}
	if transport.calls != 0 {
		t.Fatalf("expected no HTTP calls, got %d", transport.calls)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		class  domain.ErrorClass
	}{
		{"server error", http.StatusBadGateway, `{"error":{"message":"upstream down"}}`, domain.ClassTransient},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, domain.ClassTransient},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"prompt rejected"}}`, domain.ClassPermanent},
		{"unauthorized", http.StatusUnauthorized, `{"detail":"bad token"}`, domain.ClassPermanent},
		{"undecodable success", http.StatusOK, `<html>`, domain.ClassTransient},
		{"empty success", http.StatusOK, ``, domain.ClassTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newCaptureTransport()
			transport.setRaw(http.MethodPost, "/v1/videos", tc.status, tc.body)
			_, err := NewSora(opts(transport)).Submit(context.Background(), SubmitRequest{Prompt: "cat"})
			pe := providerErr(t, err)
			if pe.Class != tc.class {
				t.Fatalf("class = %s, want %s (%v)", pe.Class, tc.class, err)
			}
			if tc.class == domain.ClassTransient && !errors.Is(err, domain.ErrProviderTransient) {
				t.Fatalf("expected ErrProviderTransient in chain")
			}
			if tc.class == domain.ClassPermanent && !errors.Is(err, domain.ErrProviderPermanent) {
				t.Fatalf("expected ErrProviderPermanent in chain")
			}
			if transport.calls != 1 {
				t.Fatalf("expected exactly one call, got %d", transport.calls)
			}
		})
	}
}

func TestDeadlineIsTransient(t *testing.T) {
	transport := newCaptureTransport()
	transport.block = true
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewSora(opts(transport)).Submit(ctx, SubmitRequest{Prompt: "cat"})
	pe := providerErr(t, err)
	if pe.Class != domain.ClassTransient {
		t.Fatalf("class = %s, want transient", pe.Class)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in chain, got %v", err)
	}
}

func TestSoraSubmitAndStatus(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(http.MethodPost, "/v1/videos", http.StatusOK, map[string]any{
		"id": "video_123", "object": "video", "status": "queued",
	})
	transport.setJSON(http.MethodGet, "/v1/videos/video_123", http.StatusOK, map[string]any{
		"id": "video_123", "status": "completed", "progress": 100,
	})
	sora := NewSora(opts(transport))
	if sora.SupportsWebhook() {
		t.Fatal("sora must be poll-only")
	}

	sub, err := sora.Submit(context.Background(), SubmitRequest{
		Prompt:      "a cat surfing",
		AspectRatio: "9:16",
		Duration:    8,
		CallbackURL: "https://ignored",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.NativeJobID != "video_123" || sub.NativeStatus != "queued" {
		t.Fatalf("submission = %+v", sub)
	}
	if got := transport.lastReq.Header.Get("Authorization"); got != "Bearer test-key" {
		t.Fatalf("authorization = %q", got)
	}
	body := transport.payload(t)
	if body["model"] != "sora-2" || body["size"] != "720x1280" || body["seconds"] != "8" {
		t.Fatalf("payload = %v", body)
	}
	if _, ok := body["callback_url"]; ok {
		t.Fatal("sora payload must not carry a callback")
	}

	report, err := sora.CheckStatus(context.Background(), "video_123")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if report.NativeStatus != "completed" {
		t.Fatalf("status = %q", report.NativeStatus)
	}
	if report.OutputURL != "https://api.openai.com/v1/videos/video_123/content" {
		t.Fatalf("output url = %q", report.OutputURL)
	}
}

func TestSeedanceAttachesWebhook(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(http.MethodPost, "/v1/models/bytedance/seedance-1-lite/predictions", http.StatusCreated, map[string]any{
		"id": "pred-1", "status": "starting",
	})
	seedance := NewSeedance(opts(transport))

	sub, err := seedance.Submit(context.Background(), SubmitRequest{
		JobID:        "job-1",
		Prompt:       "city at night",
		AspectRatio:  "16:9",
		SeedImageURL: "https://img.example.com/seed.png",
		Duration:     5,
		CallbackURL:  "https://api.example.com/v1/webhooks/video?jobId=job-1&provider=seedance",
		Options:      map[string]any{"fps": 24, "prompt": "ignored"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.NativeJobID != "pred-1" {
		t.Fatalf("native id = %q", sub.NativeJobID)
	}
	body := transport.payload(t)
	if body["webhook"] != "https://api.example.com/v1/webhooks/video?jobId=job-1&provider=seedance" {
		t.Fatalf("webhook = %v", body["webhook"])
	}
	input := body["input"].(map[string]any)
	if input["prompt"] != "city at night" || input["image"] != "https://img.example.com/seed.png" {
		t.Fatalf("input = %v", input)
	}
	if input["fps"] != float64(24) {
		t.Fatalf("options not forwarded: %v", input)
	}
}

func TestSeedanceStatusOutputShapes(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(http.MethodGet, "/v1/predictions/pred-1", http.StatusOK, map[string]any{
		"id": "pred-1", "status": "succeeded", "output": "https://cdn.example.com/v.mp4",
	})
	transport.setJSON(http.MethodGet, "/v1/predictions/pred-2", http.StatusOK, map[string]any{
		"id": "pred-2", "status": "succeeded", "output": []any{"https://cdn.example.com/w.mp4"},
	})
	transport.setJSON(http.MethodGet, "/v1/predictions/pred-3", http.StatusOK, map[string]any{
		"id": "pred-3", "status": "failed", "error": "nsfw",
	})
	seedance := NewSeedance(opts(transport))

	r1, err := seedance.CheckStatus(context.Background(), "pred-1")
	if err != nil || r1.OutputURL != "https://cdn.example.com/v.mp4" {
		t.Fatalf("pred-1 = %+v, %v", r1, err)
	}
	r2, err := seedance.CheckStatus(context.Background(), "pred-2")
	if err != nil || r2.OutputURL != "https://cdn.example.com/w.mp4" {
		t.Fatalf("pred-2 = %+v, %v", r2, err)
	}
	r3, err := seedance.CheckStatus(context.Background(), "pred-3")
	if err != nil || r3.Error != "nsfw" || r3.NativeStatus != "failed" {
		t.Fatalf("pred-3 = %+v, %v", r3, err)
	}
}

func TestKlingSubmitAndCodes(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(http.MethodPost, "/v1/videos/text2video", http.StatusOK, map[string]any{
		"code": 0, "message": "SUCCEED",
		"data": map[string]any{"task_id": "task-9", "task_status": "submitted"},
	})
	kling := NewKling(opts(transport))

	sub, err := kling.Submit(context.Background(), SubmitRequest{
		JobID:       "job-1",
		Prompt:      "waves",
		AspectRatio: "1:1",
		Duration:    10,
		CallbackURL: "https://api.example.com/v1/webhooks/video?jobId=job-1&provider=kling",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.NativeJobID != "task-9" || sub.NativeStatus != "submitted" {
		t.Fatalf("submission = %+v", sub)
	}
	body := transport.payload(t)
	if body["callback_url"] != "https://api.example.com/v1/webhooks/video?jobId=job-1&provider=kling" {
		t.Fatalf("callback_url = %v", body["callback_url"])
	}
	if body["duration"] != "10" || body["model_name"] != "kling-v1-6" || body["external_task_id"] != "job-1" {
		t.Fatalf("payload = %v", body)
	}

	transport.setJSON(http.MethodPost, "/v1/videos/text2video", http.StatusOK, map[string]any{
		"code": 1201, "message": "invalid params",
	})
	_, err = kling.Submit(context.Background(), SubmitRequest{Prompt: "waves"})
	if pe := providerErr(t, err); pe.Class != domain.ClassPermanent {
		t.Fatalf("class = %s, want permanent", pe.Class)
	}

	transport.setJSON(http.MethodPost, "/v1/videos/text2video", http.StatusOK, map[string]any{
		"code": 5001, "message": "server busy",
	})
	_, err = kling.Submit(context.Background(), SubmitRequest{Prompt: "waves"})
	if pe := providerErr(t, err); pe.Class != domain.ClassTransient {
		t.Fatalf("class = %s, want transient", pe.Class)
	}
}

func TestKlingStatus(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(http.MethodGet, "/v1/videos/text2video/task-9", http.StatusOK, map[string]any{
		"code": 0,
		"data": map[string]any{
			"task_id":     "task-9",
			"task_status": "succeed",
			"task_result": map[string]any{
				"videos": []any{map[string]any{"id": "v1", "url": "https://cdn.kling/v1.mp4", "duration": "5"}},
			},
		},
	})
	report, err := NewKling(opts(transport)).CheckStatus(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if report.NativeStatus != "succeed" || report.OutputURL != "https://cdn.kling/v1.mp4" {
		t.Fatalf("report = %+v", report)
	}
}
