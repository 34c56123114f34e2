package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vidgen/internal/dispatch"
	"vidgen/internal/domain"
	"vidgen/internal/domain/jsoncfg"
	"vidgen/internal/ledger"
	"vidgen/internal/middleware"
	"vidgen/internal/reconcile"
)

type stubDispatcher struct {
	res   *dispatch.Result
	err   error
	owner string
	req   jsoncfg.VideoPrompt
}

func (s *stubDispatcher) Dispatch(ctx context.Context, ownerID string, req jsoncfg.VideoPrompt) (*dispatch.Result, error) {
	s.owner, s.req = ownerID, req
	return s.res, s.err
}

type stubReconciler struct {
	view    *reconcile.JobView
	err     error
	event   reconcile.WebhookEvent
	polled  reconcile.PollRequest
	webhook int
}

func (s *stubReconciler) HandleWebhook(ctx context.Context, ev reconcile.WebhookEvent) (*reconcile.JobView, error) {
	s.event = ev
	s.webhook++
	return s.view, s.err
}

func (s *stubReconciler) Poll(ctx context.Context, req reconcile.PollRequest) (*reconcile.JobView, error) {
	s.polled = req
	return s.view, s.err
}

func newTestApp(logs *bytes.Buffer) (*App, *stubDispatcher, *stubReconciler, *ledger.Memory) {
	logger := zerolog.New(logs)
	jobs := ledger.NewMemory()
	d := &stubDispatcher{}
	rc := &stubReconciler{}
	return &App{Jobs: jobs, Dispatcher: d, Reconciler: rc, Logger: &logger}, d, rc, jobs
}

func withOwner(req *http.Request, owner string) *http.Request {
	return req.WithContext(middleware.ContextWithOwnerID(req.Context(), owner))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestVideosGenerateAccepted(t *testing.T) {
	app, d, _, _ := newTestApp(&bytes.Buffer{})
	d.res = &dispatch.Result{JobID: "job-1", ShortID: "abc", Provider: domain.ProviderSeedance, Status: domain.JobStatusRunning}

	body := `{"prompt":"a dog on a beach","aspectRatio":"9:16","brandId":"brand-1"}`
	req := withOwner(httptest.NewRequest(http.MethodPost, "/v1/videos/generate", strings.NewReader(body)), "owner-1")
	rec := httptest.NewRecorder()
	app.VideosGenerate(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["jobId"] != "job-1" || got["jobShortId"] != "abc" || got["provider"] != "seedance" || got["status"] != "running" {
		t.Fatalf("unexpected body %v", got)
	}
	if d.owner != "owner-1" || d.req.Prompt != "a dog on a beach" || d.req.AspectRatio != "9:16" || d.req.BrandID != "brand-1" {
		t.Fatalf("dispatcher saw owner=%q req=%+v", d.owner, d.req)
	}
}

func TestVideosGenerateRejections(t *testing.T) {
	app, _, _, _ := newTestApp(&bytes.Buffer{})

	rec := httptest.NewRecorder()
	app.VideosGenerate(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no owner: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.VideosGenerate(rec, withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), "owner-1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status = %d", rec.Code)
	}
}

func TestVideosGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{name: "validation", err: domain.Validationf("prompt is required"), code: http.StatusBadRequest, kind: "bad_request"},
		{name: "unauthorized", err: domain.ErrUnauthorized, code: http.StatusUnauthorized, kind: "unauthorized"},
		{name: "quota", err: domain.ErrQuotaExceeded, code: http.StatusPaymentRequired, kind: "quota_exceeded"},
		{
			name: "all failed",
			err:  &domain.AllProvidersFailedError{JobID: "job-1", Attempts: []error{errors.New("sora down")}},
			code: http.StatusBadGateway,
			kind: "all_providers_failed",
		},
		{name: "configuration", err: fmt.Errorf("dispatch: %w", domain.ErrConfiguration), code: http.StatusInternalServerError, kind: "configuration"},
		{name: "other", err: errors.New("db down"), code: http.StatusInternalServerError, kind: "internal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app, d, _, _ := newTestApp(&bytes.Buffer{})
			d.err = tc.err
			req := withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"x"}`)), "owner-1")
			rec := httptest.NewRecorder()
			app.VideosGenerate(rec, req)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			if got := decodeBody(t, rec)["error"]; got != tc.kind {
				t.Fatalf("error kind = %v, want %s", got, tc.kind)
			}
		})
	}
}

func TestVideosPollOwnerScoped(t *testing.T) {
	app, _, rc, jobs := newTestApp(&bytes.Buffer{})
	job, err := jobs.Create(context.Background(), "owner-1", domain.InputData{Prompt: "cat"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rc.view = &reconcile.JobView{JobID: job.ID, Status: domain.JobStatusChecking, Progress: 70}

	body := fmt.Sprintf(`{"jobId":%q,"provider":"sora","nativeJobId":"video_1"}`, job.ID)

	rec := httptest.NewRecorder()
	app.VideosPoll(rec, withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "owner-2"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign owner: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.VideosPoll(rec, withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "owner-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["status"] != "checking" || got["progress"] != float64(70) {
		t.Fatalf("unexpected body %v", got)
	}
	if rc.polled.Provider != "sora" || rc.polled.NativeJobID != "video_1" {
		t.Fatalf("poll request = %+v", rc.polled)
	}
}

func TestVideosPollUnknownJob(t *testing.T) {
	app, _, _, _ := newTestApp(&bytes.Buffer{})
	rec := httptest.NewRecorder()
	req := withOwner(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jobId":"missing"}`)), "owner-1")
	app.VideosPoll(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestVideoStatus(t *testing.T) {
	app, _, _, jobs := newTestApp(&bytes.Buffer{})
	job, err := jobs.Create(context.Background(), "owner-1", domain.InputData{Prompt: "cat", Provider: domain.ProviderSora})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("job_id", job.ID)
	req := httptest.NewRequest(http.MethodGet, "/v1/videos/"+job.ID, nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	app.VideoStatus(rec, withOwner(req, "owner-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody(t, rec)
	if got["jobId"] != job.ID || got["status"] != "queued" || got["provider"] != "sora" {
		t.Fatalf("unexpected body %v", got)
	}

	rec = httptest.NewRecorder()
	app.VideoStatus(rec, withOwner(req, "owner-2"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign owner: status = %d", rec.Code)
	}
}

func TestVideoWebhook(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		header     string
		err        error
		code       int
		wantSecret string
		wantLog    string
	}{
		{name: "missing params", target: "/v1/webhooks/video?jobId=job-1", code: http.StatusBadRequest},
		{name: "accepted via header", target: "/v1/webhooks/video?jobId=job-1&provider=kling", header: "s3cret", code: http.StatusOK, wantSecret: "s3cret"},
		{name: "token query", target: "/v1/webhooks/video?jobId=job-1&provider=kling&token=t0k", code: http.StatusOK, wantSecret: "t0k"},
		{name: "secret mismatch", target: "/v1/webhooks/video?jobId=job-1&provider=kling", err: domain.ErrUnauthorized, code: http.StatusUnauthorized},
		{name: "malformed body", target: "/v1/webhooks/video?jobId=job-1&provider=kling", err: domain.Validationf("bad body"), code: http.StatusOK, wantLog: "webhook not applied"},
		{name: "internal failure", target: "/v1/webhooks/video?jobId=job-1&provider=kling", err: errors.New("ledger down"), code: http.StatusOK, wantLog: `"status":500`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var logs bytes.Buffer
			app, _, rc, _ := newTestApp(&logs)
			rc.err = tc.err
			if tc.err == nil {
				rc.view = &reconcile.JobView{Status: domain.JobStatusReady}
			}
			req := httptest.NewRequest(http.MethodPost, tc.target, strings.NewReader(`{"status":"succeed"}`))
			if tc.header != "" {
				req.Header.Set(HeaderWebhookSecret, tc.header)
			}
			rec := httptest.NewRecorder()
			app.VideoWebhook(rec, req)

			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			if tc.code == http.StatusBadRequest {
				if rc.webhook != 0 {
					t.Fatalf("gateway called for invalid request")
				}
				return
			}
			if rc.event.JobID != "job-1" || rc.event.Provider != "kling" || string(rc.event.Body) != `{"status":"succeed"}` {
				t.Fatalf("event = %+v", rc.event)
			}
			if tc.wantSecret != "" && rc.event.Secret != tc.wantSecret {
				t.Fatalf("secret = %q, want %q", rc.event.Secret, tc.wantSecret)
			}
			if tc.wantLog != "" && !strings.Contains(logs.String(), tc.wantLog) {
				t.Fatalf("logs %q missing %q", logs.String(), tc.wantLog)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	app, _, _, _ := newTestApp(&bytes.Buffer{})
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	app.Ping = func(context.Context) error { return errors.New("pool closed") }
	rec = httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
}
