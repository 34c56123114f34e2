package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vidgen/internal/domain"
	"vidgen/internal/domain/jsoncfg"
	"vidgen/internal/reconcile"
)

type generateResponse struct {
	JobID    string           `json:"jobId"`
	ShortID  string           `json:"jobShortId"`
	Provider domain.Provider  `json:"provider"`
	Status   domain.JobStatus `json:"status"`
}

type pollRequest struct {
	JobID       string `json:"jobId"`
	Provider    string `json:"provider"`
	NativeJobID string `json:"nativeJobId"`
}

// VideosGenerate dispatches a new video job. It returns once a provider has
// accepted it; completion arrives later through webhooks or polls.
func (a *App) VideosGenerate(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	var req jsoncfg.VideoPrompt
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	res, err := a.Dispatcher.Dispatch(r.Context(), ownerID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, generateResponse{
		JobID:    res.JobID,
		ShortID:  res.ShortID,
		Provider: res.Provider,
		Status:   res.Status,
	})
}

// VideosPoll runs one provider status check for a job the caller owns.
func (a *App) VideosPoll(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	var req pollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId required")
		return
	}
	if _, err := a.ownedJob(r, req.JobID, ownerID); err != nil {
		a.fail(w, r, err)
		return
	}
	view, err := a.Reconciler.Poll(r.Context(), reconcile.PollRequest{
		JobID:       req.JobID,
		Provider:    req.Provider,
		NativeJobID: req.NativeJobID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

// VideoStatus reads the stored job without contacting the provider.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.ownedJob(r, jobID, ownerID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, reconcile.ViewOf(job))
}

// ownedJob hides other owners' jobs behind ErrNotFound.
func (a *App) ownedJob(r *http.Request, jobID, ownerID string) (*domain.Job, error) {
	job, err := a.Jobs.Get(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}
