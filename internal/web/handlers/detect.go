package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/photo-dedupe/internal/engine"
	"github.com/kozaktomas/photo-dedupe/internal/photostore"
	"github.com/kozaktomas/photo-dedupe/internal/similarity"
)

// DetectHandler handles duplicate detection endpoints
type DetectHandler struct {
	engine     *engine.Engine
	photos     photostore.Store
	jobManager *JobManager
}

// NewDetectHandler creates a new detect handler
func NewDetectHandler(eng *engine.Engine, photos photostore.Store, jm *JobManager) *DetectHandler {
	return &DetectHandler{
		engine:     eng,
		photos:     photos,
		jobManager: jm,
	}
}

// StartRequest represents a detection start request. The body is optional;
// force drops the cached result so the run sees library changes.
type StartRequest struct {
	Force bool `json:"force"`
}

// Start starts a new detection job
func (h *DetectHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Force {
		h.engine.InvalidateResults()
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID)

	go h.runDetectJob(job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(JobStatusPending),
	})
}

// Status returns the status of a detection job, including the result once
// the job completed
func (h *DetectHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// Events streams job events via SSE
func (h *DetectHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job
		},
	)
}

// Cancel cancels a detection job
func (h *DetectHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// runDetectJob runs the detection in the background
func (h *DetectHandler) runDetectJob(job *DetectJob) {
	ctx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel
	defer cancel()

	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Detection job started"})

	photos, err := h.photos.ListPhotos(ctx)
	if err != nil {
		h.failJob(job, fmt.Sprintf("failed to list photos: %v", err))
		return
	}

	job.mu.Lock()
	job.TotalPhotos = len(photos)
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "photos_counted", Data: map[string]int{"total": len(photos)}})

	result, err := h.engine.Detect(ctx, photos, func(stage similarity.Stage, fraction float64) {
		percent := int(fraction * 100)
		job.mu.Lock()
		job.Stage = stage
		job.Progress = percent
		job.mu.Unlock()
		job.SendEvent(JobEvent{
			Type: "progress",
			Data: map[string]any{
				"stage":    stage,
				"progress": percent,
			},
		})
	})

	if err != nil {
		if ctx.Err() != nil {
			job.mu.Lock()
			job.Status = JobStatusCancelled
			job.mu.Unlock()
			job.SendEvent(JobEvent{Type: "cancelled", Message: "Job was cancelled"})
			return
		}
		h.failJob(job, fmt.Sprintf("detection failed: %v", err))
		return
	}

	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.CompletedAt = &now
	job.Progress = 100
	job.Result = result
	job.mu.Unlock()

	// The completed event carries counts only; clients fetch the full
	// result from the status endpoint.
	job.SendEvent(JobEvent{Type: "completed", Data: map[string]int{
		"groups":  len(result.Groups),
		"orphans": len(result.Orphans),
	}})
}

func (h *DetectHandler) failJob(job *DetectJob, message string) {
	log.Printf("detect job %s failed: %s", job.ID, message)
	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = message
	job.CompletedAt = &now
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "job_error", Message: message})
}
