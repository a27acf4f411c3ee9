package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-dedupe/internal/engine"
	"github.com/kozaktomas/photo-dedupe/internal/review"
)

// ReviewHandler handles the review queue endpoints: batch planning, processed
// marks and checkpoints. All of them work against the groups of the current
// detection result, so a detection run must have happened first.
type ReviewHandler struct {
	engine *engine.Engine
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(eng *engine.Engine) *ReviewHandler {
	return &ReviewHandler{engine: eng}
}

// NextBatchRequest represents a batch request.
type NextBatchRequest struct {
	OwnerID    string   `json:"owner_id"`
	ExcludeIDs []string `json:"exclude_ids"`
}

// MarkProcessedRequest marks groups as reviewed.
type MarkProcessedRequest struct {
	GroupIDs  []string `json:"group_ids"`
	Permanent bool     `json:"permanent"`
}

// SaveCheckpointRequest stores a review position.
type SaveCheckpointRequest struct {
	GroupIDs     []string `json:"group_ids"`
	CurrentIndex int      `json:"current_index"`
}

// CheckpointResponse is a restored checkpoint: the re-built batch and the
// index of the photo the owner stopped at.
type CheckpointResponse struct {
	Batch        *review.Batch `json:"batch"`
	CurrentIndex int           `json:"current_index"`
}

// NextBatch plans the next review batch for an owner. Responds 204 when no
// group is eligible and 409 when no detection result is available.
func (h *ReviewHandler) NextBatch(w http.ResponseWriter, r *http.Request) {
	var req NextBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result := h.engine.CachedResult()
	if result == nil {
		respondError(w, http.StatusConflict, "no detection result available, run detection first")
		return
	}

	batch, err := h.engine.NextBatch(r.Context(), req.OwnerID, result.Groups, req.ExcludeIDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to plan batch")
		return
	}
	if batch == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondJSON(w, http.StatusOK, batch)
}

// MarkProcessed records groups as reviewed, either for the cooldown window
// or permanently.
func (h *ReviewHandler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	var req MarkProcessedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if len(req.GroupIDs) == 0 {
		respondError(w, http.StatusBadRequest, "group_ids is required")
		return
	}

	if err := h.engine.MarkProcessed(r.Context(), req.GroupIDs, req.Permanent); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to mark groups processed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"processed": len(req.GroupIDs)})
}

// GetCheckpoint restores the owner's saved review position.
func (h *ReviewHandler) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "missing owner ID")
		return
	}

	result := h.engine.CachedResult()
	if result == nil {
		respondError(w, http.StatusConflict, "no detection result available, run detection first")
		return
	}

	batch, index, err := h.engine.GetCheckpoint(r.Context(), ownerID, result.Groups)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to restore checkpoint")
		return
	}
	if batch == nil {
		respondError(w, http.StatusNotFound, "no checkpoint")
		return
	}

	respondJSON(w, http.StatusOK, CheckpointResponse{Batch: batch, CurrentIndex: index})
}

// SaveCheckpoint stores the owner's review position.
func (h *ReviewHandler) SaveCheckpoint(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "missing owner ID")
		return
	}

	var req SaveCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if len(req.GroupIDs) == 0 {
		respondError(w, http.StatusBadRequest, "group_ids is required")
		return
	}

	if err := h.engine.SaveCheckpoint(r.Context(), ownerID, req.GroupIDs, req.CurrentIndex); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save checkpoint")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// ClearCheckpoint drops the owner's saved review position.
func (h *ReviewHandler) ClearCheckpoint(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "missing owner ID")
		return
	}

	if err := h.engine.ClearCheckpoint(r.Context(), ownerID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to clear checkpoint")
		return
	}

	log.Printf("checkpoint cleared for owner %s", sanitizeForLog(ownerID))
	respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
