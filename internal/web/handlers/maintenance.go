package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kozaktomas/photo-dedupe/internal/engine"
	"github.com/kozaktomas/photo-dedupe/internal/photostore"
)

// MaintenanceHandler handles store upkeep endpoints
type MaintenanceHandler struct {
	engine *engine.Engine
	photos photostore.Store
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(eng *engine.Engine, photos photostore.Store) *MaintenanceHandler {
	return &MaintenanceHandler{engine: eng, photos: photos}
}

// CleanupRequest lists the photo IDs that still exist. When empty, the
// current photo source is listed instead.
type CleanupRequest struct {
	ValidPhotoIDs []int64 `json:"valid_photo_ids"`
}

// Cleanup prunes fingerprints and cooldown records of photos that left the
// library. Responds with the number of pruned records per kind.
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	valid := make(map[int64]bool, len(req.ValidPhotoIDs))
	for _, id := range req.ValidPhotoIDs {
		valid[id] = true
	}

	if len(valid) == 0 {
		photos, err := h.photos.ListPhotos(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list photos")
			return
		}
		for _, p := range photos {
			valid[p.ID] = true
		}
	}

	stats, err := h.engine.CleanupStale(r.Context(), valid)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
