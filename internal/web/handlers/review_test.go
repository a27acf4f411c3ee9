package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-dedupe/internal/photo"
	"github.com/kozaktomas/photo-dedupe/internal/review"
)

// twoBurstPhotos builds two separate bursts: three photos around t=0 and
// two more far outside the candidate window.
func twoBurstPhotos() []photo.Photo {
	photos := burst(1, 0, 3)
	return append(photos, burst(10, 700_000, 2)...)
}

// createReviewHandlerForTest runs detection over the photos so the handler
// has a result to plan batches from.
func createReviewHandlerForTest(t *testing.T, photos []photo.Photo) *ReviewHandler {
	t.Helper()
	eng := testEngine(t)
	if len(photos) > 0 {
		if _, err := eng.Detect(context.Background(), photos, nil); err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
	}
	return NewReviewHandler(eng)
}

func TestReviewHandler_NextBatch_NoResult(t *testing.T) {
	handler := createReviewHandlerForTest(t, nil)

	body := bytes.NewBufferString(`{"owner_id": "alice"}`)
	req := httptest.NewRequest("POST", "/api/v1/batches/next", body)
	recorder := httptest.NewRecorder()

	handler.NextBatch(recorder, req)

	assertStatusCode(t, recorder, http.StatusConflict)
}

func TestReviewHandler_NextBatch_Success(t *testing.T) {
	handler := createReviewHandlerForTest(t, twoBurstPhotos())

	body := bytes.NewBufferString(`{"owner_id": "alice"}`)
	req := httptest.NewRequest("POST", "/api/v1/batches/next", body)
	recorder := httptest.NewRecorder()

	handler.NextBatch(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var batch review.Batch
	parseJSONResponse(t, recorder, &batch)

	if len(batch.Photos) != 5 {
		t.Errorf("expected 5 photos in batch, got %d", len(batch.Photos))
	}
	if len(batch.GroupIDs) != 2 {
		t.Errorf("expected 2 groups in batch, got %v", batch.GroupIDs)
	}
	if len(batch.Boundaries) != 2 || batch.Boundaries[0] != 0 || batch.Boundaries[1] != 3 {
		t.Errorf("expected boundaries [0 3], got %v", batch.Boundaries)
	}
}

func TestReviewHandler_NextBatch_Excludes(t *testing.T) {
	handler := createReviewHandlerForTest(t, twoBurstPhotos())

	body := bytes.NewBufferString(`{"exclude_ids": ["g0-1"]}`)
	req := httptest.NewRequest("POST", "/api/v1/batches/next", body)
	recorder := httptest.NewRecorder()

	handler.NextBatch(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var batch review.Batch
	parseJSONResponse(t, recorder, &batch)

	if len(batch.GroupIDs) != 1 || batch.GroupIDs[0] != "g700000-10" {
		t.Errorf("expected only the second group, got %v", batch.GroupIDs)
	}
}

func TestReviewHandler_NextBatch_InvalidJSON(t *testing.T) {
	handler := createReviewHandlerForTest(t, twoBurstPhotos())

	body := bytes.NewBufferString(`{invalid`)
	req := httptest.NewRequest("POST", "/api/v1/batches/next", body)
	recorder := httptest.NewRecorder()

	handler.NextBatch(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "invalid request body")
}

func TestReviewHandler_MarkProcessed_HidesGroup(t *testing.T) {
	handler := createReviewHandlerForTest(t, burst(1, 0, 3))

	body := bytes.NewBufferString(`{"group_ids": ["g0-1"], "permanent": false}`)
	req := httptest.NewRequest("POST", "/api/v1/groups/processed", body)
	recorder := httptest.NewRecorder()

	handler.MarkProcessed(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var result map[string]int
	parseJSONResponse(t, recorder, &result)
	if result["processed"] != 1 {
		t.Errorf("expected processed=1, got %d", result["processed"])
	}

	// The only group is cooling down now, so the next batch is empty.
	nextReq := httptest.NewRequest("POST", "/api/v1/batches/next", bytes.NewBufferString(`{}`))
	nextRec := httptest.NewRecorder()

	handler.NextBatch(nextRec, nextReq)

	assertStatusCode(t, nextRec, http.StatusNoContent)
}

func TestReviewHandler_MarkProcessed_MissingGroupIDs(t *testing.T) {
	handler := createReviewHandlerForTest(t, burst(1, 0, 3))

	body := bytes.NewBufferString(`{"permanent": true}`)
	req := httptest.NewRequest("POST", "/api/v1/groups/processed", body)
	recorder := httptest.NewRecorder()

	handler.MarkProcessed(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "group_ids is required")
}

func TestReviewHandler_Checkpoint_RoundTrip(t *testing.T) {
	handler := createReviewHandlerForTest(t, twoBurstPhotos())

	saveBody := bytes.NewBufferString(`{"group_ids": ["g0-1", "g700000-10"], "current_index": 3}`)
	saveReq := httptest.NewRequest("PUT", "/api/v1/checkpoints/alice", saveBody)
	saveReq = requestWithChiParams(saveReq, map[string]string{"ownerId": "alice"})
	saveRec := httptest.NewRecorder()

	handler.SaveCheckpoint(saveRec, saveReq)

	assertStatusCode(t, saveRec, http.StatusOK)

	getReq := httptest.NewRequest("GET", "/api/v1/checkpoints/alice", nil)
	getReq = requestWithChiParams(getReq, map[string]string{"ownerId": "alice"})
	getRec := httptest.NewRecorder()

	handler.GetCheckpoint(getRec, getReq)

	assertStatusCode(t, getRec, http.StatusOK)

	var restored CheckpointResponse
	parseJSONResponse(t, getRec, &restored)

	if restored.CurrentIndex != 3 {
		t.Errorf("expected current index 3, got %d", restored.CurrentIndex)
	}
	if restored.Batch == nil || len(restored.Batch.Photos) != 5 {
		t.Fatalf("expected restored batch of 5 photos, got %+v", restored.Batch)
	}

	delReq := httptest.NewRequest("DELETE", "/api/v1/checkpoints/alice", nil)
	delReq = requestWithChiParams(delReq, map[string]string{"ownerId": "alice"})
	delRec := httptest.NewRecorder()

	handler.ClearCheckpoint(delRec, delReq)

	assertStatusCode(t, delRec, http.StatusOK)

	againReq := httptest.NewRequest("GET", "/api/v1/checkpoints/alice", nil)
	againReq = requestWithChiParams(againReq, map[string]string{"ownerId": "alice"})
	againRec := httptest.NewRecorder()

	handler.GetCheckpoint(againRec, againReq)

	assertStatusCode(t, againRec, http.StatusNotFound)
	assertJSONError(t, againRec, "no checkpoint")
}

func TestReviewHandler_GetCheckpoint_MissingOwner(t *testing.T) {
	handler := createReviewHandlerForTest(t, nil)

	req := httptest.NewRequest("GET", "/api/v1/checkpoints/", nil)
	req = requestWithChiParams(req, map[string]string{})
	recorder := httptest.NewRecorder()

	handler.GetCheckpoint(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "missing owner ID")
}

func TestReviewHandler_GetCheckpoint_NoResult(t *testing.T) {
	handler := createReviewHandlerForTest(t, nil)

	req := httptest.NewRequest("GET", "/api/v1/checkpoints/alice", nil)
	req = requestWithChiParams(req, map[string]string{"ownerId": "alice"})
	recorder := httptest.NewRecorder()

	handler.GetCheckpoint(recorder, req)

	assertStatusCode(t, recorder, http.StatusConflict)
}

func TestReviewHandler_SaveCheckpoint_MissingGroupIDs(t *testing.T) {
	handler := createReviewHandlerForTest(t, burst(1, 0, 3))

	body := bytes.NewBufferString(`{"current_index": 2}`)
	req := httptest.NewRequest("PUT", "/api/v1/checkpoints/alice", body)
	req = requestWithChiParams(req, map[string]string{"ownerId": "alice"})
	recorder := httptest.NewRecorder()

	handler.SaveCheckpoint(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "group_ids is required")
}
