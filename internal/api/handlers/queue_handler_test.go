package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcare-health/smartqueue/internal/api/handlers"
	"github.com/smartcare-health/smartqueue/internal/application/services"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
)

type stubQueueService struct {
	checkInResult *services.CheckInResult
	checkInErr    error
	nextEntry     *entities.QueueEntry
	nextErr       error
	completed     *entities.QueueEntry
	completeErr   error
	completedWith string
	override      *entities.OverrideEntry
	overrideErr   error
	snapshot      map[string][]*entities.QueueEntry
	snapshotErr   error
	stats         *services.QueueStats
	statsErr      error
	estimate      *entities.WaitEstimate
	estimateErr   error
}

func (s *stubQueueService) CheckIn(ctx context.Context, req services.CheckInRequest) (*services.CheckInResult, error) {
	return s.checkInResult, s.checkInErr
}

func (s *stubQueueService) CallNext(ctx context.Context, department string) (*entities.QueueEntry, error) {
	return s.nextEntry, s.nextErr
}

func (s *stubQueueService) CompleteCurrent(ctx context.Context, department, doctorID string) (*entities.QueueEntry, error) {
	s.completedWith = doctorID
	return s.completed, s.completeErr
}

func (s *stubQueueService) EmergencyOverride(ctx context.Context, entryID, reason, actor string) (*entities.OverrideEntry, error) {
	return s.override, s.overrideErr
}

func (s *stubQueueService) QueueSnapshot(department string) (map[string][]*entities.QueueEntry, error) {
	return s.snapshot, s.snapshotErr
}

func (s *stubQueueService) QueueStats(department string) (*services.QueueStats, error) {
	return s.stats, s.statsErr
}

func (s *stubQueueService) EstimateFor(entryID string) (*entities.WaitEstimate, error) {
	return s.estimate, s.estimateErr
}

type stubTracker struct {
	recorded []string
	err      error
}

func (s *stubTracker) RecordConsultation(ctx context.Context, doctorID string) error {
	s.recorded = append(s.recorded, doctorID)
	return s.err
}

func TestQueueHandler_CheckIn_Success(t *testing.T) {
	service := &stubQueueService{
		checkInResult: &services.CheckInResult{
			EntryID:       "entry-1",
			Token:         "SQ202608290001",
			SeverityScore: 7,
			SeverityBand:  entities.BandUrgent,
			QueuePosition: 2,
		},
	}
	handler := handlers.NewQueueHandler(service, nil)

	body := `{"patient_id":"p-1","patient_name":"Ada","department":"cardiology","symptoms":["chest_pain"]}`
	req := httptest.NewRequest("POST", "/api/queue/check-in", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.CheckIn(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response services.CheckInResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "SQ202608290001", response.Token)
	assert.Equal(t, 7, response.SeverityScore)
}

func TestQueueHandler_CheckIn_InvalidJSON(t *testing.T) {
	handler := handlers.NewQueueHandler(&stubQueueService{}, nil)

	req := httptest.NewRequest("POST", "/api/queue/check-in", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	handler.CheckIn(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandler_CheckIn_ValidationError(t *testing.T) {
	service := &stubQueueService{
		checkInErr: apperrors.NewValidationError("patient_id is required"),
	}
	handler := handlers.NewQueueHandler(service, nil)

	req := httptest.NewRequest("POST", "/api/queue/check-in", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	handler.CheckIn(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "patient_id is required", response["error"])
}

func TestQueueHandler_CheckIn_ConflictMapsTo409(t *testing.T) {
	service := &stubQueueService{
		checkInErr: apperrors.NewConflictError("patient already has an active visit"),
	}
	handler := handlers.NewQueueHandler(service, nil)

	req := httptest.NewRequest("POST", "/api/queue/check-in", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	handler.CheckIn(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQueueHandler_CallNext_EmptyQueue(t *testing.T) {
	handler := handlers.NewQueueHandler(&stubQueueService{}, nil)

	req := httptest.NewRequest("POST", "/api/queue/cardiology/call-next", nil)
	req.SetPathValue("department", "cardiology")
	w := httptest.NewRecorder()

	handler.CallNext(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "queue is empty", response["message"])
	assert.Nil(t, response["entry"])
}

func TestQueueHandler_CallNext_ReturnsEntry(t *testing.T) {
	service := &stubQueueService{
		nextEntry: &entities.QueueEntry{ID: "entry-1", Token: "SQ202608290001"},
	}
	handler := handlers.NewQueueHandler(service, nil)

	req := httptest.NewRequest("POST", "/api/queue/cardiology/call-next", nil)
	req.SetPathValue("department", "cardiology")
	w := httptest.NewRecorder()

	handler.CallNext(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Entry *entities.QueueEntry `json:"entry"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.NotNil(t, response.Entry)
	assert.Equal(t, "SQ202608290001", response.Entry.Token)
}

func TestQueueHandler_CallNext_MissingDepartment(t *testing.T) {
	handler := handlers.NewQueueHandler(&stubQueueService{}, nil)

	req := httptest.NewRequest("POST", "/api/queue//call-next", nil)
	w := httptest.NewRecorder()

	handler.CallNext(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandler_Complete_RecordsSpareConsultation(t *testing.T) {
	service := &stubQueueService{
		completed: &entities.QueueEntry{ID: "entry-1", Status: entities.StatusCompleted},
	}
	tracker := &stubTracker{}
	handler := handlers.NewQueueHandler(service, tracker)

	req := httptest.NewRequest("POST", "/api/queue/cardiology/complete", strings.NewReader(`{"doctor_id":"doc-9"}`))
	req.SetPathValue("department", "cardiology")
	w := httptest.NewRecorder()

	handler.Complete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doc-9", service.completedWith)
	assert.Equal(t, []string{"doc-9"}, tracker.recorded)
}

func TestQueueHandler_Complete_NoDoctorSkipsTracker(t *testing.T) {
	service := &stubQueueService{
		completed: &entities.QueueEntry{ID: "entry-1", Status: entities.StatusCompleted},
	}
	tracker := &stubTracker{}
	handler := handlers.NewQueueHandler(service, tracker)

	req := httptest.NewRequest("POST", "/api/queue/cardiology/complete", nil)
	req.SetPathValue("department", "cardiology")
	w := httptest.NewRecorder()

	handler.Complete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, tracker.recorded)
}

func TestQueueHandler_Complete_TrackerNotFoundIgnored(t *testing.T) {
	service := &stubQueueService{
		completed: &entities.QueueEntry{ID: "entry-1", Status: entities.StatusCompleted},
	}
	tracker := &stubTracker{err: apperrors.NewNotFoundError("spare doctor not found: doc-1")}
	handler := handlers.NewQueueHandler(service, tracker)

	req := httptest.NewRequest("POST", "/api/queue/cardiology/complete", strings.NewReader(`{"doctor_id":"doc-1"}`))
	req.SetPathValue("department", "cardiology")
	w := httptest.NewRecorder()

	handler.Complete(w, req)

	// The completion itself succeeded; an unknown doctor only means the
	// consultation was not performed by a pooled spare.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQueueHandler_Complete_NothingInProgress(t *testing.T) {
	service := &stubQueueService{
		completeErr: apperrors.NewConflictError("no consultation in progress in cardiology"),
	}
	handler := handlers.NewQueueHandler(service, nil)

	req := httptest.NewRequest("POST", "/api/queue/cardiology/complete", nil)
	req.SetPathValue("department", "cardiology")
	w := httptest.NewRecorder()

	handler.Complete(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQueueHandler_EmergencyOverride_Success(t *testing.T) {
	service := &stubQueueService{
		override: &entities.OverrideEntry{
			ID:            "ovr-1",
			Token:         "SQ202608290001",
			SeverityAfter: 10,
			Actor:         "dr.chen",
		},
	}
	handler := handlers.NewQueueHandler(service, nil)

	body := `{"reason":"patient collapsed in waiting room","actor":"dr.chen"}`
	req := httptest.NewRequest("POST", "/api/queue/entries/entry-1/override", strings.NewReader(body))
	req.SetPathValue("id", "entry-1")
	w := httptest.NewRecorder()

	handler.EmergencyOverride(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response entities.OverrideEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 10, response.SeverityAfter)
}

func TestQueueHandler_EmergencyOverride_UnknownEntry(t *testing.T) {
	service := &stubQueueService{
		overrideErr: apperrors.NewNotFoundError("queue entry not found: nope"),
	}
	handler := handlers.NewQueueHandler(service, nil)

	req := httptest.NewRequest("POST", "/api/queue/entries/nope/override", strings.NewReader(`{"reason":"x","actor":"y"}`))
	req.SetPathValue("id", "nope")
	w := httptest.NewRecorder()

	handler.EmergencyOverride(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueHandler_GetQueue(t *testing.T) {
	service := &stubQueueService{
		snapshot: map[string][]*entities.QueueEntry{
			"cardiology": {
				{ID: "entry-1", Token: "SQ202608290001"},
				{ID: "entry-2", Token: "SQ202608290002"},
			},
		},
	}
	handler := handlers.NewQueueHandler(service, nil)

	req := httptest.NewRequest("GET", "/api/queue/cardiology", nil)
	req.SetPathValue("department", "cardiology")
	w := httptest.NewRecorder()

	handler.GetQueue(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Entries []*entities.QueueEntry `json:"entries"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 2, response.Count)
	assert.Len(t, response.Entries, 2)
}

func TestQueueHandler_GetStats(t *testing.T) {
	service := &stubQueueService{
		stats: &services.QueueStats{
			Department: "cardiology",
			Depth:      4,
			ByBand: map[entities.SeverityBand]int{
				entities.BandCritical: 1,
				entities.BandModerate: 3,
			},
			CriticalCount: 1,
		},
	}
	handler := handlers.NewQueueHandler(service, nil)

	req := httptest.NewRequest("GET", "/api/queue/cardiology/stats", nil)
	req.SetPathValue("department", "cardiology")
	w := httptest.NewRecorder()

	handler.GetStats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response services.QueueStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 4, response.Depth)
	assert.Equal(t, 1, response.ByBand[entities.BandCritical])
}

func TestQueueHandler_GetEstimate(t *testing.T) {
	service := &stubQueueService{
		estimate: &entities.WaitEstimate{
			Token:            "SQ202608290001",
			Position:         3,
			EstimatedMinutes: 24,
		},
	}
	handler := handlers.NewQueueHandler(service, nil)

	req := httptest.NewRequest("GET", "/api/queue/entries/entry-1/estimate", nil)
	req.SetPathValue("id", "entry-1")
	w := httptest.NewRecorder()

	handler.GetEstimate(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response entities.WaitEstimate
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 3, response.Position)
	assert.InDelta(t, 24, response.EstimatedMinutes, 0.001)
}
