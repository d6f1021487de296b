package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smartcare-health/smartqueue/internal/application/services"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
)

// QueueService defines the queue operations used by the handler.
type QueueService interface {
	CheckIn(ctx context.Context, req services.CheckInRequest) (*services.CheckInResult, error)
	CallNext(ctx context.Context, department string) (*entities.QueueEntry, error)
	CompleteCurrent(ctx context.Context, department, doctorID string) (*entities.QueueEntry, error)
	EmergencyOverride(ctx context.Context, entryID, reason, actor string) (*entities.OverrideEntry, error)
	QueueSnapshot(department string) (map[string][]*entities.QueueEntry, error)
	QueueStats(department string) (*services.QueueStats, error)
	EstimateFor(entryID string) (*entities.WaitEstimate, error)
}

// ConsultationTracker tracks consultations performed by assigned spare
// doctors so their sessions wind down after enough patients.
type ConsultationTracker interface {
	RecordConsultation(ctx context.Context, doctorID string) error
}

// QueueHandler handles patient queue HTTP requests.
type QueueHandler struct {
	service QueueService
	tracker ConsultationTracker
}

// NewQueueHandler creates a new queue handler. tracker may be nil when no
// allocator is running.
func NewQueueHandler(service QueueService, tracker ConsultationTracker) *QueueHandler {
	return &QueueHandler{
		service: service,
		tracker: tracker,
	}
}

// CheckIn handles POST /api/queue/check-in
func (h *QueueHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req services.CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.CheckIn(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// CallNext handles POST /api/queue/{department}/call-next
func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	department := r.PathValue("department")
	if department == "" {
		respondWithError(w, http.StatusBadRequest, "department is required")
		return
	}

	entry, err := h.service.CallNext(r.Context(), department)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if entry == nil {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"department": department,
			"entry":      nil,
			"message":    "queue is empty",
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"department": department,
		"entry":      entry,
	})
}

type completeRequest struct {
	DoctorID string `json:"doctor_id"`
}

// Complete handles POST /api/queue/{department}/complete
func (h *QueueHandler) Complete(w http.ResponseWriter, r *http.Request) {
	department := r.PathValue("department")
	if department == "" {
		respondWithError(w, http.StatusBadRequest, "department is required")
		return
	}

	var req completeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
	}
	req.DoctorID = strings.TrimSpace(req.DoctorID)

	entry, err := h.service.CompleteCurrent(r.Context(), department, req.DoctorID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	// Consultations by spare doctors count toward the session target that
	// eventually releases them back to the pool.
	if req.DoctorID != "" && h.tracker != nil {
		if err := h.tracker.RecordConsultation(r.Context(), req.DoctorID); err != nil && !apperrors.IsNotFound(err) && !apperrors.IsConflict(err) {
			respondWithServiceError(w, err)
			return
		}
	}

	respondWithJSON(w, http.StatusOK, entry)
}

type overrideRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// EmergencyOverride handles POST /api/queue/entries/{id}/override
func (h *QueueHandler) EmergencyOverride(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")
	if entryID == "" {
		respondWithError(w, http.StatusBadRequest, "entry ID is required")
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	record, err := h.service.EmergencyOverride(r.Context(), entryID, req.Reason, req.Actor)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, record)
}

// GetQueue handles GET /api/queue/{department}
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	department := r.PathValue("department")
	if department == "" {
		respondWithError(w, http.StatusBadRequest, "department is required")
		return
	}

	snapshot, err := h.service.QueueSnapshot(department)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	entries := snapshot[department]
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"department": department,
		"entries":    entries,
		"count":      len(entries),
	})
}

// GetStats handles GET /api/queue/{department}/stats
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	department := r.PathValue("department")
	if department == "" {
		respondWithError(w, http.StatusBadRequest, "department is required")
		return
	}

	stats, err := h.service.QueueStats(department)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// GetEstimate handles GET /api/queue/entries/{id}/estimate
func (h *QueueHandler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("id")
	if entryID == "" {
		respondWithError(w, http.StatusBadRequest, "entry ID is required")
		return
	}

	estimate, err := h.service.EstimateFor(entryID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, estimate)
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

func respondWithServiceError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case apperrors.ErrorTypeValidation:
			respondWithError(w, http.StatusBadRequest, appErr.Message)
		case apperrors.ErrorTypeNotFound:
			respondWithError(w, http.StatusNotFound, appErr.Message)
		case apperrors.ErrorTypeConflict:
			respondWithError(w, http.StatusConflict, appErr.Message)
		default:
			respondWithError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	respondWithError(w, http.StatusInternalServerError, "internal server error")
}
