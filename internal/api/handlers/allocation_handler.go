package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/smartcare-health/smartqueue/internal/application/services"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
)

// AllocatorService defines the allocation operations used by the handler.
type AllocatorService interface {
	AutoAllocate(ctx context.Context, department string) (*services.AllocationSummary, error)
	ProtectWaitTimes(ctx context.Context, department string) (*services.ProtectionSummary, error)
	ReleaseDoctor(ctx context.Context, doctorID, reason string) error
	Decisions(limit int) []*entities.AllocationDecision
	Insights(department string) (*services.AllocationInsights, error)
	WaitImpact(department string) (*entities.WaitImpact, error)
	Pool() *services.SparePool
}

// AllocationHandler handles spare-doctor allocation HTTP requests.
type AllocationHandler struct {
	allocator AllocatorService
}

// NewAllocationHandler creates a new allocation handler.
func NewAllocationHandler(allocator AllocatorService) *AllocationHandler {
	return &AllocationHandler{
		allocator: allocator,
	}
}

// RunAllocation handles POST /api/allocator/run
func (h *AllocationHandler) RunAllocation(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")

	summary, err := h.allocator.AutoAllocate(r.Context(), department)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

// ProtectWaitTimes handles POST /api/allocator/protect
func (h *AllocationHandler) ProtectWaitTimes(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")

	summary, err := h.allocator.ProtectWaitTimes(r.Context(), department)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

// ListDecisions handles GET /api/allocator/decisions
func (h *AllocationHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	decisions := h.allocator.Decisions(limit)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// GetInsights handles GET /api/allocator/insights
func (h *AllocationHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.allocator.Insights(r.URL.Query().Get("department"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, insights)
}

// GetWaitImpact handles GET /api/allocator/impact/{department}
func (h *AllocationHandler) GetWaitImpact(w http.ResponseWriter, r *http.Request) {
	department := r.PathValue("department")
	if department == "" {
		respondWithError(w, http.StatusBadRequest, "department is required")
		return
	}

	impact, err := h.allocator.WaitImpact(department)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, impact)
}

type registerDoctorRequest struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Specialty           string `json:"specialty"`
	HospitalOrigin      string `json:"hospital_origin"`
	MaxPatients         int    `json:"max_patients"`
	SupportsTeleconsult bool   `json:"supports_teleconsult"`
}

// RegisterDoctor handles POST /api/pool/doctors
func (h *AllocationHandler) RegisterDoctor(w http.ResponseWriter, r *http.Request) {
	var req registerDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	doctor := &entities.SpareDoctor{
		ID:                  strings.TrimSpace(req.ID),
		Name:                strings.TrimSpace(req.Name),
		Specialty:           strings.TrimSpace(req.Specialty),
		HospitalOrigin:      strings.TrimSpace(req.HospitalOrigin),
		MaxPatients:         req.MaxPatients,
		SupportsTeleconsult: req.SupportsTeleconsult,
	}

	if err := h.allocator.Pool().AddDoctor(doctor); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, doctor)
}

type releaseDoctorRequest struct {
	Reason string `json:"reason"`
}

// ReleaseDoctor handles POST /api/pool/doctors/{id}/release
func (h *AllocationHandler) ReleaseDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID := r.PathValue("id")
	if doctorID == "" {
		respondWithError(w, http.StatusBadRequest, "doctor ID is required")
		return
	}

	var req releaseDoctorRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
	}

	if err := h.allocator.ReleaseDoctor(r.Context(), doctorID, req.Reason); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "released",
		"doctor_id": doctorID,
	})
}

// GetPool handles GET /api/pool
func (h *AllocationHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	snapshot := h.allocator.Pool().Snapshot()

	bySpecialty := make(map[string]int)
	for _, doctor := range snapshot.Available {
		bySpecialty[doctor.Specialty]++
	}
	for _, doctor := range snapshot.Assigned {
		bySpecialty[doctor.Specialty]++
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"available":    snapshot.Available,
		"assigned":     snapshot.Assigned,
		"by_specialty": bySpecialty,
	})
}
