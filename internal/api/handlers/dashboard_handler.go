package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/smartcare-health/smartqueue/internal/application/services"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
)

// DepartmentService defines the department operations used by the handler.
type DepartmentService interface {
	RegisterDepartment(dept entities.Department) error
	Departments() []string
	StatusFor(department string) (*entities.DepartmentStatus, error)
	CrowdStatus(ctx context.Context) ([]*entities.DepartmentStatus, error)
}

// AuditLog defines the audit trail reads used by the handler.
type AuditLog interface {
	List(filter entities.ActivityType, limit int) []*entities.ActivityEntry
	Overrides(department string, limit int) []*entities.OverrideEntry
	Stats() *services.ActivityStats
}

// DashboardHandler serves the staff dashboard: department state, crowd
// levels and the audit trail.
type DashboardHandler struct {
	departments DepartmentService
	audit       AuditLog
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(departments DepartmentService, audit AuditLog) *DashboardHandler {
	return &DashboardHandler{
		departments: departments,
		audit:       audit,
	}
}

// RegisterDepartment handles POST /api/departments
func (h *DashboardHandler) RegisterDepartment(w http.ResponseWriter, r *http.Request) {
	var dept entities.Department
	if err := json.NewDecoder(r.Body).Decode(&dept); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.departments.RegisterDepartment(dept); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, dept)
}

// ListDepartments handles GET /api/departments
func (h *DashboardHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	names := h.departments.Departments()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"departments": names,
		"count":       len(names),
	})
}

// GetDepartmentStatus handles GET /api/departments/{department}/status
func (h *DashboardHandler) GetDepartmentStatus(w http.ResponseWriter, r *http.Request) {
	department := r.PathValue("department")
	if department == "" {
		respondWithError(w, http.StatusBadRequest, "department is required")
		return
	}

	status, err := h.departments.StatusFor(department)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// GetCrowdStatus handles GET /api/dashboard/crowd
func (h *DashboardHandler) GetCrowdStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.departments.CrowdStatus(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"departments": statuses,
		"count":       len(statuses),
	})
}

// ListActivity handles GET /api/activity
func (h *DashboardHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 100)
	if !ok {
		return
	}

	filter := entities.ActivityType(r.URL.Query().Get("type"))
	entries := h.audit.List(filter, limit)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"activities": entries,
		"count":      len(entries),
	})
}

// GetActivityStats handles GET /api/activity/stats
func (h *DashboardHandler) GetActivityStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.audit.Stats())
}

// ListOverrides handles GET /api/overrides
func (h *DashboardHandler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, 100)
	if !ok {
		return
	}

	department := r.URL.Query().Get("department")
	overrides := h.audit.Overrides(department, limit)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

func parseLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}
