package services

import (
	"sort"
	"sync"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/pkg/config"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
)

// departmentState is the registry's mutable record for one department.
type departmentState struct {
	info          entities.Department
	spareAssigned int
	busySlots     int
}

// RegistryService tracks departments, doctor counts and consultation slot
// occupancy, and classifies crowd levels from utilization.
type RegistryService struct {
	cfg config.RegistryConfig

	mu          sync.RWMutex
	departments map[string]*departmentState
}

// NewRegistryService creates a registry with no departments.
func NewRegistryService(cfg config.RegistryConfig) *RegistryService {
	return &RegistryService{
		cfg:         cfg,
		departments: make(map[string]*departmentState),
	}
}

// Register adds a department. Re-registering an existing department is a
// conflict.
func (r *RegistryService) Register(dept entities.Department) error {
	if dept.Name == "" {
		return apperrors.NewValidationError("department name is required")
	}
	if dept.ActiveDoctors <= 0 {
		return apperrors.NewValidationError("department needs at least one active doctor")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.departments[dept.Name]; exists {
		return apperrors.NewConflictError("department already registered: " + dept.Name)
	}
	r.departments[dept.Name] = &departmentState{info: dept}
	return nil
}

// Departments returns all registered department names, sorted.
func (r *RegistryService) Departments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.departments))
	for name := range r.departments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists reports whether a department is registered.
func (r *RegistryService) Exists(department string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.departments[department]
	return ok
}

// BeginConsultation occupies one consultation slot. It conflicts when
// every doctor in the department already has a patient.
func (r *RegistryService) BeginConsultation(department string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.departments[department]
	if !ok {
		return apperrors.NewNotFoundError("department not registered: " + department)
	}
	if state.busySlots >= state.info.ActiveDoctors+state.spareAssigned {
		return apperrors.NewConflictError("all consultation slots busy in " + department)
	}
	state.busySlots++
	return nil
}

// EndConsultation frees one consultation slot.
func (r *RegistryService) EndConsultation(department string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.departments[department]
	if !ok {
		return apperrors.NewNotFoundError("department not registered: " + department)
	}
	if state.busySlots == 0 {
		return apperrors.NewConflictError("no consultation in progress in " + department)
	}
	state.busySlots--
	return nil
}

// AddSpare records a spare doctor joining the department.
func (r *RegistryService) AddSpare(department string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.departments[department]
	if !ok {
		return apperrors.NewNotFoundError("department not registered: " + department)
	}
	state.spareAssigned++
	return nil
}

// RemoveSpare records a spare doctor leaving the department.
func (r *RegistryService) RemoveSpare(department string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.departments[department]
	if !ok {
		return apperrors.NewNotFoundError("department not registered: " + department)
	}
	if state.spareAssigned == 0 {
		return apperrors.NewConflictError("no spare doctors assigned to " + department)
	}
	state.spareAssigned--
	return nil
}

// throughputPerDoctor is the assumed hourly patient throughput of one
// doctor, derived from the configured mean consultation length.
func (r *RegistryService) throughputPerDoctor() float64 {
	return 60.0 / float64(r.cfg.AvgConsultationMinutes)
}

// Utilization computes queueDepth / (totalDoctors * hourlyThroughput) for
// a department. A department with no doctors is fully utilized by
// definition when anyone is waiting.
func (r *RegistryService) Utilization(department string, queueDepth int) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.departments[department]
	if !ok {
		return 0, apperrors.NewNotFoundError("department not registered: " + department)
	}
	return r.utilizationLocked(state, queueDepth), nil
}

func (r *RegistryService) utilizationLocked(state *departmentState, queueDepth int) float64 {
	doctors := state.info.ActiveDoctors + state.spareAssigned
	if doctors == 0 {
		if queueDepth > 0 {
			return 1
		}
		return 0
	}
	return float64(queueDepth) / (float64(doctors) * r.throughputPerDoctor())
}

// CrowdLevelFor classifies a utilization value against the configured
// cutoffs.
func (r *RegistryService) CrowdLevelFor(utilization float64) entities.CrowdLevel {
	switch {
	case utilization > r.cfg.OverloadedThreshold:
		return entities.CrowdOverloaded
	case utilization >= r.cfg.BusyThreshold:
		return entities.CrowdBusy
	default:
		return entities.CrowdNormal
	}
}

// AvgConsultationMinutes returns the configured mean consultation length.
func (r *RegistryService) AvgConsultationMinutes() int {
	return r.cfg.AvgConsultationMinutes
}

// Status assembles a point-in-time view of one department. Queue depth and
// average wait come from the caller because the queue owns them.
func (r *RegistryService) Status(department string, queueDepth int, avgWaitMinutes float64) (*entities.DepartmentStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.departments[department]
	if !ok {
		return nil, apperrors.NewNotFoundError("department not registered: " + department)
	}

	utilization := r.utilizationLocked(state, queueDepth)
	return &entities.DepartmentStatus{
		Department:     state.info.Name,
		Code:           state.info.Code,
		QueueDepth:     queueDepth,
		Capacity:       state.info.Capacity,
		ActiveDoctors:  state.info.ActiveDoctors,
		SpareAssigned:  state.spareAssigned,
		BusySlots:      state.busySlots,
		Utilization:    utilization,
		CrowdLevel:     r.CrowdLevelFor(utilization),
		AvgWaitMinutes: avgWaitMinutes,
	}, nil
}
