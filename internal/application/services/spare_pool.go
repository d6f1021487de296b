package services

import (
	"sort"
	"sync"
	"time"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
)

// defaultMaxPatients is the session capacity assumed for a spare doctor
// registered without one.
const defaultMaxPatients = 10

// PoolSnapshot is a point-in-time view of the spare pool.
type PoolSnapshot struct {
	Available []*entities.SpareDoctor `json:"available"`
	Assigned  []*entities.SpareDoctor `json:"assigned"`
}

// SparePool owns all SpareDoctor records. Every status transition takes
// the pool's single mutex and re-checks the doctor's status under it, so a
// doctor can never be assigned to two departments even under concurrent
// allocator runs.
type SparePool struct {
	mu      sync.Mutex
	doctors map[string]*entities.SpareDoctor
}

// NewSparePool creates an empty pool.
func NewSparePool() *SparePool {
	return &SparePool{doctors: make(map[string]*entities.SpareDoctor)}
}

// AddDoctor registers a doctor into the pool as available.
func (p *SparePool) AddDoctor(doctor *entities.SpareDoctor) error {
	if doctor.ID == "" {
		return apperrors.NewValidationError("spare doctor id is required")
	}
	if doctor.Specialty == "" {
		return apperrors.NewValidationError("spare doctor specialty is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.doctors[doctor.ID]; exists {
		return apperrors.NewConflictError("spare doctor already registered: " + doctor.ID)
	}

	if doctor.MaxPatients <= 0 {
		doctor.MaxPatients = defaultMaxPatients
	}
	doctor.Status = entities.SpareAvailable
	doctor.AssignedDepartment = ""
	doctor.AssignedAt = nil
	doctor.PatientsSeen = 0

	p.doctors[doctor.ID] = doctor
	return nil
}

// Assign transitions a doctor from available to assigned. The status check
// and the transition happen under one lock acquisition; a doctor that is
// not available at that moment yields a conflict, not a reassignment.
func (p *SparePool) Assign(doctorID, department string, now time.Time) (*entities.SpareDoctor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doctor, ok := p.doctors[doctorID]
	if !ok {
		return nil, apperrors.NewNotFoundError("spare doctor not found: " + doctorID)
	}
	if doctor.Status != entities.SpareAvailable {
		return nil, apperrors.NewConflictError("spare doctor not available: " + doctorID)
	}

	doctor.Status = entities.SpareAssigned
	doctor.AssignedDepartment = department
	assignedAt := now
	doctor.AssignedAt = &assignedAt
	doctor.PatientsSeen = 0

	copied := *doctor
	return &copied, nil
}

// Release transitions a doctor back to available and returns its final
// session state. Releasing an unassigned doctor is a conflict.
func (p *SparePool) Release(doctorID string) (*entities.SpareDoctor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doctor, ok := p.doctors[doctorID]
	if !ok {
		return nil, apperrors.NewNotFoundError("spare doctor not found: " + doctorID)
	}
	if doctor.Status != entities.SpareAssigned {
		return nil, apperrors.NewConflictError("spare doctor not assigned: " + doctorID)
	}

	final := *doctor

	doctor.Status = entities.SpareAvailable
	doctor.AssignedDepartment = ""
	doctor.AssignedAt = nil
	doctor.PatientsSeen = 0

	return &final, nil
}

// RecordPatientSeen increments the session counter of an assigned doctor
// and returns the updated record. Release on reaching the session target
// stays with the caller so an in-progress consultation is never abandoned.
func (p *SparePool) RecordPatientSeen(doctorID string) (*entities.SpareDoctor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doctor, ok := p.doctors[doctorID]
	if !ok {
		return nil, apperrors.NewNotFoundError("spare doctor not found: " + doctorID)
	}
	if doctor.Status != entities.SpareAssigned {
		return nil, apperrors.NewConflictError("spare doctor not assigned: " + doctorID)
	}

	doctor.PatientsSeen++
	copied := *doctor
	return &copied, nil
}

// Candidates returns copies of available doctors whose specialty fits the
// department, sorted by ID for deterministic iteration.
func (p *SparePool) Candidates(department string) []*entities.SpareDoctor {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*entities.SpareDoctor
	for _, doctor := range p.doctors {
		if doctor.Status != entities.SpareAvailable {
			continue
		}
		if !doctor.MatchesDepartment(department) {
			continue
		}
		copied := *doctor
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssignedTo returns copies of doctors currently assigned to a department.
func (p *SparePool) AssignedTo(department string) []*entities.SpareDoctor {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*entities.SpareDoctor
	for _, doctor := range p.doctors {
		if doctor.Status == entities.SpareAssigned && doctor.AssignedDepartment == department {
			copied := *doctor
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssignedCount returns how many doctors are assigned to a department.
func (p *SparePool) AssignedCount(department string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, doctor := range p.doctors {
		if doctor.Status == entities.SpareAssigned && doctor.AssignedDepartment == department {
			n++
		}
	}
	return n
}

// Get returns a copy of one doctor.
func (p *SparePool) Get(doctorID string) (*entities.SpareDoctor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doctor, ok := p.doctors[doctorID]
	if !ok {
		return nil, apperrors.NewNotFoundError("spare doctor not found: " + doctorID)
	}
	copied := *doctor
	return &copied, nil
}

// Snapshot returns copies of every doctor split by status.
func (p *SparePool) Snapshot() *PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := &PoolSnapshot{}
	for _, doctor := range p.doctors {
		copied := *doctor
		if doctor.Status == entities.SpareAssigned {
			snapshot.Assigned = append(snapshot.Assigned, &copied)
		} else {
			snapshot.Available = append(snapshot.Available, &copied)
		}
	}
	sort.Slice(snapshot.Available, func(i, j int) bool { return snapshot.Available[i].ID < snapshot.Available[j].ID })
	sort.Slice(snapshot.Assigned, func(i, j int) bool { return snapshot.Assigned[i].ID < snapshot.Assigned[j].ID })
	return snapshot
}
