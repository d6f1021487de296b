package entities

import "time"

// SpareDoctorStatus is the two-state machine of a pool doctor. A doctor in
// the assigned state can only move back to available through an explicit
// release.
type SpareDoctorStatus string

const (
	SpareAvailable SpareDoctorStatus = "available"
	SpareAssigned  SpareDoctorStatus = "assigned"
)

// GeneralSpecialty marks a spare doctor eligible for any department.
const GeneralSpecialty = "general"

// SpareDoctor is a cross-facility doctor drawn into a department under
// load.
type SpareDoctor struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Specialty           string            `json:"specialty"`
	HospitalOrigin      string            `json:"hospital_origin"`
	Status              SpareDoctorStatus `json:"status"`
	AssignedDepartment  string            `json:"assigned_department,omitempty"`
	AssignedAt          *time.Time        `json:"assigned_at,omitempty"`
	PatientsSeen        int               `json:"patients_seen"`
	MaxPatients         int               `json:"max_patients"`
	SupportsTeleconsult bool              `json:"supports_teleconsult"`
}

// RemainingSlots returns how many more patients the doctor can take this
// session.
func (d *SpareDoctor) RemainingSlots() int {
	n := d.MaxPatients - d.PatientsSeen
	if n < 0 {
		return 0
	}
	return n
}

// MatchesDepartment reports whether the doctor's specialty fits the
// department, either exactly or as a general-purpose doctor.
func (d *SpareDoctor) MatchesDepartment(department string) bool {
	return d.Specialty == department || d.Specialty == GeneralSpecialty
}
