package entities

import "time"

// ActivityType categorizes entries in the activity log.
type ActivityType string

const (
	ActivityCheckIn          ActivityType = "check_in"
	ActivityPatientCalled    ActivityType = "patient_called"
	ActivityPatientCompleted ActivityType = "patient_completed"
	ActivityDoctorAssigned   ActivityType = "doctor_assigned"
	ActivityDoctorReleased   ActivityType = "doctor_released"
	ActivityAllocatorDecision ActivityType = "allocator_decision"
	ActivityEmergencyOverride ActivityType = "emergency_override"
	ActivitySystem            ActivityType = "system"
)

// ActivityPayload is the type-specific half of an activity entry. Each
// concrete payload reports the ActivityType it belongs to so the envelope
// and payload can never disagree.
type ActivityPayload interface {
	ActivityType() ActivityType
}

// ActivityEntry is the common envelope shared by all log entries. Payload
// holds the variant-specific fields.
type ActivityEntry struct {
	ID        string          `json:"id"`
	Type      ActivityType    `json:"type"`
	Actor     string          `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   ActivityPayload `json:"payload"`
}

// CheckInPayload records a patient joining a department queue.
type CheckInPayload struct {
	Token         string `json:"token"`
	PatientID     string `json:"patient_id"`
	Department    string `json:"department"`
	SeverityScore int    `json:"severity_score"`
	SeverityBand  string `json:"severity_band"`
	QueuePosition int    `json:"queue_position"`
}

func (CheckInPayload) ActivityType() ActivityType { return ActivityCheckIn }

// PatientCalledPayload records a patient being called to consultation.
type PatientCalledPayload struct {
	Token       string  `json:"token"`
	PatientID   string  `json:"patient_id"`
	Department  string  `json:"department"`
	WaitMinutes float64 `json:"wait_minutes"`
}

func (PatientCalledPayload) ActivityType() ActivityType { return ActivityPatientCalled }

// PatientCompletedPayload records a finished consultation.
type PatientCompletedPayload struct {
	Token             string  `json:"token"`
	PatientID         string  `json:"patient_id"`
	Department        string  `json:"department"`
	ConsultationMins  float64 `json:"consultation_minutes"`
	SeenBySpareDoctor bool    `json:"seen_by_spare_doctor"`
	DoctorID          string  `json:"doctor_id,omitempty"`
}

func (PatientCompletedPayload) ActivityType() ActivityType { return ActivityPatientCompleted }

// DoctorAssignedPayload records a spare doctor joining a department.
type DoctorAssignedPayload struct {
	DoctorID    string  `json:"doctor_id"`
	DoctorName  string  `json:"doctor_name"`
	Department  string  `json:"department"`
	MatchScore  float64 `json:"match_score"`
	Utilization float64 `json:"utilization"`
}

func (DoctorAssignedPayload) ActivityType() ActivityType { return ActivityDoctorAssigned }

// DoctorReleasedPayload records a spare doctor returning to the pool.
type DoctorReleasedPayload struct {
	DoctorID     string `json:"doctor_id"`
	DoctorName   string `json:"doctor_name"`
	Department   string `json:"department"`
	PatientsSeen int    `json:"patients_seen"`
	Reason       string `json:"reason"`
}

func (DoctorReleasedPayload) ActivityType() ActivityType { return ActivityDoctorReleased }

// AllocatorDecisionPayload records one allocator evaluation of a
// department, whether or not it resulted in an assignment.
type AllocatorDecisionPayload struct {
	Department  string  `json:"department"`
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
	Executed    bool    `json:"executed"`
	Reason      string  `json:"reason"`
	ExtraNeeded int     `json:"extra_needed,omitempty"`
}

func (AllocatorDecisionPayload) ActivityType() ActivityType { return ActivityAllocatorDecision }

// EmergencyOverridePayload records a manual severity escalation.
type EmergencyOverridePayload struct {
	Token          string  `json:"token"`
	PatientID      string  `json:"patient_id"`
	Department     string  `json:"department"`
	SeverityBefore int     `json:"severity_before"`
	SeverityAfter  int     `json:"severity_after"`
	PriorityBefore float64 `json:"priority_before"`
	PriorityAfter  float64 `json:"priority_after"`
	Reason         string  `json:"reason"`
}

func (EmergencyOverridePayload) ActivityType() ActivityType { return ActivityEmergencyOverride }

// SystemPayload records engine lifecycle events such as rescore passes.
type SystemPayload struct {
	Event   string `json:"event"`
	Details string `json:"details,omitempty"`
}

func (SystemPayload) ActivityType() ActivityType { return ActivitySystem }
