package entities

import "time"

// OverrideEntry is the audit record of a manual emergency escalation. One
// entry is written per override request, including repeats on an already
// promoted patient.
type OverrideEntry struct {
	ID              string    `json:"id"`
	Token           string    `json:"token"`
	PatientID       string    `json:"patient_id"`
	Department      string    `json:"department"`
	Actor           string    `json:"actor"`
	Reason          string    `json:"reason"`
	SeverityBefore  int       `json:"severity_before"`
	SeverityAfter   int       `json:"severity_after"`
	PriorityBefore  float64   `json:"priority_before"`
	PriorityAfter   float64   `json:"priority_after"`
	AlreadyPromoted bool      `json:"already_promoted"`
	CreatedAt       time.Time `json:"created_at"`
}
