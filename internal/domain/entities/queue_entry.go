package entities

import "time"

// EntryStatus is the lifecycle state of a queue entry.
type EntryStatus string

const (
	StatusWaiting        EntryStatus = "waiting"
	StatusCalled         EntryStatus = "called"
	StatusInConsultation EntryStatus = "in_consultation"
	StatusCompleted      EntryStatus = "completed"
)

// Active reports whether the status counts against the one-active-visit
// invariant (exactly one active entry per patient).
func (s EntryStatus) Active() bool {
	return s == StatusWaiting || s == StatusCalled || s == StatusInConsultation
}

// QueueEntry is one active visit. It is owned by its department's priority
// queue while waiting; ownership transfers to the calling doctor session on
// extraction.
type QueueEntry struct {
	ID          string `json:"id"`
	Token       string `json:"token"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	Department  string `json:"department"`

	Symptoms       []string       `json:"symptoms"`
	Description    string         `json:"description"`
	Duration       DurationBucket `json:"duration"`
	SelfSeverity   int            `json:"self_severity"`
	Age            int            `json:"age"`
	ChronicPresent bool           `json:"chronic_present"`

	SeverityScore int          `json:"severity_score"`
	SeverityBand  SeverityBand `json:"severity_band"`
	Explanation   []string     `json:"explanation"`
	PriorityScore float64      `json:"priority_score"`

	TeleconsultEligible bool `json:"teleconsult_eligible"`

	// Promoted marks an entry escalated by emergency override. Promoted
	// entries keep their severity ceiling across re-scores and sort ahead
	// of all non-promoted entries.
	Promoted bool `json:"promoted"`

	Status      EntryStatus `json:"status"`
	CheckInAt   time.Time   `json:"check_in_at"`
	CalledAt    *time.Time  `json:"called_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// WaitDuration returns how long the entry has been waiting at the given
// instant.
func (e *QueueEntry) WaitDuration(now time.Time) time.Duration {
	if now.Before(e.CheckInAt) {
		return 0
	}
	return now.Sub(e.CheckInAt)
}

// Critical reports whether the entry's severity is at or above the given
// critical threshold.
func (e *QueueEntry) Critical(threshold int) bool {
	return e.SeverityScore >= threshold
}
