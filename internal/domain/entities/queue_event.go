package entities

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// QueueEventType represents the type of queue event
type QueueEventType string

const (
	QueueEventTypeCheckIn          QueueEventType = "check_in"
	QueueEventTypePatientCalled    QueueEventType = "patient_called"
	QueueEventTypePatientCompleted QueueEventType = "patient_completed"
	QueueEventTypeOverride         QueueEventType = "emergency_override"
	QueueEventTypeRescore          QueueEventType = "queue_rescored"
	QueueEventTypeDoctorAssigned   QueueEventType = "doctor_assigned"
	QueueEventTypeDoctorReleased   QueueEventType = "doctor_released"
	QueueEventTypeCrowdLevelChange QueueEventType = "crowd_level_change"
)

// QueueEvent represents a real-time update for a department queue
type QueueEvent struct {
	ID            string                 `json:"id"`
	Department    string                 `json:"department"`
	EventType     QueueEventType         `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	ChangedFields map[string]interface{} `json:"changed_fields"`
}

// NewQueueEvent creates a new queue event
func NewQueueEvent(department string, eventType QueueEventType, changedFields map[string]interface{}) *QueueEvent {
	return &QueueEvent{
		ID:            generateEventID(),
		Department:    department,
		EventType:     eventType,
		Timestamp:     time.Now(),
		ChangedFields: changedFields,
	}
}

// generateEventID generates a unique event ID
func generateEventID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(8)
}

// randomString generates a random string of specified length
func randomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based if crypto/rand fails
		return time.Now().Format("150405.000")
	}
	return hex.EncodeToString(bytes)[:length]
}
