package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/internal/domain/providers"
	"github.com/smartcare-health/smartqueue/internal/domain/repositories"
)

// ActivityStats aggregates the in-memory log.
type ActivityStats struct {
	Total            int                           `json:"total"`
	ByType           map[entities.ActivityType]int `json:"by_type"`
	ByBand           map[entities.SeverityBand]int `json:"by_band"`
	Overrides        int                           `json:"overrides"`
	OverridesByActor map[string]int                `json:"overrides_by_actor"`
}

// ActivityLog is the append-only audit trail. Entries are held in memory
// in arrival order; a durable repository and an event bus are optional
// write-behind sinks, and failures there never fail the mutation that
// produced the entry.
type ActivityLog struct {
	repo     repositories.ActivityRepository
	eventBus providers.EventBus

	mu        sync.Mutex
	entries   []*entities.ActivityEntry
	overrides []*entities.OverrideEntry
}

// NewActivityLog creates an activity log. repo and eventBus may be nil.
func NewActivityLog(repo repositories.ActivityRepository, eventBus providers.EventBus) *ActivityLog {
	return &ActivityLog{repo: repo, eventBus: eventBus}
}

// Record appends one entry to the log and fans it out to the durable sink
// and the event bus. The in-memory append completes before return, so the
// mutation that produced the entry is fully audited once Record returns.
func (l *ActivityLog) Record(ctx context.Context, actor string, payload entities.ActivityPayload) *entities.ActivityEntry {
	entry := &entities.ActivityEntry{
		ID:        uuid.New().String(),
		Type:      payload.ActivityType(),
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.CreateActivity(ctx, entry); err != nil {
			log.Error().Err(err).Str("activity_id", entry.ID).Msg("failed to persist activity entry")
		}
	}

	l.publish(ctx, entry)
	return entry
}

// RecordOverride appends one override audit record. Exactly one record is
// written per override request, including repeats on an already promoted
// entry.
func (l *ActivityLog) RecordOverride(ctx context.Context, entry *entities.OverrideEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	l.overrides = append(l.overrides, entry)
	l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.CreateOverride(ctx, entry); err != nil {
			log.Error().Err(err).Str("override_id", entry.ID).Msg("failed to persist override entry")
		}
	}
}

// List returns entries newest first, optionally filtered by type. A limit
// of 0 means no cap.
func (l *ActivityLog) List(filter entities.ActivityType, limit int) []*entities.ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*entities.ActivityEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		entry := l.entries[i]
		if filter != "" && entry.Type != filter {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Overrides returns override records newest first, optionally filtered by
// department.
func (l *ActivityLog) Overrides(department string, limit int) []*entities.OverrideEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*entities.OverrideEntry
	for i := len(l.overrides) - 1; i >= 0; i-- {
		entry := l.overrides[i]
		if department != "" && entry.Department != department {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Stats aggregates counts by activity type and, for check-ins, by severity
// band.
func (l *ActivityLog) Stats() *ActivityStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := &ActivityStats{
		Total:            len(l.entries),
		ByType:           make(map[entities.ActivityType]int),
		ByBand:           make(map[entities.SeverityBand]int),
		Overrides:        len(l.overrides),
		OverridesByActor: make(map[string]int),
	}
	for _, entry := range l.entries {
		stats.ByType[entry.Type]++
		if p, ok := entry.Payload.(entities.CheckInPayload); ok {
			stats.ByBand[entities.SeverityBand(p.SeverityBand)]++
		}
	}
	for _, override := range l.overrides {
		stats.OverridesByActor[override.Actor]++
	}
	return stats
}

// publish derives a queue event from an entry and pushes it to the bus.
func (l *ActivityLog) publish(ctx context.Context, entry *entities.ActivityEntry) {
	if l.eventBus == nil {
		return
	}

	event, channel := eventFor(entry)
	if event == nil {
		return
	}

	if err := l.eventBus.Publish(ctx, providers.EventChannelQueueUpdates, event); err != nil {
		log.Error().Err(err).Str("activity_id", entry.ID).Msg("failed to publish queue event")
	}
	if channel != "" && channel != providers.EventChannelQueueUpdates {
		if err := l.eventBus.Publish(ctx, channel, event); err != nil {
			log.Error().Err(err).Str("activity_id", entry.ID).Msg("failed to publish queue event")
		}
	}
}

// eventFor maps an activity entry to the queue event broadcast for it and
// the department- or pool-specific channel it also belongs on.
func eventFor(entry *entities.ActivityEntry) (*entities.QueueEvent, string) {
	switch p := entry.Payload.(type) {
	case entities.CheckInPayload:
		return entities.NewQueueEvent(p.Department, entities.QueueEventTypeCheckIn, map[string]interface{}{
			"token":          p.Token,
			"severity_band":  p.SeverityBand,
			"queue_position": p.QueuePosition,
		}), providers.GetDepartmentChannel(p.Department)
	case entities.PatientCalledPayload:
		return entities.NewQueueEvent(p.Department, entities.QueueEventTypePatientCalled, map[string]interface{}{
			"token": p.Token,
		}), providers.GetDepartmentChannel(p.Department)
	case entities.PatientCompletedPayload:
		return entities.NewQueueEvent(p.Department, entities.QueueEventTypePatientCompleted, map[string]interface{}{
			"token": p.Token,
		}), providers.GetDepartmentChannel(p.Department)
	case entities.EmergencyOverridePayload:
		return entities.NewQueueEvent(p.Department, entities.QueueEventTypeOverride, map[string]interface{}{
			"token":          p.Token,
			"severity_after": p.SeverityAfter,
		}), providers.GetDepartmentChannel(p.Department)
	case entities.DoctorAssignedPayload:
		return entities.NewQueueEvent(p.Department, entities.QueueEventTypeDoctorAssigned, map[string]interface{}{
			"doctor_id": p.DoctorID,
		}), providers.EventChannelPoolUpdates
	case entities.DoctorReleasedPayload:
		return entities.NewQueueEvent(p.Department, entities.QueueEventTypeDoctorReleased, map[string]interface{}{
			"doctor_id":     p.DoctorID,
			"patients_seen": p.PatientsSeen,
		}), providers.EventChannelPoolUpdates
	default:
		return nil, ""
	}
}
