package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/internal/domain/repositories"
	"github.com/smartcare-health/smartqueue/internal/infrastructure/clients/postgres"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
	"github.com/smartcare-health/smartqueue/pkg/retry"
)

// ActivityAdapter implements durable activity log storage in Postgres.
type ActivityAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewActivityAdapter creates a new activity adapter.
func NewActivityAdapter(client *postgres.Client) repositories.ActivityRepository {
	return &ActivityAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// CreateActivity inserts one activity log entry. The type-specific payload
// is stored as JSONB alongside the envelope columns.
func (a *ActivityAdapter) CreateActivity(ctx context.Context, entry *entities.ActivityEntry) error {
	if entry == nil {
		return apperrors.NewInternalError("activity entry is nil", fmt.Errorf("activity entry is nil"))
	}

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return apperrors.NewInternalError("failed to marshal activity payload", err)
	}

	record := goqu.Record{
		"id":         entry.ID,
		"type":       string(entry.Type),
		"actor":      entry.Actor,
		"payload":    payload,
		"created_at": entry.Timestamp,
	}

	query, args, err := a.db.Insert("activity_log").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build activity insert query", err)
	}

	err = retry.Do(ctx, retry.WriteBehind(), "activity insert", func() error {
		_, execErr := a.client.DB().ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return apperrors.NewInternalError("failed to create activity entry", err)
	}

	return nil
}

// CreateOverride inserts one emergency override audit record.
func (a *ActivityAdapter) CreateOverride(ctx context.Context, entry *entities.OverrideEntry) error {
	if entry == nil {
		return apperrors.NewInternalError("override entry is nil", fmt.Errorf("override entry is nil"))
	}

	record := goqu.Record{
		"id":               entry.ID,
		"token":            entry.Token,
		"patient_id":       entry.PatientID,
		"department":       entry.Department,
		"actor":            entry.Actor,
		"reason":           entry.Reason,
		"severity_before":  entry.SeverityBefore,
		"severity_after":   entry.SeverityAfter,
		"priority_before":  entry.PriorityBefore,
		"priority_after":   entry.PriorityAfter,
		"already_promoted": entry.AlreadyPromoted,
		"created_at":       entry.CreatedAt,
	}

	query, args, err := a.db.Insert("override_log").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build override insert query", err)
	}

	err = retry.Do(ctx, retry.WriteBehind(), "override insert", func() error {
		_, execErr := a.client.DB().ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return apperrors.NewInternalError("failed to create override entry", err)
	}

	return nil
}

// ListActivities returns entries recorded in [from, to), newest first.
func (a *ActivityAdapter) ListActivities(ctx context.Context, from, to time.Time, limit int) ([]*entities.ActivityEntry, error) {
	query, args, err := a.db.From("activity_log").
		Select("id", "type", "actor", "payload", "created_at").
		Where(
			goqu.C("created_at").Gte(from),
			goqu.C("created_at").Lt(to),
		).
		Order(goqu.C("created_at").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build activity list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list activity entries", err)
	}
	defer rows.Close()

	var entries []*entities.ActivityEntry
	for rows.Next() {
		var (
			entry       entities.ActivityEntry
			entryType   string
			rawPayload  []byte
		)
		if err := rows.Scan(&entry.ID, &entryType, &entry.Actor, &rawPayload, &entry.Timestamp); err != nil {
			return nil, apperrors.NewInternalError("failed to scan activity entry", err)
		}
		entry.Type = entities.ActivityType(entryType)
		payload, err := decodePayload(entry.Type, rawPayload)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to decode activity payload", err)
		}
		entry.Payload = payload
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate activity entries", err)
	}

	return entries, nil
}

// ListOverrides returns override records for a department, newest first.
func (a *ActivityAdapter) ListOverrides(ctx context.Context, department string, limit int) ([]*entities.OverrideEntry, error) {
	ds := a.db.From("override_log").
		Select(
			"id", "token", "patient_id", "department", "actor", "reason",
			"severity_before", "severity_after", "priority_before", "priority_after",
			"already_promoted", "created_at",
		)
	if department != "" {
		ds = ds.Where(goqu.C("department").Eq(department))
	}

	query, args, err := ds.Order(goqu.C("created_at").Desc()).Limit(uint(limit)).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build override list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list override entries", err)
	}
	defer rows.Close()

	var entries []*entities.OverrideEntry
	for rows.Next() {
		var entry entities.OverrideEntry
		if err := rows.Scan(
			&entry.ID, &entry.Token, &entry.PatientID, &entry.Department,
			&entry.Actor, &entry.Reason, &entry.SeverityBefore, &entry.SeverityAfter,
			&entry.PriorityBefore, &entry.PriorityAfter, &entry.AlreadyPromoted,
			&entry.CreatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan override entry", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate override entries", err)
	}

	return entries, nil
}

// decodePayload deserializes a stored payload into the concrete type
// matching the envelope's activity type.
func decodePayload(t entities.ActivityType, raw []byte) (entities.ActivityPayload, error) {
	var target entities.ActivityPayload
	switch t {
	case entities.ActivityCheckIn:
		target = &entities.CheckInPayload{}
	case entities.ActivityPatientCalled:
		target = &entities.PatientCalledPayload{}
	case entities.ActivityPatientCompleted:
		target = &entities.PatientCompletedPayload{}
	case entities.ActivityDoctorAssigned:
		target = &entities.DoctorAssignedPayload{}
	case entities.ActivityDoctorReleased:
		target = &entities.DoctorReleasedPayload{}
	case entities.ActivityAllocatorDecision:
		target = &entities.AllocatorDecisionPayload{}
	case entities.ActivityEmergencyOverride:
		target = &entities.EmergencyOverridePayload{}
	case entities.ActivitySystem:
		target = &entities.SystemPayload{}
	default:
		return nil, fmt.Errorf("unknown activity type: %s", t)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}
