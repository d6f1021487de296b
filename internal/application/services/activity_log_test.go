package services

import (
	"context"
	"testing"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/internal/domain/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_AppendsInOrder(t *testing.T) {
	log := NewActivityLog(nil, nil)
	ctx := context.Background()

	log.Record(ctx, "p1", entities.CheckInPayload{Token: "T1", Department: "cardiology", SeverityBand: "CRITICAL"})
	log.Record(ctx, "p2", entities.CheckInPayload{Token: "T2", Department: "cardiology", SeverityBand: "LOW"})
	log.Record(ctx, "cardiology", entities.PatientCalledPayload{Token: "T1", Department: "cardiology"})

	all := log.List("", 0)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, entities.ActivityPatientCalled, all[0].Type)
	assert.Equal(t, entities.ActivityCheckIn, all[1].Type)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].Timestamp.IsZero())
}

func TestList_FiltersByTypeAndLimit(t *testing.T) {
	log := NewActivityLog(nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		log.Record(ctx, "p", entities.CheckInPayload{Token: "T", Department: "d"})
	}
	log.Record(ctx, "allocator", entities.DoctorAssignedPayload{DoctorID: "d1", Department: "d"})

	checkIns := log.List(entities.ActivityCheckIn, 3)
	assert.Len(t, checkIns, 3)
	for _, entry := range checkIns {
		assert.Equal(t, entities.ActivityCheckIn, entry.Type)
	}

	assigned := log.List(entities.ActivityDoctorAssigned, 0)
	assert.Len(t, assigned, 1)
}

func TestStats_CountsByTypeAndBand(t *testing.T) {
	log := NewActivityLog(nil, nil)
	ctx := context.Background()

	log.Record(ctx, "p1", entities.CheckInPayload{Token: "T1", SeverityBand: "CRITICAL"})
	log.Record(ctx, "p2", entities.CheckInPayload{Token: "T2", SeverityBand: "CRITICAL"})
	log.Record(ctx, "p3", entities.CheckInPayload{Token: "T3", SeverityBand: "LOW"})
	log.Record(ctx, "d", entities.PatientCalledPayload{Token: "T1"})

	stats := log.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.ByType[entities.ActivityCheckIn])
	assert.Equal(t, 1, stats.ByType[entities.ActivityPatientCalled])
	assert.Equal(t, 2, stats.ByBand[entities.BandCritical])
	assert.Equal(t, 1, stats.ByBand[entities.BandLow])
}

func TestRecordOverride_ListsNewestFirstWithDepartmentFilter(t *testing.T) {
	log := NewActivityLog(nil, nil)
	ctx := context.Background()

	log.RecordOverride(ctx, &entities.OverrideEntry{Token: "T1", Department: "cardiology", Actor: "dr.chen"})
	log.RecordOverride(ctx, &entities.OverrideEntry{Token: "T2", Department: "neurology", Actor: "nurse.okafor"})
	log.RecordOverride(ctx, &entities.OverrideEntry{Token: "T3", Department: "cardiology", Actor: "dr.chen"})

	all := log.Overrides("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "T3", all[0].Token)

	cardio := log.Overrides("cardiology", 0)
	require.Len(t, cardio, 2)
	for _, entry := range cardio {
		assert.Equal(t, "cardiology", entry.Department)
		assert.NotEmpty(t, entry.ID)
	}

	stats := log.Stats()
	assert.Equal(t, 3, stats.Overrides)
	assert.Equal(t, 2, stats.OverridesByActor["dr.chen"])
	assert.Equal(t, 1, stats.OverridesByActor["nurse.okafor"])
}

func TestRecord_PublishesOneEventPerMutation(t *testing.T) {
	bus := newFakeEventBus()
	log := NewActivityLog(nil, bus)
	ctx := context.Background()

	log.Record(ctx, "p1", entities.CheckInPayload{Token: "T1", Department: "cardiology", SeverityBand: "URGENT"})
	log.Record(ctx, "cardiology", entities.PatientCalledPayload{Token: "T1", Department: "cardiology"})
	log.Record(ctx, "allocator", entities.DoctorAssignedPayload{DoctorID: "doc-1", Department: "cardiology"})

	broadcast := bus.publishedOn(providers.EventChannelQueueUpdates)
	require.Len(t, broadcast, 3)
	assert.Equal(t, entities.QueueEventTypeCheckIn, broadcast[0].EventType)
	assert.Equal(t, entities.QueueEventTypePatientCalled, broadcast[1].EventType)
	assert.Equal(t, entities.QueueEventTypeDoctorAssigned, broadcast[2].EventType)

	// Queue mutations also land on the department channel, pool mutations
	// on the pool channel.
	assert.Len(t, bus.publishedOn(providers.GetDepartmentChannel("cardiology")), 2)
	assert.Len(t, bus.publishedOn(providers.EventChannelPoolUpdates), 1)
}
