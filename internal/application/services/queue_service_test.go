package services

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/pkg/config"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Triage: config.TriageConfig{TeleconsultMaxSeverity: 4},
		Queue: config.QueueConfig{
			SeverityWeight:  0.40,
			WaitWeight:      0.30,
			AgeWeight:       0.15,
			ChronicWeight:   0.15,
			MaxWait:         2 * time.Hour,
			RescoreInterval: 5 * time.Minute,
		},
		Registry: config.RegistryConfig{
			BusyThreshold:          0.50,
			OverloadedThreshold:    0.85,
			AvgConsultationMinutes: 12,
		},
		Allocator: config.AllocatorConfig{
			AssignThreshold:       0.65,
			ReleaseUtilization:    0.45,
			CriticalSeverity:      7,
			MaxSparePerDepartment: 3,
			SessionTarget:         10,
		},
	}
}

func newTestQueueService(t *testing.T) (*QueueService, *ActivityLog) {
	t.Helper()

	cfg := testConfig()
	activity := NewActivityLog(nil, nil)
	svc := NewQueueService(
		cfg,
		NewRegistryService(cfg.Registry),
		NewTriageService(cfg.Triage),
		NewWaitEstimator(),
		activity,
		nil,
		nil,
	)
	require.NoError(t, svc.RegisterDepartment(entities.Department{
		Name:          "cardiology",
		Code:          "CAR",
		Capacity:      20,
		ActiveDoctors: 2,
	}))
	require.NoError(t, svc.RegisterDepartment(entities.Department{
		Name:          "general",
		Code:          "GEN",
		Capacity:      30,
		ActiveDoctors: 1,
	}))
	return svc, activity
}

func checkInRequest(patientID, department string, symptoms ...string) CheckInRequest {
	return CheckInRequest{
		PatientID:    patientID,
		PatientName:  "Patient " + patientID,
		Department:   department,
		Symptoms:     symptoms,
		Duration:     entities.DurationHours,
		SelfSeverity: 5,
		Age:          40,
	}
}

func TestCheckIn_ReturnsTokenPositionAndEstimate(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	result, err := svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "fever"))
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^SQ\d{8}0001$`), result.Token)
	assert.Equal(t, 1, result.QueuePosition)
	assert.NotZero(t, result.SeverityScore)
	assert.NotEmpty(t, result.Explanation)
	assert.Greater(t, result.EstimatedWait.UpperMinutes, 0.0)
}

func TestCheckIn_TokensAreSequential(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	first, err := svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "fever"))
	require.NoError(t, err)
	second, err := svc.CheckIn(ctx, checkInRequest("p2", "general", "cold"))
	require.NoError(t, err)

	assert.Equal(t, first.Token[:10], second.Token[:10])
	assert.NotEqual(t, first.Token, second.Token)
}

func TestCheckIn_Validation(t *testing.T) {
	svc, activity := newTestQueueService(t)
	ctx := context.Background()

	cases := []CheckInRequest{
		{Department: "cardiology", Symptoms: []string{"fever"}, Duration: entities.DurationHours, SelfSeverity: 5},
		{PatientID: "p1", Symptoms: []string{"fever"}, Duration: entities.DurationHours, SelfSeverity: 5},
		{PatientID: "p1", Department: "cardiology", Duration: entities.DurationHours, SelfSeverity: 5},
		{PatientID: "p1", Department: "cardiology", Symptoms: []string{"fever"}, Duration: entities.DurationHours, SelfSeverity: 0},
		{PatientID: "p1", Department: "cardiology", Symptoms: []string{"fever"}, Duration: "whenever", SelfSeverity: 5},
	}
	for i, req := range cases {
		_, err := svc.CheckIn(ctx, req)
		assert.Error(t, err, "case %d", i)
		assert.True(t, apperrors.IsValidation(err), "case %d should be a validation error", i)
	}

	// Validation failures leave no trace in the audit log.
	assert.Zero(t, activity.Stats().Total)
}

func TestCheckIn_SecondActiveVisitConflicts(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "fever"))
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, checkInRequest("p1", "general", "cold"))
	assert.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestCheckIn_UnknownDepartment(t *testing.T) {
	svc, _ := newTestQueueService(t)

	_, err := svc.CheckIn(context.Background(), checkInRequest("p1", "radiology", "fever"))
	assert.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCheckIn_ConcurrentSameDepartment(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	results := make([]*CheckInResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.CheckIn(ctx, checkInRequest(fmt.Sprintf("p%d", i), "cardiology", "fever"))
			if err == nil {
				results[i] = result
			}
		}(i)
	}
	wg.Wait()

	queue, err := svc.QueueFor("cardiology")
	require.NoError(t, err)
	assert.Equal(t, n, queue.Len())

	tokens := make(map[string]bool)
	entries := make(map[string]bool)
	for _, result := range results {
		require.NotNil(t, result)
		assert.False(t, tokens[result.Token], "duplicate token %s", result.Token)
		assert.False(t, entries[result.EntryID], "duplicate entry %s", result.EntryID)
		tokens[result.Token] = true
		entries[result.EntryID] = true
	}
}

func TestCheckIn_CriticalTriggersHandler(t *testing.T) {
	svc, _ := newTestQueueService(t)

	triggered := make(chan string, 1)
	svc.SetCriticalHandler(func(department string) {
		triggered <- department
	})

	req := checkInRequest("p1", "cardiology", "chest_pain")
	req.Age = 70
	req.ChronicTags = []string{"heart_disease"}
	result, err := svc.CheckIn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 10, result.SeverityScore)

	select {
	case dept := <-triggered:
		assert.Equal(t, "cardiology", dept)
	case <-time.After(2 * time.Second):
		t.Fatal("critical handler was not invoked")
	}
}

func TestCallNext_EmptyQueueReturnsNilWithoutRegistryChange(t *testing.T) {
	svc, _ := newTestQueueService(t)

	entry, err := svc.CallNext(context.Background(), "cardiology")
	require.NoError(t, err)
	assert.Nil(t, entry)

	status, err := svc.StatusFor("cardiology")
	require.NoError(t, err)
	assert.Zero(t, status.BusySlots)
}

func TestCallNext_ReturnsHighestPriorityAndOccupiesSlot(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, checkInRequest("routine", "cardiology", "cold"))
	require.NoError(t, err)
	critical, err := svc.CheckIn(ctx, checkInRequest("critical", "cardiology", "chest_pain"))
	require.NoError(t, err)

	entry, err := svc.CallNext(ctx, "cardiology")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, critical.EntryID, entry.ID)
	assert.Equal(t, entities.StatusInConsultation, entry.Status)

	status, err := svc.StatusFor("cardiology")
	require.NoError(t, err)
	assert.Equal(t, 1, status.BusySlots)
	assert.Equal(t, 1, status.QueueDepth)
}

func TestCallNext_ConflictWhenAllSlotsBusy(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CheckIn(ctx, checkInRequest(fmt.Sprintf("p%d", i), "general", "fever"))
		require.NoError(t, err)
	}

	// general has one doctor.
	entry, err := svc.CallNext(ctx, "general")
	require.NoError(t, err)
	require.NotNil(t, entry)

	_, err = svc.CallNext(ctx, "general")
	assert.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	// The extracted entry went back to the queue, nothing was lost.
	queue, err := svc.QueueFor("general")
	require.NoError(t, err)
	assert.Equal(t, 2, queue.Len())
}

func TestCompleteCurrent_FinishesOldestConsultation(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "fever"))
	require.NoError(t, err)
	called, err := svc.CallNext(ctx, "cardiology")
	require.NoError(t, err)
	require.NotNil(t, called)

	completed, err := svc.CompleteCurrent(ctx, "cardiology", "")
	require.NoError(t, err)
	assert.Equal(t, called.ID, completed.ID)
	assert.Equal(t, entities.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)

	// Patient may check in again once completed.
	_, err = svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "fever"))
	assert.NoError(t, err)
}

func TestCompleteCurrent_WithoutConsultationConflicts(t *testing.T) {
	svc, _ := newTestQueueService(t)

	_, err := svc.CompleteCurrent(context.Background(), "cardiology", "")
	assert.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestEmergencyOverride_PromotesAndLogsExactlyOncePerCall(t *testing.T) {
	svc, activity := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, checkInRequest("urgent", "cardiology", "fracture"))
	require.NoError(t, err)
	routine, err := svc.CheckIn(ctx, checkInRequest("routine", "cardiology", "cold"))
	require.NoError(t, err)

	first, err := svc.EmergencyOverride(ctx, routine.EntryID, "visible deterioration", "nurse-4")
	require.NoError(t, err)
	assert.False(t, first.AlreadyPromoted)
	assert.Equal(t, entities.MaxSeverity, first.SeverityAfter)

	queue, err := svc.QueueFor("cardiology")
	require.NoError(t, err)
	head := queue.Peek()
	require.NotNil(t, head)
	assert.Equal(t, routine.EntryID, head.ID)

	// Second invocation is a no-op beyond logging.
	second, err := svc.EmergencyOverride(ctx, routine.EntryID, "repeat request", "nurse-4")
	require.NoError(t, err)
	assert.True(t, second.AlreadyPromoted)

	assert.Len(t, activity.Overrides("", 0), 2)
}

func TestEmergencyOverride_Validation(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.EmergencyOverride(ctx, "some-entry", "", "nurse")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.EmergencyOverride(ctx, "some-entry", "reason", "")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.EmergencyOverride(ctx, "missing", "reason", "nurse")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestQueueSnapshot_AllDepartments(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "fever"))
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, checkInRequest("p2", "general", "cold"))
	require.NoError(t, err)

	all, err := svc.QueueSnapshot("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, all["cardiology"], 1)
	assert.Len(t, all["general"], 1)

	one, err := svc.QueueSnapshot("cardiology")
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestCrowdStatus_CoversAllDepartments(t *testing.T) {
	svc, _ := newTestQueueService(t)

	statuses, err := svc.CrowdStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	for _, status := range statuses {
		assert.Equal(t, entities.CrowdNormal, status.CrowdLevel)
	}
}

func TestEstimateFor_ReflectsPosition(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "chest_pain"))
	require.NoError(t, err)
	second, err := svc.CheckIn(ctx, checkInRequest("p2", "cardiology", "cold"))
	require.NoError(t, err)

	estimate, err := svc.EstimateFor(second.EntryID)
	require.NoError(t, err)
	assert.Equal(t, 2, estimate.Position)
	assert.Equal(t, second.Token, estimate.Token)

	_, err = svc.EstimateFor("missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRescoreAll_CountsEntries(t *testing.T) {
	svc, activity := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "fever"))
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, checkInRequest("p2", "general", "cold"))
	require.NoError(t, err)

	assert.Equal(t, 2, svc.RescoreAll(ctx))
	assert.Equal(t, 1, activity.Stats().ByType[entities.ActivitySystem])
}

func TestQueueStats_CountsByBand(t *testing.T) {
	svc, _ := newTestQueueService(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, checkInRequest("p1", "cardiology", "chest_pain"))
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, checkInRequest("p2", "cardiology", "fever"))
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, checkInRequest("p3", "cardiology", "fever"))
	require.NoError(t, err)

	stats, err := svc.QueueStats("cardiology")
	require.NoError(t, err)

	assert.Equal(t, "cardiology", stats.Department)
	assert.Equal(t, 3, stats.Depth)
	assert.Equal(t, 1, stats.ByBand[entities.BandCritical])
	assert.Equal(t, 2, stats.ByBand[entities.BandModerate])
	assert.Equal(t, 1, stats.CriticalCount)
	assert.Equal(t, 0, stats.PromotedCount)
}

func TestQueueStats_UnknownDepartment(t *testing.T) {
	svc, _ := newTestQueueService(t)

	_, err := svc.QueueStats("nope")
	assert.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
