package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/internal/infrastructure/observability"
	"github.com/smartcare-health/smartqueue/pkg/config"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
)

// Candidate score weights.
const (
	candidateWorkloadWeight     = 0.40
	candidateSpecialtyWeight    = 0.35
	candidateAvailabilityWeight = 0.25

	specialtyExact   = 1.0
	specialtyPartial = 0.5

	// availabilityDenominator normalizes remaining session slots.
	availabilityDenominator = 10.0
)

// Confidence factor weights.
const (
	confidenceUtilizationWeight = 0.30
	confidenceTrendWeight       = 0.25
	confidenceCriticalWeight    = 0.20
	confidenceWaitWeight        = 0.15
	confidenceTimeWeight        = 0.10

	// waitSaturationMinutes is the average wait at which the wait factor
	// saturates.
	waitSaturationMinutes = 60.0
)

// decisionHistoryCap bounds the in-memory decision history.
const decisionHistoryCap = 200

// AllocationSummary aggregates one auto-allocation pass.
type AllocationSummary struct {
	DepartmentsAnalyzed int                            `json:"departments_analyzed"`
	ActionsTaken        int                            `json:"actions_taken"`
	DoctorsAssigned     int                            `json:"doctors_assigned"`
	DoctorsReleased     int                            `json:"doctors_released"`
	Decisions           []*entities.AllocationDecision `json:"decisions"`
}

// ProtectionSummary aggregates one wait-time protection pass.
type ProtectionSummary struct {
	DepartmentsChecked   int                            `json:"departments_checked"`
	DepartmentsProtected int                            `json:"departments_protected"`
	DoctorsAssigned      int                            `json:"doctors_assigned"`
	Decisions            []*entities.AllocationDecision `json:"decisions"`
}

// AllocatorService decides when departments need spare doctors and moves
// them. Decisions are a deterministic greedy heuristic over current queue
// and registry state; each individual assignment is an atomic status
// transition on the pool.
type AllocatorService struct {
	cfg      config.AllocatorConfig
	queues   *QueueService
	pool     *SparePool
	activity *ActivityLog
	metrics  *observability.Metrics

	mu        sync.Mutex
	lastDepth map[string]int
	decisions []*entities.AllocationDecision
}

// NewAllocatorService creates the allocator. metrics may be nil.
func NewAllocatorService(
	cfg config.AllocatorConfig,
	queues *QueueService,
	pool *SparePool,
	activity *ActivityLog,
	metrics *observability.Metrics,
) *AllocatorService {
	return &AllocatorService{
		cfg:       cfg,
		queues:    queues,
		pool:      pool,
		activity:  activity,
		metrics:   metrics,
		lastDepth: make(map[string]int),
	}
}

// Pool exposes the spare pool.
func (a *AllocatorService) Pool() *SparePool {
	return a.pool
}

// AutoAllocate evaluates one department, or all of them when department is
// empty, and executes assign/release decisions whose confidence clears the
// threshold.
func (a *AllocatorService) AutoAllocate(ctx context.Context, department string) (*AllocationSummary, error) {
	departments, err := a.targetDepartments(department)
	if err != nil {
		return nil, err
	}

	summary := &AllocationSummary{}
	for _, dept := range departments {
		decision, err := a.evaluateDepartment(ctx, dept)
		if err != nil {
			return nil, err
		}
		summary.DepartmentsAnalyzed++
		summary.Decisions = append(summary.Decisions, decision)
		if decision.Executed {
			summary.ActionsTaken++
		}
		summary.DoctorsAssigned += len(decision.Assigned)
		summary.DoctorsReleased += len(decision.Released)
	}
	return summary, nil
}

// ProtectWaitTimes runs the per-department decision for one or all
// departments. A department already adequately staffed yields a no-op, so
// the pass is safe to run concurrently with individual protection calls.
func (a *AllocatorService) ProtectWaitTimes(ctx context.Context, department string) (*ProtectionSummary, error) {
	departments, err := a.targetDepartments(department)
	if err != nil {
		return nil, err
	}

	summary := &ProtectionSummary{}
	for _, dept := range departments {
		decision, err := a.evaluateDepartment(ctx, dept)
		if err != nil {
			return nil, err
		}
		summary.DepartmentsChecked++
		summary.Decisions = append(summary.Decisions, decision)
		if len(decision.Assigned) > 0 {
			summary.DepartmentsProtected++
			summary.DoctorsAssigned += len(decision.Assigned)
		}
	}
	return summary, nil
}

// OnCriticalArrival is the hook registered with the queue service. It runs
// protection for the department that just received a critical patient.
func (a *AllocatorService) OnCriticalArrival(department string) {
	if _, err := a.ProtectWaitTimes(context.Background(), department); err != nil {
		log.Error().Err(err).Str("department", department).Msg("wait-time protection after critical arrival failed")
	}
}

func (a *AllocatorService) targetDepartments(department string) ([]string, error) {
	if department == "" {
		return a.queues.Departments(), nil
	}
	if _, err := a.queues.QueueFor(department); err != nil {
		return nil, err
	}
	return []string{department}, nil
}

// evaluateDepartment computes the decision for one department and executes
// it when confidence clears the assign threshold. Partial fulfillment from
// insufficient supply is reported, not failed.
func (a *AllocatorService) evaluateDepartment(ctx context.Context, department string) (*entities.AllocationDecision, error) {
	queue, err := a.queues.QueueFor(department)
	if err != nil {
		return nil, err
	}
	status, err := a.queues.StatusFor(department)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	critical := queue.CriticalCount(a.cfg.CriticalSeverity)
	factors := a.confidenceFactors(status, critical, now)
	confidence := a.confidence(factors)

	decision := &entities.AllocationDecision{
		ID:         uuid.New().String(),
		Department: department,
		Action:     entities.ActionHold,
		Confidence: confidence,
		Factors:    factors,
		CreatedAt:  now,
	}

	switch {
	case a.needsHelp(status, critical):
		decision.Action = entities.ActionAssign
		decision.ExtraNeeded = a.extraNeeded(critical, status)
		if decision.ExtraNeeded == 0 {
			decision.Action = entities.ActionHold
			decision.Reason = "department already adequately reinforced"
		} else if confidence >= a.cfg.AssignThreshold {
			assigned := a.assign(ctx, department, decision.ExtraNeeded, status)
			decision.Assigned = assigned
			decision.Executed = true
			switch {
			case len(assigned) == 0:
				decision.Reason = "no eligible spare doctors available"
			case len(assigned) < decision.ExtraNeeded:
				decision.Reason = fmt.Sprintf("partial fulfillment: %d of %d doctors assigned", len(assigned), decision.ExtraNeeded)
			default:
				decision.Reason = fmt.Sprintf("assigned %d spare doctors", len(assigned))
			}
		} else {
			decision.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f, recommendation only", confidence, a.cfg.AssignThreshold)
		}
	case a.canRelease(status, critical):
		released := a.releaseIdle(ctx, department)
		decision.Action = entities.ActionRelease
		decision.Released = released
		decision.Executed = len(released) > 0
		if len(released) > 0 {
			decision.Reason = fmt.Sprintf("released %d spare doctors, load back to normal", len(released))
		} else {
			decision.Reason = "load back to normal, no spare doctors to release"
		}
	default:
		decision.Reason = "department adequately staffed"
	}

	a.recordDecision(ctx, decision, status)
	return decision, nil
}

// needsHelp is the trigger condition: critical patients present, or the
// department sits above the overload band.
func (a *AllocatorService) needsHelp(status *entities.DepartmentStatus, critical int) bool {
	return critical > 0 || status.CrowdLevel == entities.CrowdOverloaded
}

// canRelease is true when load dropped below the release band and no
// critical patients remain.
func (a *AllocatorService) canRelease(status *entities.DepartmentStatus, critical int) bool {
	return status.SpareAssigned > 0 && critical == 0 && status.Utilization < a.cfg.ReleaseUtilization
}

// extraNeeded sizes the reinforcement: ceil(critical / activeDoctors),
// credited with spares already assigned and bounded by the department's
// remaining spare allowance. An overloaded department with no critical
// patients still gets one doctor. Crediting the assigned spares makes
// repeat protection runs no-ops for an already reinforced department.
func (a *AllocatorService) extraNeeded(critical int, status *entities.DepartmentStatus) int {
	needed := 1
	if critical > 0 {
		doctors := status.ActiveDoctors
		if doctors < 1 {
			doctors = 1
		}
		needed = int(math.Ceil(float64(critical) / float64(doctors)))
	}

	needed -= status.SpareAssigned
	if needed < 0 {
		needed = 0
	}

	allowance := a.cfg.MaxSparePerDepartment - status.SpareAssigned
	if allowance < 0 {
		allowance = 0
	}
	if needed > allowance {
		needed = allowance
	}
	return needed
}

// assign greedily commits the top-scoring candidates until the need is met
// or supply runs out. A candidate grabbed by a concurrent run is skipped,
// never force-taken.
func (a *AllocatorService) assign(ctx context.Context, department string, needed int, status *entities.DepartmentStatus) []string {
	candidates := a.rankCandidates(department)

	var assigned []string
	now := time.Now().UTC()
	for _, candidate := range candidates {
		if len(assigned) >= needed {
			break
		}

		doctor, err := a.pool.Assign(candidate.Doctor.ID, department, now)
		if err != nil {
			if apperrors.IsConflict(err) {
				continue
			}
			log.Error().Err(err).Str("doctor_id", candidate.Doctor.ID).Msg("spare doctor assignment failed")
			continue
		}
		if err := a.queues.Registry().AddSpare(department); err != nil {
			// Undo the pool transition so the two views stay consistent.
			if _, releaseErr := a.pool.Release(doctor.ID); releaseErr != nil {
				log.Error().Err(releaseErr).Str("doctor_id", doctor.ID).Msg("failed to undo assignment")
			}
			continue
		}

		assigned = append(assigned, doctor.ID)
		a.activity.Record(ctx, "allocator", entities.DoctorAssignedPayload{
			DoctorID:    doctor.ID,
			DoctorName:  doctor.Name,
			Department:  department,
			MatchScore:  candidate.Score,
			Utilization: status.Utilization,
		})
		if a.metrics != nil {
			observability.RecordAssignment(ctx, a.metrics, department, "assign")
		}

		log.Info().
			Str("doctor_id", doctor.ID).
			Str("department", department).
			Float64("score", candidate.Score).
			Msg("spare doctor assigned")
	}
	return assigned
}

// rankCandidates scores eligible available doctors for a department,
// highest first, with doctor ID breaking ties for determinism.
func (a *AllocatorService) rankCandidates(department string) []entities.Candidate {
	eligible := a.pool.Candidates(department)

	candidates := make([]entities.Candidate, 0, len(eligible))
	for _, doctor := range eligible {
		candidates = append(candidates, entities.Candidate{
			Doctor: doctor,
			Score:  a.candidateScore(doctor, department),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Doctor.ID < candidates[j].Doctor.ID
	})
	return candidates
}

func (a *AllocatorService) candidateScore(doctor *entities.SpareDoctor, department string) float64 {
	workload := 1.0
	if doctor.MaxPatients > 0 {
		workload = 1.0 - float64(doctor.PatientsSeen)/float64(doctor.MaxPatients)
	}

	specialty := specialtyPartial
	if doctor.Specialty == department {
		specialty = specialtyExact
	}

	availability := float64(doctor.RemainingSlots()) / availabilityDenominator
	if availability > 1 {
		availability = 1
	}

	return candidateWorkloadWeight*workload +
		candidateSpecialtyWeight*specialty +
		candidateAvailabilityWeight*availability
}

// releaseIdle returns every spare doctor assigned to a now-quiet
// department to the pool.
func (a *AllocatorService) releaseIdle(ctx context.Context, department string) []string {
	var released []string
	for _, doctor := range a.pool.AssignedTo(department) {
		if a.releaseDoctor(ctx, doctor.ID, "department load back to normal") {
			released = append(released, doctor.ID)
		}
	}
	return released
}

// releaseDoctor performs one release transition with its registry update
// and audit entry.
func (a *AllocatorService) releaseDoctor(ctx context.Context, doctorID, reason string) bool {
	doctor, err := a.pool.Release(doctorID)
	if err != nil {
		if !apperrors.IsConflict(err) {
			log.Error().Err(err).Str("doctor_id", doctorID).Msg("spare doctor release failed")
		}
		return false
	}
	if err := a.queues.Registry().RemoveSpare(doctor.AssignedDepartment); err != nil {
		log.Error().Err(err).Str("department", doctor.AssignedDepartment).Msg("failed to update registry on release")
	}

	a.activity.Record(ctx, "allocator", entities.DoctorReleasedPayload{
		DoctorID:     doctor.ID,
		DoctorName:   doctor.Name,
		Department:   doctor.AssignedDepartment,
		PatientsSeen: doctor.PatientsSeen,
		Reason:       reason,
	})
	if a.metrics != nil {
		observability.RecordAssignment(ctx, a.metrics, doctor.AssignedDepartment, "release")
	}

	log.Info().
		Str("doctor_id", doctor.ID).
		Str("department", doctor.AssignedDepartment).
		Int("patients_seen", doctor.PatientsSeen).
		Msg("spare doctor released")
	return true
}

// ReleaseDoctor is the explicit admin release of one assigned doctor.
func (a *AllocatorService) ReleaseDoctor(ctx context.Context, doctorID, reason string) error {
	if _, err := a.pool.Get(doctorID); err != nil {
		return err
	}
	if !a.releaseDoctor(ctx, doctorID, reason) {
		return apperrors.NewConflictError("spare doctor not assigned: " + doctorID)
	}
	return nil
}

// RecordConsultation credits one seen patient to an assigned spare doctor
// and releases the doctor once the session target is reached. Completion
// of the current consultation always precedes the release, so nothing is
// abandoned mid-visit.
func (a *AllocatorService) RecordConsultation(ctx context.Context, doctorID string) error {
	doctor, err := a.pool.RecordPatientSeen(doctorID)
	if err != nil {
		return err
	}

	if doctor.PatientsSeen >= a.cfg.SessionTarget || doctor.RemainingSlots() == 0 {
		a.releaseDoctor(ctx, doctorID, "session target reached")
	}
	return nil
}

// confidenceFactors gathers the weighted inputs of the confidence score.
func (a *AllocatorService) confidenceFactors(status *entities.DepartmentStatus, critical int, now time.Time) entities.ConfidenceFactors {
	return entities.ConfidenceFactors{
		Utilization:    clamp01(status.Utilization),
		QueueTrend:     a.trendFactor(status.Department, status.QueueDepth),
		CriticalRatio:  criticalRatio(critical, status.QueueDepth),
		AvgWaitMinutes: status.AvgWaitMinutes,
		TimeOfDay:      timeOfDayFactor(now),
	}
}

func (a *AllocatorService) confidence(f entities.ConfidenceFactors) float64 {
	wait := clamp01(f.AvgWaitMinutes / waitSaturationMinutes)
	return confidenceUtilizationWeight*f.Utilization +
		confidenceTrendWeight*f.QueueTrend +
		confidenceCriticalWeight*f.CriticalRatio +
		confidenceWaitWeight*wait +
		confidenceTimeWeight*f.TimeOfDay
}

// trendFactor compares the current queue depth to the depth seen on the
// previous evaluation of the same department. Growth pushes toward 1,
// shrinkage toward 0, steady state sits at 0.5.
func (a *AllocatorService) trendFactor(department string, depth int) float64 {
	a.mu.Lock()
	prev, seen := a.lastDepth[department]
	a.lastDepth[department] = depth
	a.mu.Unlock()

	if !seen {
		return 0.5
	}
	return clamp01(0.5 + float64(depth-prev)/10.0)
}

func criticalRatio(critical, depth int) float64 {
	if depth == 0 {
		return 0
	}
	return clamp01(float64(critical) / float64(depth))
}

// timeOfDayFactor is high during clinic rush windows and low otherwise.
func timeOfDayFactor(now time.Time) float64 {
	hour := now.Hour()
	if (hour >= 9 && hour < 12) || (hour >= 17 && hour < 20) {
		return 1.0
	}
	if hour >= 7 && hour < 22 {
		return 0.6
	}
	return 0.3
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// recordDecision appends the decision to the history and the audit log.
func (a *AllocatorService) recordDecision(ctx context.Context, decision *entities.AllocationDecision, status *entities.DepartmentStatus) {
	a.mu.Lock()
	a.decisions = append(a.decisions, decision)
	if len(a.decisions) > decisionHistoryCap {
		a.decisions = a.decisions[len(a.decisions)-decisionHistoryCap:]
	}
	a.mu.Unlock()

	a.activity.Record(ctx, "allocator", entities.AllocatorDecisionPayload{
		Department:  decision.Department,
		Action:      string(decision.Action),
		Confidence:  decision.Confidence,
		Executed:    decision.Executed,
		Reason:      decision.Reason,
		ExtraNeeded: decision.ExtraNeeded,
	})
}

// Decisions returns the most recent allocation decisions, newest first.
func (a *AllocatorService) Decisions(limit int) []*entities.AllocationDecision {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*entities.AllocationDecision
	for i := len(a.decisions) - 1; i >= 0; i-- {
		out = append(out, a.decisions[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// WaitImpact quantifies what one extra doctor would buy a department in
// average projected wait.
func (a *AllocatorService) WaitImpact(department string) (*entities.WaitImpact, error) {
	status, err := a.queues.StatusFor(department)
	if err != nil {
		return nil, err
	}

	avgConsult := float64(a.queues.Registry().AvgConsultationMinutes())
	current := projectedAvgWait(status.QueueDepth, status.TotalDoctors(), avgConsult)
	projected := projectedAvgWait(status.QueueDepth, status.TotalDoctors()+1, avgConsult)

	impact := &entities.WaitImpact{
		Department:       department,
		CurrentDoctors:   status.TotalDoctors(),
		ProjectedDoctors: status.TotalDoctors() + 1,
		CurrentAvgWait:   round1(current),
		ProjectedAvgWait: round1(projected),
		ReductionMinutes: round1(current - projected),
	}
	if current > 0 {
		impact.ReductionPercent = round1((current - projected) / current * 100)
	}
	return impact, nil
}

// projectedAvgWait is the mean wait across queue positions given a doctor
// count and consultation length.
func projectedAvgWait(depth, doctors int, avgConsultMinutes float64) float64 {
	if depth == 0 {
		return 0
	}
	if doctors < 1 {
		doctors = 1
	}
	// Mean position in the queue is (depth+1)/2.
	meanAhead := float64(depth-1) / 2
	return (meanAhead/float64(doctors) + 0.5) * avgConsultMinutes
}

// AllocationInsights is a read-only view of what the allocator currently
// thinks of each department, plus the thresholds it operates under.
type AllocationInsights struct {
	AssignThreshold    float64              `json:"assign_threshold"`
	ReleaseUtilization float64              `json:"release_utilization"`
	SessionTarget      int                  `json:"session_target"`
	Departments        []*DepartmentInsight `json:"departments"`
}

// DepartmentInsight is the per-department slice of AllocationInsights.
type DepartmentInsight struct {
	Department    string                     `json:"department"`
	QueueDepth    int                        `json:"queue_depth"`
	CriticalCount int                        `json:"critical_count"`
	SpareAssigned int                        `json:"spare_assigned"`
	Confidence    float64                    `json:"confidence"`
	Factors       entities.ConfidenceFactors `json:"factors"`
	WouldAssign   bool                       `json:"would_assign"`
}

// Insights scores every department (or one, when department is non-empty)
// without executing anything or recording a decision. Reads never perturb
// the allocator's trend state.
func (a *AllocatorService) Insights(department string) (*AllocationInsights, error) {
	departments, err := a.targetDepartments(department)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	insights := &AllocationInsights{
		AssignThreshold:    a.cfg.AssignThreshold,
		ReleaseUtilization: a.cfg.ReleaseUtilization,
		SessionTarget:      a.cfg.SessionTarget,
	}
	for _, dept := range departments {
		queue, err := a.queues.QueueFor(dept)
		if err != nil {
			continue
		}
		status, err := a.queues.StatusFor(dept)
		if err != nil {
			continue
		}

		critical := queue.CriticalCount(a.cfg.CriticalSeverity)
		factors := entities.ConfidenceFactors{
			Utilization:    clamp01(status.Utilization),
			QueueTrend:     a.peekTrend(dept, status.QueueDepth),
			CriticalRatio:  criticalRatio(critical, status.QueueDepth),
			AvgWaitMinutes: status.AvgWaitMinutes,
			TimeOfDay:      timeOfDayFactor(now),
		}
		confidence := a.confidence(factors)

		insights.Departments = append(insights.Departments, &DepartmentInsight{
			Department:    dept,
			QueueDepth:    status.QueueDepth,
			CriticalCount: critical,
			SpareAssigned: status.SpareAssigned,
			Confidence:    confidence,
			Factors:       factors,
			WouldAssign:   a.needsHelp(status, critical) && confidence >= a.cfg.AssignThreshold,
		})
	}
	return insights, nil
}

// peekTrend is trendFactor without the depth sample update.
func (a *AllocatorService) peekTrend(department string, depth int) float64 {
	a.mu.Lock()
	prev, seen := a.lastDepth[department]
	a.mu.Unlock()

	if !seen {
		return 0.5
	}
	return clamp01(0.5 + float64(depth-prev)/10.0)
}
