package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/internal/domain/providers"
	"github.com/smartcare-health/smartqueue/internal/infrastructure/observability"
	"github.com/smartcare-health/smartqueue/pkg/config"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
)

// crowdStatusCacheTTL bounds staleness of the dashboard crowd snapshot.
const crowdStatusCacheTTL = 10 * time.Second

// CheckInRequest is the inbound payload for a patient joining a queue.
type CheckInRequest struct {
	PatientID    string                  `json:"patient_id"`
	PatientName  string                  `json:"patient_name"`
	Department   string                  `json:"department"`
	Symptoms     []string                `json:"symptoms"`
	Description  string                  `json:"description"`
	Duration     entities.DurationBucket `json:"duration"`
	SelfSeverity int                     `json:"self_severity"`
	Age          int                     `json:"age"`
	ChronicTags  []string                `json:"chronic_tags"`
}

// CheckInResult is returned to the caller after a successful check-in.
type CheckInResult struct {
	EntryID             string                `json:"entry_id"`
	Token               string                `json:"token"`
	SeverityScore       int                   `json:"severity_score"`
	SeverityBand        entities.SeverityBand `json:"severity_band"`
	Explanation         []string              `json:"explanation"`
	RecommendedAction   string                `json:"recommended_action"`
	PriorityScore       float64               `json:"priority_score"`
	QueuePosition       int                   `json:"queue_position"`
	EstimatedWait       entities.WaitEstimate `json:"estimated_wait"`
	TeleconsultEligible bool                  `json:"teleconsult_eligible"`
}

// QueueService orchestrates check-ins, doctor calls and overrides across
// all department queues. Each department's queue serializes its own
// writes; the service's own mutex guards only the patient/entry indexes
// and the token sequence.
type QueueService struct {
	cfg       *config.Config
	registry  *RegistryService
	triage    *TriageService
	estimator *WaitEstimator
	activity  *ActivityLog
	cache     providers.CacheProvider
	metrics   *observability.Metrics

	mu            sync.Mutex
	queues        map[string]*DepartmentQueue
	activeEntries map[string]string // patientID -> entryID
	entryDept     map[string]string // entryID -> department
	inProgress    map[string][]*entities.QueueEntry

	tokenDate string
	tokenSeq  int

	onCritical func(department string)
}

// NewQueueService creates the queue orchestrator. cache and metrics may be
// nil.
func NewQueueService(
	cfg *config.Config,
	registry *RegistryService,
	triage *TriageService,
	estimator *WaitEstimator,
	activity *ActivityLog,
	cache providers.CacheProvider,
	metrics *observability.Metrics,
) *QueueService {
	return &QueueService{
		cfg:           cfg,
		registry:      registry,
		triage:        triage,
		estimator:     estimator,
		activity:      activity,
		cache:         cache,
		metrics:       metrics,
		queues:        make(map[string]*DepartmentQueue),
		activeEntries: make(map[string]string),
		entryDept:     make(map[string]string),
		inProgress:    make(map[string][]*entities.QueueEntry),
	}
}

// SetCriticalHandler registers the hook invoked when a check-in crosses
// the critical severity threshold. The allocator subscribes here so a
// critical arrival can trigger wait-time protection without the queue
// depending on the allocator.
func (s *QueueService) SetCriticalHandler(fn func(department string)) {
	s.onCritical = fn
}

// RegisterDepartment adds a department to the registry and creates its
// queue.
func (s *QueueService) RegisterDepartment(dept entities.Department) error {
	if err := s.registry.Register(dept); err != nil {
		return err
	}

	s.mu.Lock()
	s.queues[dept.Name] = NewDepartmentQueue(dept.Name, s.cfg.Queue)
	s.mu.Unlock()
	return nil
}

// QueueFor returns the queue of a department.
func (s *QueueService) QueueFor(department string) (*DepartmentQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[department]
	if !ok {
		return nil, apperrors.NewNotFoundError("department not registered: " + department)
	}
	return q, nil
}

// Departments returns all registered department names.
func (s *QueueService) Departments() []string {
	return s.registry.Departments()
}

// Registry exposes the department registry.
func (s *QueueService) Registry() *RegistryService {
	return s.registry
}

// CheckIn validates the request, scores severity, enqueues the entry and
// returns its token, position and wait estimate.
func (s *QueueService) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	if err := s.validateCheckIn(req); err != nil {
		return nil, err
	}

	queue, err := s.QueueFor(req.Department)
	if err != nil {
		return nil, err
	}

	triage := s.triage.Score(TriageInput{
		Symptoms:     req.Symptoms,
		Description:  req.Description,
		Duration:     req.Duration,
		SelfSeverity: req.SelfSeverity,
		Age:          req.Age,
		ChronicTags:  req.ChronicTags,
	})

	now := time.Now().UTC()
	entry := &entities.QueueEntry{
		ID:                  uuid.New().String(),
		PatientID:           req.PatientID,
		PatientName:         req.PatientName,
		Department:          req.Department,
		Symptoms:            req.Symptoms,
		Description:         req.Description,
		Duration:            req.Duration,
		SelfSeverity:        req.SelfSeverity,
		Age:                 req.Age,
		ChronicPresent:      len(req.ChronicTags) > 0,
		SeverityScore:       triage.Score,
		SeverityBand:        triage.Band,
		Explanation:         triage.Explanation,
		TeleconsultEligible: triage.TeleconsultEligible,
		CheckInAt:           now,
	}

	// Reserve the patient's one active visit before the queue insert so
	// two concurrent check-ins for the same patient cannot both land.
	s.mu.Lock()
	if existing, ok := s.activeEntries[req.PatientID]; ok {
		s.mu.Unlock()
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("patient %s already has an active visit (%s)", req.PatientID, existing))
	}
	entry.Token = s.nextTokenLocked(now)
	s.activeEntries[req.PatientID] = entry.ID
	s.entryDept[entry.ID] = req.Department
	s.mu.Unlock()

	if err := queue.Insert(entry, now); err != nil {
		s.mu.Lock()
		delete(s.activeEntries, req.PatientID)
		delete(s.entryDept, entry.ID)
		s.mu.Unlock()
		return nil, err
	}

	position := queue.Position(entry.ID)
	estimate := s.estimateFor(entry.Token, req.Department, position, queue, now)

	s.activity.Record(ctx, req.PatientID, entities.CheckInPayload{
		Token:         entry.Token,
		PatientID:     req.PatientID,
		Department:    req.Department,
		SeverityScore: triage.Score,
		SeverityBand:  string(triage.Band),
		QueuePosition: position,
	})
	s.invalidateCrowdStatus(ctx)

	if s.metrics != nil {
		observability.RecordCheckIn(ctx, s.metrics, req.Department, triage.Score)
	}

	log.Info().
		Str("token", entry.Token).
		Str("department", req.Department).
		Int("severity", triage.Score).
		Int("position", position).
		Msg("patient checked in")

	if entry.Critical(s.cfg.Allocator.CriticalSeverity) && s.onCritical != nil {
		go s.onCritical(req.Department)
	}

	return &CheckInResult{
		EntryID:             entry.ID,
		Token:               entry.Token,
		SeverityScore:       triage.Score,
		SeverityBand:        triage.Band,
		Explanation:         triage.Explanation,
		RecommendedAction:   triage.RecommendedAction,
		PriorityScore:       entry.PriorityScore,
		QueuePosition:       position,
		EstimatedWait:       estimate,
		TeleconsultEligible: triage.TeleconsultEligible,
	}, nil
}

func (s *QueueService) validateCheckIn(req CheckInRequest) error {
	if req.PatientID == "" {
		return apperrors.NewValidationError("patient_id is required")
	}
	if req.Department == "" {
		return apperrors.NewValidationError("department is required")
	}
	if len(req.Symptoms) == 0 && req.Description == "" {
		return apperrors.NewValidationError("at least one symptom or a description is required")
	}
	if req.SelfSeverity < 1 || req.SelfSeverity > entities.MaxSeverity {
		return apperrors.NewValidationError("self_severity must be between 1 and 10")
	}
	if !req.Duration.Valid() {
		return apperrors.NewValidationError("duration bucket is not recognized")
	}
	if req.Age < 0 {
		return apperrors.NewValidationError("age cannot be negative")
	}
	return nil
}

// nextTokenLocked produces the next display token, format
// SQ<yyyymmdd><4-digit sequence>, resetting the sequence at midnight.
// Caller holds s.mu.
func (s *QueueService) nextTokenLocked(now time.Time) string {
	date := now.Format("20060102")
	if date != s.tokenDate {
		s.tokenDate = date
		s.tokenSeq = 0
	}
	s.tokenSeq++
	return fmt.Sprintf("SQ%s%04d", date, s.tokenSeq)
}

// CallNext extracts the highest-priority waiting entry for a department
// and occupies a consultation slot. An empty queue returns (nil, nil); the
// registry is untouched in that case.
func (s *QueueService) CallNext(ctx context.Context, department string) (*entities.QueueEntry, error) {
	queue, err := s.QueueFor(department)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := queue.ExtractMax(now)
	if entry == nil {
		return nil, nil
	}

	if err := s.registry.BeginConsultation(department); err != nil {
		// All slots busy: put the entry back exactly as it was.
		entry.Status = entities.StatusWaiting
		entry.CalledAt = nil
		if reinsErr := queue.Insert(entry, now); reinsErr != nil {
			log.Error().Err(reinsErr).Str("entry_id", entry.ID).Msg("failed to restore entry after slot conflict")
		}
		return nil, err
	}

	entry.Status = entities.StatusInConsultation

	s.mu.Lock()
	s.inProgress[department] = append(s.inProgress[department], entry)
	s.mu.Unlock()

	waited := entry.WaitDuration(now)
	s.activity.Record(ctx, department, entities.PatientCalledPayload{
		Token:       entry.Token,
		PatientID:   entry.PatientID,
		Department:  department,
		WaitMinutes: waited.Minutes(),
	})
	s.invalidateCrowdStatus(ctx)

	if s.metrics != nil {
		observability.RecordDeparture(ctx, s.metrics, department, waited)
	}

	log.Info().
		Str("token", entry.Token).
		Str("department", department).
		Float64("waited_minutes", waited.Minutes()).
		Msg("patient called")

	return entry, nil
}

// CompleteCurrent finishes the longest-running consultation in a
// department and frees its slot. doctorID identifies the treating doctor
// when known; pass an empty string otherwise.
func (s *QueueService) CompleteCurrent(ctx context.Context, department, doctorID string) (*entities.QueueEntry, error) {
	s.mu.Lock()
	active := s.inProgress[department]
	if len(active) == 0 {
		s.mu.Unlock()
		return nil, apperrors.NewConflictError("no consultation in progress in " + department)
	}
	entry := active[0]
	s.inProgress[department] = active[1:]
	delete(s.activeEntries, entry.PatientID)
	delete(s.entryDept, entry.ID)
	s.mu.Unlock()

	if err := s.registry.EndConsultation(department); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.Status = entities.StatusCompleted
	entry.CompletedAt = &now

	var consultMinutes float64
	if entry.CalledAt != nil {
		consultMinutes = now.Sub(*entry.CalledAt).Minutes()
	}

	s.activity.Record(ctx, department, entities.PatientCompletedPayload{
		Token:             entry.Token,
		PatientID:         entry.PatientID,
		Department:        department,
		ConsultationMins:  consultMinutes,
		SeenBySpareDoctor: doctorID != "",
		DoctorID:          doctorID,
	})
	s.invalidateCrowdStatus(ctx)

	log.Info().
		Str("token", entry.Token).
		Str("department", department).
		Float64("consultation_minutes", consultMinutes).
		Msg("consultation completed")

	return entry, nil
}

// EmergencyOverride escalates an entry to the maximum severity band and
// relocates it to the head of its queue. Exactly one override record is
// written per call, including repeats on an already promoted entry.
func (s *QueueService) EmergencyOverride(ctx context.Context, entryID, reason, actor string) (*entities.OverrideEntry, error) {
	if reason == "" {
		return nil, apperrors.NewValidationError("override reason is required")
	}
	if actor == "" {
		return nil, apperrors.NewValidationError("override actor is required")
	}

	s.mu.Lock()
	department, ok := s.entryDept[entryID]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found: " + entryID)
	}

	queue, err := s.QueueFor(department)
	if err != nil {
		return nil, err
	}

	result, err := queue.EmergencyPromote(entryID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	override := &entities.OverrideEntry{
		ID:              uuid.New().String(),
		Token:           result.Entry.Token,
		PatientID:       result.Entry.PatientID,
		Department:      department,
		Actor:           actor,
		Reason:          reason,
		SeverityBefore:  result.SeverityBefore,
		SeverityAfter:   result.SeverityAfter,
		PriorityBefore:  result.PriorityBefore,
		PriorityAfter:   result.PriorityAfter,
		AlreadyPromoted: result.AlreadyPromoted,
		CreatedAt:       time.Now().UTC(),
	}

	s.activity.RecordOverride(ctx, override)
	s.activity.Record(ctx, actor, entities.EmergencyOverridePayload{
		Token:          override.Token,
		PatientID:      override.PatientID,
		Department:     department,
		SeverityBefore: override.SeverityBefore,
		SeverityAfter:  override.SeverityAfter,
		PriorityBefore: override.PriorityBefore,
		PriorityAfter:  override.PriorityAfter,
		Reason:         reason,
	})

	if s.metrics != nil {
		observability.RecordOverride(ctx, s.metrics, department)
	}

	log.Warn().
		Str("token", override.Token).
		Str("department", department).
		Str("actor", actor).
		Bool("already_promoted", override.AlreadyPromoted).
		Msg("emergency override applied")

	if !result.AlreadyPromoted && s.onCritical != nil {
		go s.onCritical(department)
	}

	return override, nil
}

// QueueSnapshot returns waiting entries in priority order. With an empty
// department it covers every registered department.
func (s *QueueService) QueueSnapshot(department string) (map[string][]*entities.QueueEntry, error) {
	departments := []string{department}
	if department == "" {
		departments = s.Departments()
	}

	out := make(map[string][]*entities.QueueEntry, len(departments))
	for _, dept := range departments {
		queue, err := s.QueueFor(dept)
		if err != nil {
			return nil, err
		}
		out[dept] = queue.Snapshot()
	}
	return out, nil
}

// StatusFor assembles the live status of one department.
func (s *QueueService) StatusFor(department string) (*entities.DepartmentStatus, error) {
	queue, err := s.QueueFor(department)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return s.registry.Status(department, queue.Len(), queue.AvgWaitMinutes(now))
}

// CrowdStatus returns the status of every department, served from cache
// when a recent snapshot exists.
func (s *QueueService) CrowdStatus(ctx context.Context) ([]*entities.DepartmentStatus, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, providers.CacheKeyDashboard); err == nil {
			var cached []*entities.DepartmentStatus
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	statuses := make([]*entities.DepartmentStatus, 0, len(s.Departments()))
	for _, dept := range s.Departments() {
		status, err := s.StatusFor(dept)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}

	if s.cache != nil {
		if data, err := json.Marshal(statuses); err == nil {
			if err := s.cache.Set(ctx, providers.CacheKeyDashboard, data, crowdStatusCacheTTL); err != nil {
				log.Debug().Err(err).Msg("failed to cache crowd status")
			}
		}
	}
	return statuses, nil
}

// invalidateCrowdStatus drops the cached dashboard snapshot after a
// mutation.
func (s *QueueService) invalidateCrowdStatus(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, providers.CacheKeyDashboard); err != nil {
		log.Debug().Err(err).Msg("failed to invalidate crowd status cache")
	}
}

// EstimateFor projects the wait of a queued entry from its current
// position.
func (s *QueueService) EstimateFor(entryID string) (*entities.WaitEstimate, error) {
	s.mu.Lock()
	department, ok := s.entryDept[entryID]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found: " + entryID)
	}

	queue, err := s.QueueFor(department)
	if err != nil {
		return nil, err
	}

	position := queue.Position(entryID)
	if position == 0 {
		return nil, apperrors.NewNotFoundError("entry is no longer waiting: " + entryID)
	}

	var token string
	for _, e := range queue.Snapshot() {
		if e.ID == entryID {
			token = e.Token
			break
		}
	}

	now := time.Now().UTC()
	status, err := s.registry.Status(department, queue.Len(), queue.AvgWaitMinutes(now))
	if err != nil {
		return nil, err
	}

	estimate := s.estimator.Estimate(position, status, s.registry.AvgConsultationMinutes(), now)
	estimate.Token = token
	return &estimate, nil
}

func (s *QueueService) estimateFor(token, department string, position int, queue *DepartmentQueue, now time.Time) entities.WaitEstimate {
	status, err := s.registry.Status(department, queue.Len(), queue.AvgWaitMinutes(now))
	if err != nil {
		return entities.WaitEstimate{Token: token, Department: department, Position: position}
	}
	estimate := s.estimator.Estimate(position, status, s.registry.AvgConsultationMinutes(), now)
	estimate.Token = token
	return estimate
}

// QueueStats aggregates one department's queue for dashboards.
type QueueStats struct {
	Department     string                        `json:"department"`
	Depth          int                           `json:"depth"`
	ByBand         map[entities.SeverityBand]int `json:"by_band"`
	CriticalCount  int                           `json:"critical_count"`
	PromotedCount  int                           `json:"promoted_count"`
	AvgWaitMinutes float64                       `json:"avg_wait_minutes"`
}

// QueueStats returns per-band counts and wait aggregates for a department.
func (s *QueueService) QueueStats(department string) (*QueueStats, error) {
	queue, err := s.QueueFor(department)
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{
		Department: department,
		ByBand:     make(map[entities.SeverityBand]int),
	}
	for _, entry := range queue.Snapshot() {
		stats.Depth++
		stats.ByBand[entry.SeverityBand]++
		if entry.Promoted {
			stats.PromotedCount++
		}
	}
	stats.CriticalCount = queue.CriticalCount(s.cfg.Allocator.CriticalSeverity)
	stats.AvgWaitMinutes = queue.AvgWaitMinutes(time.Now().UTC())
	return stats, nil
}

// RescoreAll recomputes priorities in every department queue. It is
// invoked by the periodic tick and returns the number of entries touched.
func (s *QueueService) RescoreAll(ctx context.Context) int {
	now := time.Now().UTC()
	total := 0
	for _, dept := range s.Departments() {
		queue, err := s.QueueFor(dept)
		if err != nil {
			continue
		}
		total += queue.RescoreAll(now)
	}

	if total > 0 {
		s.activity.Record(ctx, "system", entities.SystemPayload{
			Event:   "queues_rescored",
			Details: fmt.Sprintf("%d entries re-scored", total),
		})
	}
	return total
}
