package services

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/pkg/config"
	apperrors "github.com/smartcare-health/smartqueue/pkg/errors"
)

// promoteBoost lifts a promoted entry's priority above anything the
// weighted formula can produce, so an emergency override always sorts
// ahead of every non-promoted entry.
const promoteBoost = 10.0

// ageFactorBoosted applies to patients aged 65+ or 5 and under.
const (
	ageFactorBoosted   = 1.2
	ageFactorDefault   = 1.0
	chronicFactorBoost = 1.2
	chronicFactorNone  = 1.0
)

// queueItem wraps an entry with its heap position so relocation after a
// priority change is O(log n).
type queueItem struct {
	entry *entities.QueueEntry
	index int
}

// entryHeap is a max-heap on priority with FIFO tie-break on check-in time.
type entryHeap []*queueItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].entry.PriorityScore != h[j].entry.PriorityScore {
		return h[i].entry.PriorityScore > h[j].entry.PriorityScore
	}
	return h[i].entry.CheckInAt.Before(h[j].entry.CheckInAt)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// PromoteResult captures the before/after state of an emergency promotion
// for the audit trail.
type PromoteResult struct {
	Entry           *entities.QueueEntry
	SeverityBefore  int
	SeverityAfter   int
	PriorityBefore  float64
	PriorityAfter   float64
	AlreadyPromoted bool
}

// DepartmentQueue is the per-department max-priority structure over
// waiting entries. All writes take the queue's mutex; snapshot reads copy
// out under the same lock and are safe to serve stale.
type DepartmentQueue struct {
	department string
	cfg        config.QueueConfig

	mu    sync.Mutex
	items entryHeap
	byID  map[string]*queueItem
}

// NewDepartmentQueue creates an empty queue for a department.
func NewDepartmentQueue(department string, cfg config.QueueConfig) *DepartmentQueue {
	return &DepartmentQueue{
		department: department,
		cfg:        cfg,
		byID:       make(map[string]*queueItem),
	}
}

// Department returns the department this queue serves.
func (q *DepartmentQueue) Department() string {
	return q.department
}

// priorityFor computes the composite priority of an entry at the given
// instant. Promoted entries carry a fixed boost on top so re-scoring can
// never demote them below a non-promoted entry.
func (q *DepartmentQueue) priorityFor(e *entities.QueueEntry, now time.Time) float64 {
	sev := float64(e.SeverityScore) / float64(entities.MaxSeverity)

	wait := e.WaitDuration(now).Seconds() / q.cfg.MaxWait.Seconds()
	if wait > 1 {
		wait = 1
	}

	age := ageFactorDefault
	if e.Age >= 65 || e.Age <= 5 {
		age = ageFactorBoosted
	}

	chronic := chronicFactorNone
	if e.ChronicPresent {
		chronic = chronicFactorBoost
	}

	p := q.cfg.SeverityWeight*sev +
		q.cfg.WaitWeight*wait +
		q.cfg.AgeWeight*age +
		q.cfg.ChronicWeight*chronic

	if e.Promoted {
		p += promoteBoost
	}
	return p
}

// Insert scores and enqueues a waiting entry.
func (q *DepartmentQueue) Insert(entry *entities.QueueEntry, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[entry.ID]; exists {
		return apperrors.NewConflictError("entry already queued: " + entry.ID)
	}

	entry.Status = entities.StatusWaiting
	entry.PriorityScore = q.priorityFor(entry, now)

	item := &queueItem{entry: entry}
	heap.Push(&q.items, item)
	q.byID[entry.ID] = item
	return nil
}

// Peek returns the highest-priority waiting entry without removing it, or
// nil when the queue is empty.
func (q *DepartmentQueue) Peek() *entities.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0].entry
}

// ExtractMax removes and returns the highest-priority waiting entry,
// flipping its status to called. It returns nil on an empty queue; callers
// branch on that rather than on an error.
func (q *DepartmentQueue) ExtractMax(now time.Time) *entities.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	item := heap.Pop(&q.items).(*queueItem)
	delete(q.byID, item.entry.ID)

	item.entry.Status = entities.StatusCalled
	called := now
	item.entry.CalledAt = &called
	return item.entry
}

// RescoreAll recomputes every waiting entry's priority and restores the
// heap ordering. It returns the number of entries re-scored, and is
// idempotent when no time has elapsed.
func (q *DepartmentQueue) RescoreAll(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		item.entry.PriorityScore = q.priorityFor(item.entry, now)
	}
	heap.Init(&q.items)
	return len(q.items)
}

// EmergencyPromote force-sets an entry's severity to the maximum band,
// recomputes its priority with the promotion boost, and relocates it to
// the head. Re-promoting an already promoted entry changes nothing; the
// caller still records the attempt.
func (q *DepartmentQueue) EmergencyPromote(entryID string, now time.Time) (*PromoteResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[entryID]
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found: " + entryID)
	}

	result := &PromoteResult{
		Entry:          item.entry,
		SeverityBefore: item.entry.SeverityScore,
		PriorityBefore: item.entry.PriorityScore,
	}

	if item.entry.Promoted {
		result.AlreadyPromoted = true
		result.SeverityAfter = item.entry.SeverityScore
		result.PriorityAfter = item.entry.PriorityScore
		return result, nil
	}

	item.entry.Promoted = true
	item.entry.SeverityScore = entities.MaxSeverity
	item.entry.SeverityBand = entities.BandFor(entities.MaxSeverity)
	item.entry.TeleconsultEligible = false
	item.entry.PriorityScore = q.priorityFor(item.entry, now)
	heap.Fix(&q.items, item.index)

	result.SeverityAfter = item.entry.SeverityScore
	result.PriorityAfter = item.entry.PriorityScore
	return result, nil
}

// Len returns the number of waiting entries.
func (q *DepartmentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Position returns the 1-based rank of an entry in priority order, or 0
// when the entry is not queued.
func (q *DepartmentQueue) Position(entryID string) int {
	for i, e := range q.Snapshot() {
		if e.ID == entryID {
			return i + 1
		}
	}
	return 0
}

// Snapshot returns copies of all waiting entries in priority order. The
// copies are safe to serve to dashboards without holding the lock.
func (q *DepartmentQueue) Snapshot() []*entities.QueueEntry {
	q.mu.Lock()
	entries := make([]*entities.QueueEntry, 0, len(q.items))
	for _, item := range q.items {
		copied := *item.entry
		entries = append(entries, &copied)
	}
	q.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PriorityScore != entries[j].PriorityScore {
			return entries[i].PriorityScore > entries[j].PriorityScore
		}
		return entries[i].CheckInAt.Before(entries[j].CheckInAt)
	})
	return entries
}

// CriticalCount returns how many waiting entries are at or above the given
// severity threshold.
func (q *DepartmentQueue) CriticalCount(threshold int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, item := range q.items {
		if item.entry.Critical(threshold) {
			n++
		}
	}
	return n
}

// AvgWaitMinutes returns the mean wait of all waiting entries at the given
// instant, or 0 for an empty queue.
func (q *DepartmentQueue) AvgWaitMinutes(now time.Time) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return 0
	}
	var total float64
	for _, item := range q.items {
		total += item.entry.WaitDuration(now).Minutes()
	}
	return total / float64(len(q.items))
}
