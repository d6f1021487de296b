package entities

import "time"

// AllocationAction is what the allocator decided to do for a department.
type AllocationAction string

const (
	ActionAssign  AllocationAction = "assign"
	ActionRelease AllocationAction = "release"
	ActionHold    AllocationAction = "hold"
)

// ConfidenceFactors breaks a confidence score into its weighted inputs so
// a decision can be explained after the fact.
type ConfidenceFactors struct {
	Utilization    float64 `json:"utilization"`
	QueueTrend     float64 `json:"queue_trend"`
	CriticalRatio  float64 `json:"critical_ratio"`
	AvgWaitMinutes float64 `json:"avg_wait_minutes"`
	TimeOfDay      float64 `json:"time_of_day"`
}

// AllocationDecision is the allocator's verdict for one department on one
// evaluation pass. Executed is false when confidence fell below the
// assignment threshold and the decision stayed a recommendation.
type AllocationDecision struct {
	ID          string            `json:"id"`
	Department  string            `json:"department"`
	Action      AllocationAction  `json:"action"`
	Confidence  float64           `json:"confidence"`
	Factors     ConfidenceFactors `json:"factors"`
	ExtraNeeded int               `json:"extra_needed"`
	Assigned    []string          `json:"assigned,omitempty"`
	Released    []string          `json:"released,omitempty"`
	Executed    bool              `json:"executed"`
	Reason      string            `json:"reason"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Candidate pairs a spare doctor with its suitability score for a
// department.
type Candidate struct {
	Doctor *SpareDoctor `json:"doctor"`
	Score  float64      `json:"score"`
}

// WaitEstimate is the projected wait for one queue entry.
type WaitEstimate struct {
	Token            string  `json:"token"`
	Department       string  `json:"department"`
	Position         int     `json:"position"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
	LowerMinutes     float64 `json:"lower_minutes"`
	UpperMinutes     float64 `json:"upper_minutes"`
}

// WaitImpact compares projected waits with and without a candidate
// assignment, quantifying what one extra doctor buys a department.
type WaitImpact struct {
	Department       string  `json:"department"`
	CurrentDoctors   int     `json:"current_doctors"`
	ProjectedDoctors int     `json:"projected_doctors"`
	CurrentAvgWait   float64 `json:"current_avg_wait_minutes"`
	ProjectedAvgWait float64 `json:"projected_avg_wait_minutes"`
	ReductionMinutes float64 `json:"reduction_minutes"`
	ReductionPercent float64 `json:"reduction_percent"`
}
