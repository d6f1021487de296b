package services

import (
	"math"
	"time"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
)

// Range multipliers around the point estimate.
const (
	waitRangeLower = 0.8
	waitRangeUpper = 1.3
)

// Crowd-level adjustment of the throughput assumption.
const (
	loadAdjustmentBusy       = 1.1
	loadAdjustmentOverloaded = 1.25
)

// peakAdjustment applies during morning and evening rush windows.
const peakAdjustment = 1.1

// WaitEstimator derives an estimated wait for a queue position from queue
// depth, doctor count and the assumed consultation length. It is a pure
// function of the status passed in; it holds no state and takes no locks.
type WaitEstimator struct{}

// NewWaitEstimator creates a wait estimator.
func NewWaitEstimator() *WaitEstimator {
	return &WaitEstimator{}
}

// Estimate projects the wait for the entry at the given 1-based queue
// position. Position 1 is next in line and waits only for a slot to free.
func (w *WaitEstimator) Estimate(position int, status *entities.DepartmentStatus, avgConsultationMinutes int, now time.Time) entities.WaitEstimate {
	estimate := entities.WaitEstimate{
		Department: status.Department,
		Position:   position,
	}
	if position <= 0 {
		return estimate
	}

	doctors := status.TotalDoctors()
	if doctors < 1 {
		doctors = 1
	}

	// Patients ahead of this one, spread across the available doctors.
	ahead := float64(position - 1)
	base := (ahead/float64(doctors) + 0.5) * float64(avgConsultationMinutes)

	minutes := base * w.adjustment(status.CrowdLevel, now)

	estimate.EstimatedMinutes = round1(minutes)
	estimate.LowerMinutes = round1(minutes * waitRangeLower)
	estimate.UpperMinutes = round1(minutes * waitRangeUpper)
	return estimate
}

// adjustment scales the raw estimate for current load and time of day.
func (w *WaitEstimator) adjustment(level entities.CrowdLevel, now time.Time) float64 {
	factor := 1.0
	switch level {
	case entities.CrowdBusy:
		factor = loadAdjustmentBusy
	case entities.CrowdOverloaded:
		factor = loadAdjustmentOverloaded
	}

	hour := now.Hour()
	if (hour >= 9 && hour < 12) || (hour >= 17 && hour < 20) {
		factor *= peakAdjustment
	}
	return factor
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
