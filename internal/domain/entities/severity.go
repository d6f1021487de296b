package entities

import "strings"

// SeverityBand is the discretized label for a 1-10 severity score.
type SeverityBand string

const (
	BandCritical SeverityBand = "CRITICAL" // 9-10
	BandUrgent   SeverityBand = "URGENT"   // 7-8
	BandModerate SeverityBand = "MODERATE" // 5-6
	BandLow      SeverityBand = "LOW"      // 3-4
	BandRoutine  SeverityBand = "ROUTINE"  // 1-2
)

// MaxSeverity is the ceiling of the severity scale.
const MaxSeverity = 10

// BandFor maps a severity score to its band.
func BandFor(score int) SeverityBand {
	switch {
	case score >= 9:
		return BandCritical
	case score >= 7:
		return BandUrgent
	case score >= 5:
		return BandModerate
	case score >= 3:
		return BandLow
	default:
		return BandRoutine
	}
}

// RecommendedAction returns the display guidance for a severity score.
func RecommendedAction(score int) string {
	switch BandFor(score) {
	case BandCritical:
		return "Immediate attention required"
	case BandUrgent:
		return "Needs prompt medical attention"
	case BandModerate:
		return "Should be seen within 1-2 hours"
	case BandLow:
		return "Can wait up to 4 hours"
	default:
		return "Teleconsultation or scheduled visit"
	}
}

// symptomSeverity maps recognized symptom tags to a base severity score.
// Critical tags are a hard override: any match forces the final score to
// the critical band regardless of the weighted formula.
var symptomSeverity = map[string]int{
	// critical
	"chest_pain":           10,
	"breathing_difficulty": 10,
	"severe_bleeding":      10,
	"unconscious":          10,
	"stroke":               10,
	"heart_attack":         10,
	"seizure":              10,
	"anaphylaxis":          10,
	"cardiac_arrest":       10,
	"choking":              10,
	"overdose":             10,
	"major_trauma":         10,

	// urgent
	"high_fever":          8,
	"severe_pain":         8,
	"vomiting_blood":      8,
	"confusion":           8,
	"severe_headache":     8,
	"abdominal_pain":      8,
	"fracture":            8,
	"deep_cut":            8,
	"burns":               8,
	"blood_in_urine":      8,
	"fainting":            8,
	"heavy_bleeding":      8,
	"shortness_of_breath": 8,
	"injury":              8,

	// moderate
	"fever":            6,
	"persistent_cough": 6,
	"moderate_pain":    6,
	"infection":        6,
	"rash":             6,
	"ear_pain":         6,
	"sore_throat":      6,
	"sprain":           6,
	"dizziness":        6,
	"nausea":           6,
	"headache":         6,
	"body_ache":        6,
	"joint_pain":       6,
	"vomiting":         6,
	"diarrhea":         6,
	"back_pain":        6,
	"neck_pain":        6,
	"swelling":         6,
	"weakness":         6,

	// low
	"cold":            4,
	"mild_headache":   4,
	"runny_nose":      4,
	"minor_pain":      4,
	"mild_cough":      4,
	"fatigue":         4,
	"minor_injury":    4,
	"skin_irritation": 4,
	"allergies":       4,
	"sneezing":        4,
	"congestion":      4,
	"mild_fever":      4,

	// routine
	"prescription_refill": 2,
	"follow_up":           2,
	"checkup":             2,
	"vaccination":         2,
	"health_certificate":  2,
	"routine_exam":        2,
	"consultation":        2,
}

// SymptomSeverity returns the base score for a symptom tag and whether the
// tag is recognized.
func SymptomSeverity(tag string) (int, bool) {
	score, ok := symptomSeverity[strings.ToLower(strings.TrimSpace(tag))]
	return score, ok
}

// DurationBucket classifies how long symptoms have been present.
type DurationBucket string

const (
	DurationUnder2Hours DurationBucket = "under_2h"
	DurationHours       DurationBucket = "2_to_24h"
	DurationDays        DurationBucket = "1_to_3d"
	DurationOver3Days   DurationBucket = "over_3d"
)

// Score returns the duration contribution on the 0-10 scale used by the
// severity formula. Longer untreated presentation scores higher, capped
// well below the critical band so duration alone never dominates.
func (d DurationBucket) Score() float64 {
	switch d {
	case DurationUnder2Hours:
		return 0
	case DurationHours:
		return 2
	case DurationDays:
		return 5
	case DurationOver3Days:
		return 8
	default:
		return 0
	}
}

// Valid reports whether the bucket is one of the recognized values.
func (d DurationBucket) Valid() bool {
	switch d {
	case DurationUnder2Hours, DurationHours, DurationDays, DurationOver3Days:
		return true
	}
	return false
}
