package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/pkg/config"
)

// Weights of the severity formula. Base symptom score dominates; duration
// and self-assessment refine it.
const (
	severityBaseWeight     = 0.6
	severityDurationWeight = 0.2
	severitySelfWeight     = 0.2

	// criticalFloor is the minimum score forced by a critical symptom tag.
	criticalFloor = 9

	// chronicBump is added once when any chronic condition is present.
	chronicBump = 1

	// neutralBase is used when no symptom tag is recognized.
	neutralBase = 5
)

// TriageInput is everything the scorer needs for one assessment.
type TriageInput struct {
	Symptoms     []string
	Description  string
	Duration     entities.DurationBucket
	SelfSeverity int
	Age          int
	ChronicTags  []string
}

// TriageResult is the outcome of one severity assessment.
type TriageResult struct {
	Score               int                   `json:"score"`
	Band                entities.SeverityBand `json:"band"`
	Explanation         []string              `json:"explanation"`
	RecommendedAction   string                `json:"recommended_action"`
	TeleconsultEligible bool                  `json:"teleconsult_eligible"`
}

// TriageService computes urgency scores from structured symptom data. It
// is deterministic: identical input always yields the identical score and
// explanation trail.
type TriageService struct {
	cfg config.TriageConfig
}

// NewTriageService creates a new triage service.
func NewTriageService(cfg config.TriageConfig) *TriageService {
	return &TriageService{cfg: cfg}
}

// Score maps symptom tags, duration, self-report and patient attributes to
// a severity score in [1,10] plus an ordered explanation trail.
func (s *TriageService) Score(input TriageInput) TriageResult {
	var explanation []string

	base, matched, unknown := s.baseFromSymptoms(input.Symptoms)

	for _, tag := range unknown {
		explanation = append(explanation, fmt.Sprintf("Unrecognized symptom %q ignored for scoring", tag))
	}

	critical := false
	switch {
	case matched == "":
		base = neutralBase
		explanation = append(explanation, "No recognized symptoms, starting from a neutral base")
	case base >= criticalFloor:
		critical = true
		explanation = append(explanation, fmt.Sprintf("Critical symptom %q forces the critical band", matched))
	default:
		explanation = append(explanation, fmt.Sprintf("Highest-severity symptom %q scores %d", matched, base))
	}

	var score int
	if critical {
		// Hard override: weighted factors never pull a critical
		// presentation below the floor.
		score = base
		if score < criticalFloor {
			score = criticalFloor
		}
	} else {
		self := clampInt(input.SelfSeverity, 1, entities.MaxSeverity)
		weighted := severityBaseWeight*float64(base) +
			severityDurationWeight*input.Duration.Score() +
			severitySelfWeight*float64(self)
		score = clampInt(int(math.Round(weighted)), 1, entities.MaxSeverity)
		if input.Duration.Score() > 0 {
			explanation = append(explanation, fmt.Sprintf("Symptom duration (%s) raises urgency", input.Duration))
		}
		explanation = append(explanation, fmt.Sprintf("Self-reported severity %d/10 factored in", self))
	}

	if len(input.ChronicTags) > 0 {
		before := score
		score = clampInt(score+chronicBump, 1, entities.MaxSeverity)
		if score > before {
			explanation = append(explanation, fmt.Sprintf("Chronic condition history adds +%d", chronicBump))
		} else {
			explanation = append(explanation, "Chronic condition history noted, score already at maximum")
		}
	}

	band := entities.BandFor(score)
	return TriageResult{
		Score:               score,
		Band:                band,
		Explanation:         explanation,
		RecommendedAction:   entities.RecommendedAction(score),
		TeleconsultEligible: s.teleconsultEligible(score, critical),
	}
}

// baseFromSymptoms finds the highest-severity recognized tag. Unknown tags
// are collected for explanation, never treated as errors.
func (s *TriageService) baseFromSymptoms(symptoms []string) (base int, matched string, unknown []string) {
	for _, tag := range symptoms {
		score, ok := entities.SymptomSeverity(tag)
		if !ok {
			unknown = append(unknown, tag)
			continue
		}
		if score > base {
			base = score
			matched = tag
		}
	}
	sort.Strings(unknown)
	return base, matched, unknown
}

// teleconsultEligible is true for mild presentations that can be handled
// remotely. Critical presentations are never eligible.
func (s *TriageService) teleconsultEligible(score int, critical bool) bool {
	return !critical && score <= s.cfg.TeleconsultMaxSeverity
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
