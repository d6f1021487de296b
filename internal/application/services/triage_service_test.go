package services

import (
	"strings"
	"testing"

	"github.com/smartcare-health/smartqueue/internal/domain/entities"
	"github.com/smartcare-health/smartqueue/pkg/config"
	"github.com/stretchr/testify/assert"
)

func newTriageService() *TriageService {
	return NewTriageService(config.TriageConfig{TeleconsultMaxSeverity: 4})
}

func TestScore_CriticalSymptomForcesCriticalBand(t *testing.T) {
	svc := newTriageService()

	// Low self-report and short duration must not pull a critical
	// presentation down.
	result := svc.Score(TriageInput{
		Symptoms:     []string{"chest_pain"},
		Duration:     entities.DurationUnder2Hours,
		SelfSeverity: 1,
		Age:          30,
	})

	assert.GreaterOrEqual(t, result.Score, 9)
	assert.Equal(t, entities.BandCritical, result.Band)
	assert.False(t, result.TeleconsultEligible)
}

func TestScore_CriticalElderlyChronicPatient(t *testing.T) {
	svc := newTriageService()

	result := svc.Score(TriageInput{
		Symptoms:     []string{"chest_pain"},
		Duration:     entities.DurationUnder2Hours,
		SelfSeverity: 8,
		Age:          70,
		ChronicTags:  []string{"heart_disease"},
	})

	// Critical override plus chronic bump capped at the maximum.
	assert.Equal(t, 10, result.Score)
	assert.Equal(t, entities.BandCritical, result.Band)
	assert.NotEmpty(t, result.Explanation)
}

func TestScore_WeightedFormula(t *testing.T) {
	svc := newTriageService()

	// fever base 6: 0.6*6 + 0.2*2 + 0.2*5 = 5.0
	result := svc.Score(TriageInput{
		Symptoms:     []string{"fever"},
		Duration:     entities.DurationHours,
		SelfSeverity: 5,
		Age:          30,
	})

	assert.Equal(t, 5, result.Score)
	assert.Equal(t, entities.BandModerate, result.Band)
}

func TestScore_ChronicBump(t *testing.T) {
	svc := newTriageService()

	base := svc.Score(TriageInput{
		Symptoms:     []string{"fever"},
		Duration:     entities.DurationHours,
		SelfSeverity: 5,
		Age:          40,
	})
	bumped := svc.Score(TriageInput{
		Symptoms:     []string{"fever"},
		Duration:     entities.DurationHours,
		SelfSeverity: 5,
		Age:          40,
		ChronicTags:  []string{"diabetes"},
	})

	assert.Equal(t, base.Score+1, bumped.Score)
}

func TestScore_UnknownSymptomDegradesGracefully(t *testing.T) {
	svc := newTriageService()

	result := svc.Score(TriageInput{
		Symptoms:     []string{"weird_unknown_symptom"},
		Duration:     entities.DurationUnder2Hours,
		SelfSeverity: 3,
		Age:          25,
	})

	assert.GreaterOrEqual(t, result.Score, 1)
	assert.LessOrEqual(t, result.Score, 10)

	found := false
	for _, line := range result.Explanation {
		if strings.Contains(line, "weird_unknown_symptom") {
			found = true
		}
	}
	assert.True(t, found, "explanation should mention the unrecognized tag")
}

func TestScore_Deterministic(t *testing.T) {
	svc := newTriageService()
	input := TriageInput{
		Symptoms:     []string{"headache", "nausea"},
		Duration:     entities.DurationDays,
		SelfSeverity: 6,
		Age:          45,
		ChronicTags:  []string{"hypertension"},
	}

	first := svc.Score(input)
	second := svc.Score(input)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Explanation, second.Explanation)
}

func TestScore_TeleconsultEligibility(t *testing.T) {
	svc := newTriageService()

	mild := svc.Score(TriageInput{
		Symptoms:     []string{"cold"},
		Duration:     entities.DurationUnder2Hours,
		SelfSeverity: 2,
		Age:          30,
	})
	assert.True(t, mild.TeleconsultEligible)

	urgent := svc.Score(TriageInput{
		Symptoms:     []string{"fracture"},
		Duration:     entities.DurationUnder2Hours,
		SelfSeverity: 8,
		Age:          30,
	})
	assert.False(t, urgent.TeleconsultEligible)
}
