package entities

import "time"

// Patient represents a registered patient.
type Patient struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	DateOfBirth       time.Time `json:"date_of_birth"`
	ChronicConditions []string  `json:"chronic_conditions"`
}

// Age returns the patient's age in whole years at the given instant.
func (p *Patient) Age(now time.Time) int {
	years := now.Year() - p.DateOfBirth.Year()
	birthday := time.Date(now.Year(), p.DateOfBirth.Month(), p.DateOfBirth.Day(), 0, 0, 0, 0, time.UTC)
	if now.Before(birthday) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// HasChronicConditions reports whether any chronic condition tag is present.
func (p *Patient) HasChronicConditions() bool {
	return len(p.ChronicConditions) > 0
}
