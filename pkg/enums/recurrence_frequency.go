package enums

import "fmt"

// RecurrenceFrequency captures how often a recurring gift repeats.
type RecurrenceFrequency string

const (
	RecurrenceFrequencyWeekly    RecurrenceFrequency = "weekly"
	RecurrenceFrequencyMonthly   RecurrenceFrequency = "monthly"
	RecurrenceFrequencyQuarterly RecurrenceFrequency = "quarterly"
	RecurrenceFrequencyAnnually  RecurrenceFrequency = "annually"
)

var validRecurrenceFrequencies = []RecurrenceFrequency{
	RecurrenceFrequencyWeekly,
	RecurrenceFrequencyMonthly,
	RecurrenceFrequencyQuarterly,
	RecurrenceFrequencyAnnually,
}

// String implements fmt.Stringer.
func (f RecurrenceFrequency) String() string {
	return string(f)
}

// IsValid reports whether the value is a known RecurrenceFrequency.
func (f RecurrenceFrequency) IsValid() bool {
	for _, candidate := range validRecurrenceFrequencies {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseRecurrenceFrequency converts raw input into a RecurrenceFrequency.
func ParseRecurrenceFrequency(value string) (RecurrenceFrequency, error) {
	for _, candidate := range validRecurrenceFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recurrence frequency %q", value)
}
