package enums

import "fmt"

// DonationStatus tracks the lifecycle of a donation transaction.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusFailed    DonationStatus = "failed"
	DonationStatusCancelled DonationStatus = "cancelled"
)

var validDonationStatuses = []DonationStatus{
	DonationStatusPending,
	DonationStatusCompleted,
	DonationStatusFailed,
	DonationStatusCancelled,
}

// String implements fmt.Stringer.
func (s DonationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DonationStatus.
func (s DonationStatus) IsValid() bool {
	for _, candidate := range validDonationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the donation lifecycle.
func (s DonationStatus) IsTerminal() bool {
	switch s {
	case DonationStatusCompleted, DonationStatusFailed, DonationStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving to next advances the lifecycle.
// Transitions only move forward: a terminal status is never replaced, and
// re-applying the current status is a no-op.
func (s DonationStatus) CanTransitionTo(next DonationStatus) bool {
	if s == next {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return next.IsValid()
}

// ParseDonationStatus converts raw input into a DonationStatus.
func ParseDonationStatus(value string) (DonationStatus, error) {
	for _, candidate := range validDonationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid donation status %q", value)
}
