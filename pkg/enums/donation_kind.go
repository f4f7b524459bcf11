package enums

import "fmt"

// DonationKind distinguishes one-off gifts from recurring pledges.
type DonationKind string

const (
	DonationKindOneTime   DonationKind = "one_time"
	DonationKindRecurring DonationKind = "recurring"
)

var validDonationKinds = []DonationKind{
	DonationKindOneTime,
	DonationKindRecurring,
}

// String implements fmt.Stringer.
func (k DonationKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known DonationKind.
func (k DonationKind) IsValid() bool {
	for _, candidate := range validDonationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseDonationKind converts raw input into a DonationKind.
func ParseDonationKind(value string) (DonationKind, error) {
	for _, candidate := range validDonationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid donation kind %q", value)
}
