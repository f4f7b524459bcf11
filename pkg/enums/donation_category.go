package enums

import "fmt"

// DonationCategory identifies the designated fund for a gift.
type DonationCategory string

const (
	DonationCategoryTithes       DonationCategory = "tithes"
	DonationCategoryOfferings    DonationCategory = "offerings"
	DonationCategoryBuildingFund DonationCategory = "building_fund"
	DonationCategoryMissions     DonationCategory = "missions"
)

var validDonationCategories = []DonationCategory{
	DonationCategoryTithes,
	DonationCategoryOfferings,
	DonationCategoryBuildingFund,
	DonationCategoryMissions,
}

// DonationCategories returns every recognized category.
func DonationCategories() []DonationCategory {
	out := make([]DonationCategory, len(validDonationCategories))
	copy(out, validDonationCategories)
	return out
}

// String implements fmt.Stringer.
func (c DonationCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known DonationCategory.
func (c DonationCategory) IsValid() bool {
	for _, candidate := range validDonationCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseDonationCategory converts raw input into a DonationCategory.
func ParseDonationCategory(value string) (DonationCategory, error) {
	for _, candidate := range validDonationCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid donation category %q", value)
}
