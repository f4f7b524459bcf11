package stripewebhook

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gracechapelhq/gracechapel-backend/pkg/db/models"
	"github.com/gracechapelhq/gracechapel-backend/pkg/enums"
	"github.com/gracechapelhq/gracechapel-backend/pkg/mailer"
)

var categoryLabels = map[enums.DonationCategory]string{
	enums.DonationCategoryTithes:       "Tithes",
	enums.DonationCategoryOfferings:    "Offerings",
	enums.DonationCategoryBuildingFund: "Building Fund",
	enums.DonationCategoryMissions:     "Missions",
}

func buildReceiptMessage(donation *models.Donation) mailer.Message {
	amount := formatAmount(donation.AmountCents, donation.Currency)
	category := categoryLabels[donation.Category]
	if category == "" {
		category = string(donation.Category)
	}

	subject := fmt.Sprintf("Thank you for your %s gift of %s", category, amount)
	text := fmt.Sprintf(
		"Thank you for your generous gift.\n\nAmount: %s\nFund: %s\nReference: %s\n\nGrace Chapel",
		amount, category, donation.SessionID,
	)
	html := fmt.Sprintf(
		"<p>Thank you for your generous gift.</p><ul><li>Amount: %s</li><li>Fund: %s</li><li>Reference: %s</li></ul><p>Grace Chapel</p>",
		amount, category, donation.SessionID,
	)

	return mailer.Message{
		To:       *donation.DonorEmail,
		Subject:  subject,
		HTMLBody: html,
		TextBody: text,
	}
}

func formatAmount(cents int64, currency enums.Currency) string {
	value := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
	return fmt.Sprintf("%s %s", value.StringFixed(2), strings.ToUpper(string(currency)))
}
