package mapper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/graceworks/missionsync/internal/models"
)

// PaymentReference builds the lookup ID that makes gift creation
// idempotent: one platform payment maps to exactly one gift carrying
// "SP-Payment-<id>".
func PaymentReference(sourceID string) string {
	return "SP-Payment-" + sourceID
}

// StandardizePayment flattens a raw payment row into the canonical shape.
// Amounts go through decimal because a float64 round-trip turns 19.99 into
// 19.989999999999998 and the CRM stores what it is given.
func StandardizePayment(raw models.RawPayment) (models.Payment, error) {
	p := models.Payment{
		SourceID:  firstID(raw, "TransactionId", "Id"),
		UserID:    firstID(raw, "UserId", "DonorId"),
		FirstName: firstString(raw, "First", "FirstName", "DonorFirstName"),
		LastName:  firstString(raw, "Last", "LastName", "DonorLastName"),
		Email:     NormalizeEmail(firstString(raw, "Email", "EmailAddress", "DonorEmail")),
		Date:      firstString(raw, "Date", "PaymentDate", "CreatedDate"),
		EventCode: firstString(raw, "EventCode", "TripCode"),
		Method:    firstString(raw, "PaymentMethod", "Method"),
	}
	if p.SourceID == "" {
		return p, errors.New("payment record carries no id")
	}
	amount, err := parseAmount(raw)
	if err != nil {
		return p, fmt.Errorf("payment %s: %w", p.SourceID, err)
	}
	p.Amount = amount
	return p, nil
}

func parseAmount(raw models.RawPayment) (decimal.Decimal, error) {
	for _, key := range []string{"Amount", "Total", "PaymentAmount"} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch a := v.(type) {
		case float64:
			return decimal.NewFromFloat(a), nil
		case string:
			cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(a), "$"))
			cleaned = strings.ReplaceAll(cleaned, ",", "")
			if cleaned == "" {
				continue
			}
			d, err := decimal.NewFromString(cleaned)
			if err != nil {
				return decimal.Zero, fmt.Errorf("unparseable amount %q", a)
			}
			return d, nil
		}
	}
	return decimal.Zero, errors.New("no amount field")
}

// GiftFromPayment builds the CRM gift payload for a resolved constituent.
// Reference and lookup ID both carry the payment reference so the
// duplicate check matches on either field.
func GiftFromPayment(p models.Payment, constituentID, fundID string) models.Gift {
	ref := PaymentReference(p.SourceID)
	amount := models.GiftAmount{Value: p.Amount.InexactFloat64()}
	date, _ := splitTimestamp(p.Date)
	return models.Gift{
		ConstituentID: models.FlexID(constituentID),
		Amount:        amount,
		Date:          date,
		Type:          "Donation",
		Reference:     ref,
		LookupID:      ref,
		GiftStatus:    "Active",
		PostStatus:    "NotPosted",
		GiftSplits:    []models.GiftSplit{{Amount: amount, FundID: fundID}},
		Payments:      []models.GiftPayment{{PaymentMethod: MapPaymentMethod(p.Method)}},
	}
}

// MapPaymentMethod folds the platform's free-form payment method into the
// CRM's closed set. Unknown methods land on Cash, the CRM's catch-all.
func MapPaymentMethod(method string) string {
	m := strings.ToLower(strings.TrimSpace(method))
	switch {
	case strings.Contains(m, "credit"), strings.Contains(m, "card"):
		return "CreditCard"
	case strings.Contains(m, "check"), strings.Contains(m, "cheque"):
		return "PersonalCheck"
	default:
		return "Cash"
	}
}
