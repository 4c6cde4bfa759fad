package mpesa

import (
	"regexp"
	"strings"

	"github.com/congo-pay/daraja_gateway/internal/config"
)

var phonePattern = regexp.MustCompile(`^254\d{9}$`)

// ValidatePhone accepts Kenyan MSISDNs in 254XXXXXXXXX form.
func ValidatePhone(field, phone string) error {
	if phone == "" {
		return invalid(field, "is required")
	}
	if !phonePattern.MatchString(phone) {
		return invalid(field, "must be in format 2547XXXXXXXX")
	}
	return nil
}

func validateAmount(amount Amount) error {
	if !amount.Valid {
		return invalid("amount", "is required")
	}
	if !amount.Decimal.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	return nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return nil
}

// Validate checks the payout input before any remote call.
func (r PayoutRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if err := ValidatePhone("phoneNumber", r.PhoneNumber); err != nil {
		return err
	}
	return requireText("remarks", r.Remarks)
}

// Validate checks the push-payment input before any remote call.
func (r PushPaymentRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if err := ValidatePhone("phoneNumber", r.PhoneNumber); err != nil {
		return err
	}
	if err := requireText("accountReference", r.AccountReference); err != nil {
		return err
	}
	if err := requireText("transactionDesc", r.TransactionDesc); err != nil {
		return err
	}
	if r.CallbackURL != "" && !config.IsAbsoluteURI(r.CallbackURL) {
		return invalid("callbackURL", "must be a valid absolute URI")
	}
	return nil
}
