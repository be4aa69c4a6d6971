package payment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	defaultReference   = "SpinWish"
	maxReferenceLength = 12
)

var (
	canonicalPhonePattern = regexp.MustCompile(`^254[17][0-9]{8}$`)
	receiptPattern        = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	nonDigit              = regexp.MustCompile(`[^0-9]`)
	nonAlphanumeric       = regexp.MustCompile(`[^A-Za-z0-9]`)

	MinAmount = decimal.NewFromInt(1)
	MaxAmount = decimal.NewFromInt(300000)
)

// ValidationError reports bad input. It is never retried.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NormalizePhone converts local (07XXXXXXXX), bare nine digit,
// international and plus-prefixed numbers into the 2547XXXXXXXX form.
func NormalizePhone(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &ValidationError{Field: "phone", Message: "phone number is required"}
	}

	digits := nonDigit.ReplaceAllString(raw, "")
	switch {
	case strings.HasPrefix(digits, "254"):
	case strings.HasPrefix(digits, "0"):
		digits = "254" + digits[1:]
	case len(digits) == 9:
		digits = "254" + digits
	}

	if !canonicalPhonePattern.MatchString(digits) {
		return "", &ValidationError{Field: "phone", Message: fmt.Sprintf("%q is not a valid mobile number", raw)}
	}
	return digits, nil
}

// ValidateAmount checks presence, the [1, 300000] range and at most two
// decimal places.
func ValidateAmount(amount *decimal.Decimal) error {
	if amount == nil {
		return &ValidationError{Field: "amount", Message: "amount is required"}
	}
	if amount.LessThan(MinAmount) {
		return &ValidationError{Field: "amount", Message: "amount must be at least " + MinAmount.String()}
	}
	if amount.GreaterThan(MaxAmount) {
		return &ValidationError{Field: "amount", Message: "amount must not exceed " + MaxAmount.String()}
	}
	if !amount.Equal(amount.Truncate(2)) {
		return &ValidationError{Field: "amount", Message: "amount must have at most 2 decimal places"}
	}
	return nil
}

func SanitizeReference(text string) string {
	ref := nonAlphanumeric.ReplaceAllString(text, "")
	if len(ref) > maxReferenceLength {
		ref = ref[:maxReferenceLength]
	}
	if ref == "" {
		return defaultReference
	}
	return ref
}

// IsValidReceipt reports whether a provider receipt number is well formed.
func IsValidReceipt(receipt string) bool {
	return receiptPattern.MatchString(receipt)
}
