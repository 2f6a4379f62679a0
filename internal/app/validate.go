/**
 * @description
 * Input validation for the sponsorship-service. Chain addresses, decimal
 * amounts, and trust scores are validated here at the service boundary so the
 * rest of the code can rely on well-formed values.
 *
 * @notes
 * - Amounts arrive as decimal strings and are parsed with shopspring/decimal;
 *   float parsing is never used for money.
 */

package app

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError reports a malformed field in a request. The caller can fix
// the input and retry; validation failures are never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// 20-byte hex chain address, case-insensitive.
var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// normalizeAddress validates and lower-cases a chain address.
func normalizeAddress(field, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !addressPattern.MatchString(trimmed) {
		return "", &ValidationError{Field: field, Message: "must be a 0x-prefixed 20-byte hex address"}
	}
	return strings.ToLower(trimmed), nil
}

// parseAmount parses a decimal-string amount, rejecting non-numeric input.
func parseAmount(field, raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, &ValidationError{Field: field, Message: "is required"}
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Message: "must be a decimal number"}
	}
	return amount, nil
}

// parseNonNegativeAmount parses a decimal-string amount and rejects negatives.
func parseNonNegativeAmount(field, raw string) (decimal.Decimal, error) {
	amount, err := parseAmount(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, &ValidationError{Field: field, Message: "must not be negative"}
	}
	return amount, nil
}

// parsePositiveAmount parses a decimal-string amount that must be > 0.
func parsePositiveAmount(field, raw string) (decimal.Decimal, error) {
	amount, err := parseAmount(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, &ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return amount, nil
}

// validateTrustScore bounds an administrator-assigned trust score to 0-100.
func validateTrustScore(score int) error {
	if score < 0 || score > 100 {
		return &ValidationError{Field: "trust_score", Message: "must be between 0 and 100"}
	}
	return nil
}
