package whatsapp

import (
	"fmt"
	"strings"

	"billing-crm/internal/pkg/apperrors"
)

// FormatAddress normalizes a raw phone string into a transport address:
// every non-digit is stripped, and the country prefix is prepended when
// absent. The digit count is validated before prefixing; numbers outside
// [minDigits, maxDigits] are rejected.
func FormatAddress(raw, countryPrefix string, minDigits, maxDigits int) (string, error) {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()

	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", fmt.Errorf("%w: %q has %d digits, expected between %d and %d",
			apperrors.ErrInvalidAddress, raw, len(digits), minDigits, maxDigits)
	}

	if !strings.HasPrefix(digits, countryPrefix) {
		digits = countryPrefix + digits
	}
	return digits, nil
}
