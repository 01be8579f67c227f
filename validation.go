package lnhunt

import (
	"regexp"
	"strings"
)

// Payment hashes are 64 hex characters. Anything else is rejected before a
// single provider call is made.
var paymentHashRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// markupRegex strips HTML/script tags from player input.
var markupRegex = regexp.MustCompile(`<[^>]*>`)

const (
	// maxCodeLength caps sanitized physical-code input.
	maxCodeLength = 50
	// minCodeLength is the shortest input accepted for a code check.
	minCodeLength = 2
)

// ValidPaymentHash reports whether a string has the fixed payment-hash format.
func ValidPaymentHash(hash string) bool {
	return paymentHashRegex.MatchString(hash)
}

// SanitizeCode cleans physical-code input before comparison:
// markup is removed, control and non-ASCII characters are dropped, and the
// result is capped at maxCodeLength characters.
func SanitizeCode(input string) string {
	sanitized := markupRegex.ReplaceAllString(strings.TrimSpace(input), "")

	out := make([]byte, 0, len(sanitized))
	for i := 0; i < len(sanitized); i++ {
		ch := sanitized[i]
		if ch >= 0x20 && ch <= 0x7e {
			out = append(out, ch)
		}
	}

	if len(out) > maxCodeLength {
		out = out[:maxCodeLength]
	}
	return string(out)
}
