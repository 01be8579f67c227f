package lnhunt

import "time"

// Invoice is a Lightning payment request created by the provider.
// PaymentHash is the fixed-format identifier correlating the invoice to its
// settlement status; PaymentRequest is the opaque BOLT11 encoded string the
// player actually pays.
type Invoice struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
}

// PaymentState enumerates the possible outcomes of a single status check.
type PaymentState int

const (
	// PaymentPending means the invoice exists but has not settled yet.
	PaymentPending PaymentState = iota
	// PaymentPaid is the terminal settled state. It is never reversed.
	PaymentPaid
	// PaymentRateLimited means the checking endpoint refused the request and
	// supplied a retry interval that callers must honor verbatim.
	PaymentRateLimited
	// PaymentProviderUnavailable covers transport failures, provider 5xx
	// responses and malformed payloads. All are treated as transient.
	PaymentProviderUnavailable
)

// String returns a human-readable name for the state.
func (s PaymentState) String() string {
	switch s {
	case PaymentPending:
		return "pending"
	case PaymentPaid:
		return "paid"
	case PaymentRateLimited:
		return "rate_limited"
	case PaymentProviderUnavailable:
		return "provider_unavailable"
	default:
		return "unknown"
	}
}

// PaymentStatus is the typed result of a status check, parsed once at the
// provider boundary instead of passing raw payloads through the session logic.
type PaymentStatus struct {
	State PaymentState

	// RetryAfter is only meaningful when State is PaymentRateLimited.
	RetryAfter time.Duration
}

// Paid reports whether the status is the terminal settled observation.
func (s PaymentStatus) Paid() bool { return s.State == PaymentPaid }
