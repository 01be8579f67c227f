package lnhunt

import "context"

// InvoiceProvider is the payment provider capability. The real implementation
// talks to an LNbits node over HTTP; tests use a deterministic fake. The
// implementation is selected once at startup and never branched on again.
type InvoiceProvider interface {
	// CreateInvoice issues exactly one outbound request to create an invoice
	// for unlocking the given question. It does not retry internally; the
	// caller creates a fresh invoice on failure instead of replaying the
	// same request.
	CreateInvoice(ctx context.Context, questionID string, amountSats int64) (Invoice, error)

	// CheckPayment queries settlement status for a payment hash. Transport
	// and provider failures are reported as PaymentProviderUnavailable along
	// with the underlying error; a rate-limit rejection carries the
	// provider-specified retry interval.
	CheckPayment(ctx context.Context, paymentHash string) (PaymentStatus, error)
}
