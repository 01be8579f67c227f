package lnbits

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lnhunt "github.com/lnhunt/lnhunt"
)

// FakeProvider is a deterministic in-process provider for tests and local
// development. It must be selected explicitly at startup; it is never a
// silent fallback for missing credentials.
type FakeProvider struct {
	mu       sync.Mutex
	seq      int
	invoices map[string]*fakeInvoice

	// AutoSettleChecks settles an invoice after that many status checks.
	// Zero means invoices settle only through Settle.
	AutoSettleChecks int
}

type fakeInvoice struct {
	questionID string
	paid       bool
	checks     int
}

// NewFakeProvider creates an empty fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{invoices: make(map[string]*fakeInvoice)}
}

// CreateInvoice mints a deterministic invoice for the question.
func (p *FakeProvider) CreateInvoice(_ context.Context, questionID string, amountSats int64) (lnhunt.Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", questionID, amountSats, p.seq)))
	hash := hex.EncodeToString(sum[:])

	p.invoices[hash] = &fakeInvoice{questionID: questionID}

	return lnhunt.Invoice{
		PaymentHash:    hash,
		PaymentRequest: "lnbcrt" + fmt.Sprintf("%d", amountSats) + "n1fake" + hash[:24],
	}, nil
}

// CheckPayment reports the scripted settlement state of an invoice.
func (p *FakeProvider) CheckPayment(_ context.Context, paymentHash string) (lnhunt.PaymentStatus, error) {
	if !lnhunt.ValidPaymentHash(paymentHash) {
		return lnhunt.PaymentStatus{}, lnhunt.NewError(lnhunt.ErrCodeValidation, "invalid payment hash format", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	inv, ok := p.invoices[paymentHash]
	if !ok {
		return lnhunt.PaymentStatus{State: lnhunt.PaymentProviderUnavailable},
			lnhunt.NewError(lnhunt.ErrCodeProvider, "unknown payment hash", nil)
	}

	inv.checks++
	if p.AutoSettleChecks > 0 && inv.checks >= p.AutoSettleChecks {
		inv.paid = true
	}

	if inv.paid {
		return lnhunt.PaymentStatus{State: lnhunt.PaymentPaid}, nil
	}
	return lnhunt.PaymentStatus{State: lnhunt.PaymentPending}, nil
}

// Settle marks an invoice as paid, as if the player had completed payment.
func (p *FakeProvider) Settle(paymentHash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	inv, ok := p.invoices[paymentHash]
	if !ok {
		return false
	}
	inv.paid = true
	return true
}

// CreateCalls returns how many invoices have been created.
func (p *FakeProvider) CreateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Ensure FakeProvider implements InvoiceProvider
var _ lnhunt.InvoiceProvider = (*FakeProvider)(nil)
