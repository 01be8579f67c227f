// Package session implements the payment-gated unlock state machine and its
// polling protocol.
package session

import (
	"context"
	"sync"
	"time"

	lnhunt "github.com/lnhunt/lnhunt"
)

// Default polling schedule. The interval keeps growing on every tick, not
// just on errors, so long-pending invoices put less load on the provider.
const (
	DefaultPollBase   = 1 * time.Second
	DefaultPollMax    = 15 * time.Second
	DefaultPollFactor = 1.5
)

// Poller repeatedly checks payment status for an invoice until it is paid or
// the poll is cancelled. There is no hard timeout: the player may take as
// long as they like, backoff bounds the request rate instead.
type Poller struct {
	provider lnhunt.InvoiceProvider
	base     time.Duration
	max      time.Duration
	factor   float64
}

// PollerOption customizes the polling schedule.
type PollerOption func(*Poller)

// WithSchedule overrides the default backoff parameters.
func WithSchedule(base, max time.Duration, factor float64) PollerOption {
	return func(p *Poller) {
		p.base = base
		p.max = max
		p.factor = factor
	}
}

// NewPoller creates a poller against the given provider.
func NewPoller(provider lnhunt.InvoiceProvider, opts ...PollerOption) *Poller {
	p := &Poller{
		provider: provider,
		base:     DefaultPollBase,
		max:      DefaultPollMax,
		factor:   DefaultPollFactor,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle controls a running poll loop. Cancellation is cooperative: the flag
// is checked after every response and before the terminal callback, so a
// response already in flight when Cancel is called can never complete the
// session.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Cancel stops the poll loop. Safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed when the loop has fully stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Start validates the hash and launches the poll loop. onPaid is invoked
// exactly once when the terminal paid status is observed, and never after
// cancellation.
func (p *Poller) Start(ctx context.Context, paymentHash string, onPaid func()) (*Handle, error) {
	if !lnhunt.ValidPaymentHash(paymentHash) {
		return nil, lnhunt.NewError(lnhunt.ErrCodeValidation, "invalid payment hash format", nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.run(ctx, paymentHash, h, onPaid)
	return h, nil
}

func (p *Poller) run(ctx context.Context, paymentHash string, h *Handle, onPaid func()) {
	defer close(h.done)
	defer h.cancel()

	delay := p.base
	for {
		status, err := p.provider.CheckPayment(ctx, paymentHash)

		// A slow response may return after cancellation; check before acting
		// on it, not just before scheduling the next tick.
		if ctx.Err() != nil {
			return
		}

		if err == nil && status.Paid() {
			h.once.Do(onPaid)
			return
		}

		wait := delay
		if err == nil && status.State == lnhunt.PaymentRateLimited && status.RetryAfter > 0 {
			// Honor the provider-specified interval verbatim; growth resumes
			// from it afterwards.
			wait = status.RetryAfter
			delay = status.RetryAfter
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}

		delay = p.nextDelay(delay)
	}
}

// nextDelay grows the interval by the backoff factor up to the cap. Growth
// resets only when a poll completes or is cancelled.
func (p *Poller) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.factor)
	if next > p.max {
		return p.max
	}
	return next
}
