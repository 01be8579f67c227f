package session

import (
	"encoding/json"
	"sync/atomic"
	"time"

	lnhunt "github.com/lnhunt/lnhunt"
)

// State is the per-question unlock state.
type State int

const (
	// StateLocked means no session exists for the question.
	StateLocked State = iota
	// StateAwaitingCode waits for the physically discovered code.
	StateAwaitingCode
	// StateAwaitingPayment waits for the invoice to settle.
	StateAwaitingPayment
	// StateInvoiceError is the error sub-state after a failed invoice
	// creation, offering a manual retry.
	StateInvoiceError
	// StateAnswering shows the question after a confirmed payment.
	StateAnswering
	// StateSolved is terminal: the fragment has been recorded.
	StateSolved
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateAwaitingPayment:
		return "awaiting_payment"
	case StateInvoiceError:
		return "invoice_error"
	case StateAnswering:
		return "answering"
	case StateSolved:
		return "solved"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by its wire name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// session is one ephemeral unlock attempt for a question, owned by the
// Manager. It is created on selection and destroyed when the question is
// solved or abandoned.
type session struct {
	id         string
	questionID string
	question   lnhunt.Question
	state      State
	invoice    lnhunt.Invoice
	createdAt  time.Time
	lastErr    string

	// paymentDetected flips false to true exactly once; it is the sole guard
	// against a duplicate terminal callback.
	paymentDetected atomic.Bool

	handle *Handle
}

func (s *session) snapshot() *Snapshot {
	snap := &Snapshot{
		SessionID:  s.id,
		QuestionID: s.questionID,
		State:      s.state,
		Error:      s.lastErr,
	}
	if s.state == StateAwaitingPayment {
		snap.PaymentHash = s.invoice.PaymentHash
		snap.PaymentRequest = s.invoice.PaymentRequest
	}
	return snap
}

// Snapshot is a read-only view of a question's unlock progress, safe to hand
// to the HTTP layer.
type Snapshot struct {
	SessionID      string `json:"session_id,omitempty"`
	QuestionID     string `json:"question_id"`
	State          State  `json:"state"`
	PaymentHash    string `json:"payment_hash,omitempty"`
	PaymentRequest string `json:"payment_request,omitempty"`
	Fragment       string `json:"fragment,omitempty"`
	Error          string `json:"error,omitempty"`
}

// AnswerResult reports the outcome of an answer submission.
type AnswerResult struct {
	Correct  bool      `json:"correct"`
	Snapshot *Snapshot `json:"session"`
}
