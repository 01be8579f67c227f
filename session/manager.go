package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	lnhunt "github.com/lnhunt/lnhunt"
	"github.com/lnhunt/lnhunt/progress"
)

// Manager is the central unlock controller. It enforces the per-question
// session invariants: at most one active session exists at a time, at most
// one pending invoice per question, and the terminal payment callback fires
// exactly once per session.
type Manager struct {
	mu sync.Mutex

	catalog    *lnhunt.Catalog
	provider   lnhunt.InvoiceProvider
	poller     *Poller
	progress   *progress.Aggregator
	amountSats int64

	// active is the single current session. Selecting a different question
	// cancels and discards it.
	active *session

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager wires the unlock controller. ctx bounds the lifetime of all
// pollers the manager starts.
func NewManager(ctx context.Context, catalog *lnhunt.Catalog, provider lnhunt.InvoiceProvider, poller *Poller, aggregator *progress.Aggregator, amountSats int64) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		catalog:    catalog,
		provider:   provider,
		poller:     poller,
		progress:   aggregator,
		amountSats: amountSats,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Close cancels any in-flight poll and discards the active session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropActiveLocked()
	m.cancel()
}

// Select begins (or resumes) the unlock flow for a question.
//
// An already-solved question short-circuits straight to the solved view: no
// code check, no invoice, zero provider calls. Re-selecting the question of
// the current session reuses it, including its in-flight poller. Selecting a
// different question cancels and discards the previous session.
func (m *Manager) Select(questionID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.catalog.Get(questionID)
	if !ok {
		return nil, lnhunt.NewError(lnhunt.ErrCodeQuestionNotFound, fmt.Sprintf("unknown question %q", questionID), nil)
	}

	if snap, err := m.solvedSnapshotLocked(questionID); snap != nil || err != nil {
		return snap, err
	}

	if m.active != nil {
		if m.active.questionID == questionID {
			return m.active.snapshot(), nil
		}
		m.dropActiveLocked()
	}

	m.active = &session{
		id:         uuid.NewString(),
		questionID: questionID,
		question:   q,
		state:      StateAwaitingCode,
		createdAt:  time.Now(),
	}
	return m.active.snapshot(), nil
}

// SubmitCode checks the physically discovered code. A failed check surfaces a
// validation error and leaves the state unchanged. A successful check enters
// the payment step and immediately creates the session's single invoice.
func (m *Manager) SubmitCode(questionID, code string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.activeForLocked(questionID)
	if err != nil {
		return nil, err
	}
	if s.state != StateAwaitingCode {
		return nil, lnhunt.NewError(lnhunt.ErrCodeInvalidState, fmt.Sprintf("no pending code check (state %s)", s.state), nil)
	}

	if len(lnhunt.SanitizeCode(code)) < 2 {
		return nil, lnhunt.NewError(lnhunt.ErrCodeValidation, "please enter a valid code", nil)
	}
	if !s.question.MatchesPhysicalCode(code) {
		return nil, lnhunt.NewError(lnhunt.ErrCodeValidation, "wrong code, check the station again", nil)
	}

	m.createInvoiceLocked(s)
	return s.snapshot(), nil
}

// RetryInvoice re-attempts invoice creation after a provider failure. Only
// legal from the invoice-error sub-state; retry is manual, never an
// automatic loop.
func (m *Manager) RetryInvoice(questionID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.activeForLocked(questionID)
	if err != nil {
		return nil, err
	}
	if s.state != StateInvoiceError {
		return nil, lnhunt.NewError(lnhunt.ErrCodeInvalidState, fmt.Sprintf("nothing to retry (state %s)", s.state), nil)
	}

	m.createInvoiceLocked(s)
	return s.snapshot(), nil
}

// SubmitAnswer checks the selected option. A correct answer records the
// fragment (idempotently) and completes the session. A wrong answer abandons
// the paid invoice and starts a fresh session with a fresh invoice; the old
// invoice is never reusable.
func (m *Manager) SubmitAnswer(questionID string, optionIndex int) (*AnswerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.activeForLocked(questionID)
	if err != nil {
		return nil, err
	}
	if s.state != StateAnswering {
		return nil, lnhunt.NewError(lnhunt.ErrCodeInvalidState, fmt.Sprintf("question is not unlocked for answering (state %s)", s.state), nil)
	}
	if optionIndex < 0 || optionIndex >= len(s.question.Options) {
		return nil, lnhunt.NewError(lnhunt.ErrCodeValidation, "answer index out of range", nil)
	}

	if s.question.CorrectAnswer(optionIndex) {
		// The fragment is recorded strictly after the correct-answer check,
		// never through the payment step alone.
		if err := m.progress.RecordFragment(questionID, s.question.DigitalCode); err != nil {
			return nil, err
		}
		m.dropActiveLocked()
		return &AnswerResult{
			Correct: true,
			Snapshot: &Snapshot{
				QuestionID: questionID,
				State:      StateSolved,
				Fragment:   s.question.DigitalCode,
			},
		}, nil
	}

	// Wrong answer: the old session and its invoice are discarded; retrying
	// requires paying a fresh invoice.
	q := s.question
	m.dropActiveLocked()

	next := &session{
		id:         uuid.NewString(),
		questionID: questionID,
		question:   q,
		createdAt:  time.Now(),
	}
	m.active = next
	m.createInvoiceLocked(next)

	return &AnswerResult{Correct: false, Snapshot: next.snapshot()}, nil
}

// Snapshot returns the current unlock view for a question without changing
// any state.
func (m *Manager) Snapshot(questionID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.catalog.Get(questionID); !ok {
		return nil, lnhunt.NewError(lnhunt.ErrCodeQuestionNotFound, fmt.Sprintf("unknown question %q", questionID), nil)
	}

	if snap, err := m.solvedSnapshotLocked(questionID); snap != nil || err != nil {
		return snap, err
	}

	if m.active != nil && m.active.questionID == questionID {
		return m.active.snapshot(), nil
	}
	return &Snapshot{QuestionID: questionID, State: StateLocked}, nil
}

// Abandon discards the active session, if any. Used by the cache-clear
// operation together with a store reset.
func (m *Manager) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropActiveLocked()
}

// createInvoiceLocked performs the single invoice creation for a session
// entering the payment step, and starts the poll loop on success. A provider
// failure lands in the invoice-error sub-state instead of retrying.
func (m *Manager) createInvoiceLocked(s *session) {
	invoice, err := m.provider.CreateInvoice(m.ctx, s.questionID, m.amountSats)
	if err != nil {
		s.state = StateInvoiceError
		s.lastErr = "could not create invoice, try again"
		return
	}

	handle, err := m.poller.Start(m.ctx, invoice.PaymentHash, func() { m.paymentConfirmed(s) })
	if err != nil {
		s.state = StateInvoiceError
		s.lastErr = "provider returned an unusable payment hash"
		return
	}

	s.invoice = invoice
	s.handle = handle
	s.state = StateAwaitingPayment
	s.lastErr = ""
}

// paymentConfirmed is the poller's terminal callback. It fires the
// AwaitingPayment -> Answering transition exactly once per session; any
// duplicate observation is a silent no-op, never an error.
func (m *Manager) paymentConfirmed(s *session) {
	if !s.paymentDetected.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The session may have been abandoned while the paid response was in
	// flight; a stale confirmation must not resurrect it.
	if m.active != s || s.state != StateAwaitingPayment {
		return
	}
	s.state = StateAnswering
}

func (m *Manager) activeForLocked(questionID string) (*session, error) {
	if _, ok := m.catalog.Get(questionID); !ok {
		return nil, lnhunt.NewError(lnhunt.ErrCodeQuestionNotFound, fmt.Sprintf("unknown question %q", questionID), nil)
	}
	if m.active == nil || m.active.questionID != questionID {
		return nil, lnhunt.NewError(lnhunt.ErrCodeInvalidState, "question is not selected", nil)
	}
	return m.active, nil
}

// solvedSnapshotLocked returns the terminal solved view when a fragment is
// already recorded, so re-answering never consumes another payment.
func (m *Manager) solvedSnapshotLocked(questionID string) (*Snapshot, error) {
	fragment, solved, err := m.progress.Fragment(questionID)
	if err != nil {
		return nil, err
	}
	if !solved {
		return nil, nil
	}
	if m.active != nil && m.active.questionID == questionID {
		m.dropActiveLocked()
	}
	return &Snapshot{
		QuestionID: questionID,
		State:      StateSolved,
		Fragment:   fragment,
	}, nil
}

func (m *Manager) dropActiveLocked() {
	if m.active == nil {
		return
	}
	if m.active.handle != nil {
		m.active.handle.Cancel()
	}
	m.active = nil
}
