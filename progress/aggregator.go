package progress

import (
	"strings"

	lnhunt "github.com/lnhunt/lnhunt"
)

// Slot is one position in the collected-fragment sequence.
type Slot struct {
	QuestionID string `json:"question_id"`
	Solved     bool   `json:"solved"`

	// Fragment is the digital code once solved, otherwise empty.
	Fragment string `json:"fragment,omitempty"`

	// Placeholder masks an unsolved fragment with one underscore per
	// character, so the display phrase keeps its shape.
	Placeholder string `json:"placeholder,omitempty"`
}

// Aggregator derives overall completion from the persisted per-question
// state. Ordering always follows the catalog, never map iteration order, so
// concatenated fragments form a stable phrase.
type Aggregator struct {
	catalog *lnhunt.Catalog
	store   Store
}

// NewAggregator creates an aggregator over the catalog and store.
func NewAggregator(catalog *lnhunt.Catalog, store Store) *Aggregator {
	return &Aggregator{catalog: catalog, store: store}
}

// RecordFragment persists the fragment for a solved question. Idempotent.
func (a *Aggregator) RecordFragment(questionID, fragment string) error {
	return a.store.RecordFragment(questionID, fragment)
}

// Fragment returns the recorded fragment for a question, if any.
func (a *Aggregator) Fragment(questionID string) (string, bool, error) {
	return a.store.Fragment(questionID)
}

// Collected returns one slot per question in catalog order.
func (a *Aggregator) Collected() ([]Slot, error) {
	recorded, err := a.store.Fragments()
	if err != nil {
		return nil, err
	}

	questions := a.catalog.Ordered()
	slots := make([]Slot, 0, len(questions))
	for _, q := range questions {
		slot := Slot{QuestionID: q.ID}
		if fragment, ok := recorded[q.ID]; ok {
			slot.Solved = true
			slot.Fragment = fragment
		} else {
			slot.Placeholder = strings.Repeat("_", len(q.DigitalCode))
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// IsComplete reports whether every question has a recorded fragment.
func (a *Aggregator) IsComplete() (bool, error) {
	recorded, err := a.store.Fragments()
	if err != nil {
		return false, err
	}
	for _, q := range a.catalog.Ordered() {
		if _, ok := recorded[q.ID]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// DisplayPhrase joins fragments and placeholders in catalog order.
func (a *Aggregator) DisplayPhrase() (string, error) {
	slots, err := a.Collected()
	if err != nil {
		return "", err
	}
	words := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.Solved {
			words = append(words, slot.Fragment)
		} else {
			words = append(words, slot.Placeholder)
		}
	}
	return strings.Join(words, " "), nil
}

// CheckPhrase verifies the player's final phrase, case-insensitively, against
// the full digital-code sequence of the catalog.
func (a *Aggregator) CheckPhrase(input string) bool {
	words := make([]string, 0, a.catalog.Len())
	for _, q := range a.catalog.Ordered() {
		words = append(words, q.DigitalCode)
	}
	solution := strings.Join(words, " ")
	return strings.EqualFold(strings.TrimSpace(input), solution)
}
