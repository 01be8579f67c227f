package progress

import lnhunt "github.com/lnhunt/lnhunt"

// RewardDispatcher exposes the final claim affordance once every question is
// solved. It is a UI affordance, not a security boundary: the actual payout
// happens when the player redeems the external withdrawal reference.
type RewardDispatcher struct {
	aggregator *Aggregator
	store      Store
	claimRef   string
}

// NewRewardDispatcher creates a dispatcher for the externally supplied claim
// reference (e.g. an LNURL-withdraw code).
func NewRewardDispatcher(aggregator *Aggregator, store Store, claimRef string) *RewardDispatcher {
	return &RewardDispatcher{aggregator: aggregator, store: store, claimRef: claimRef}
}

// IsEligible reports whether the hunt is complete.
func (d *RewardDispatcher) IsEligible() (bool, error) {
	return d.aggregator.IsComplete()
}

// ClaimRef returns the opaque withdrawal reference.
func (d *RewardDispatcher) ClaimRef() string { return d.claimRef }

// Claim marks the reward claimed and returns the reference. Idempotent; a
// repeated claim returns the same reference. An ineligible claim is a
// validation error.
func (d *RewardDispatcher) Claim() (string, error) {
	eligible, err := d.IsEligible()
	if err != nil {
		return "", err
	}
	if !eligible {
		return "", lnhunt.NewError(lnhunt.ErrCodeValidation, "hunt is not complete yet", nil)
	}
	if err := d.store.MarkClaimed(); err != nil {
		return "", err
	}
	return d.claimRef, nil
}

// Claimed reports whether the reward was already claimed.
func (d *RewardDispatcher) Claimed() (bool, error) {
	return d.store.Claimed()
}
