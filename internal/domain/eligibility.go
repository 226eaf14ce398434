package domain

import "time"

// EligibilityPolicy holds the tunable booking rules
type EligibilityPolicy struct {
	// OverrideWindow is how close to start a slot opens to every tier
	OverrideWindow time.Duration
	// LimitAppliesWithinOverride keeps the active booking limit in force
	// inside the override window
	LimitAppliesWithinOverride bool
	StandardLimit              int
	ElevatedLimit              int
}

// DefaultEligibilityPolicy returns the production rules
func DefaultEligibilityPolicy() EligibilityPolicy {
	return EligibilityPolicy{
		OverrideWindow:             24 * time.Hour,
		LimitAppliesWithinOverride: true,
		StandardLimit:              3,
		ElevatedLimit:              10,
	}
}

// LimitFor returns the active future booking limit for a diner tier
func (p EligibilityPolicy) LimitFor(tier Tier) int {
	if tier == TierElevated {
		return p.ElevatedLimit
	}
	return p.StandardLimit
}

// DinerStanding is the read-only profile data eligibility needs
type DinerStanding struct {
	DinerID              string
	Tier                 Tier
	ActiveFutureBookings int
}

// EligibilityInput is everything one decision depends on
type EligibilityInput struct {
	SlotStatus SlotStatus
	SlotTier   Tier
	SlotStart  time.Time
	Diner      DinerStanding
	Now        time.Time
}

// Verdict is the outcome of an eligibility check
type Verdict struct {
	Eligible bool        `json:"eligible"`
	Reason   RefusalCode `json:"reason,omitempty"`
	// TierBased is true when the refusal should prompt a membership upsell
	TierBased  bool `json:"tier_based"`
	LastMinute bool `json:"last_minute"`
}

// Err returns the sentinel refusal for an ineligible verdict, nil otherwise
func (v Verdict) Err() error {
	if v.Eligible {
		return nil
	}
	return RefusalFor(v.Reason)
}

// WithinOverrideWindow reports whether start is close enough to open the slot
// to every tier
func (p EligibilityPolicy) WithinOverrideWindow(start, now time.Time) bool {
	return start.Sub(now) <= p.OverrideWindow
}

// TierGate applies only the tier rule. Alert registration uses it so a diner
// is never queued for a hold they could not claim.
func (p EligibilityPolicy) TierGate(slotTier Tier, slotStart time.Time, dinerTier Tier, now time.Time) error {
	if p.WithinOverrideWindow(slotStart, now) {
		return nil
	}
	if slotTier == TierElevated && dinerTier != TierElevated {
		return ErrTierRequired
	}
	return nil
}

// Evaluate decides whether a diner may book a slot right now. It has no side
// effects and may be called speculatively.
func (p EligibilityPolicy) Evaluate(in EligibilityInput) Verdict {
	if in.SlotStatus != SlotStatusAvailable {
		return Verdict{Reason: RefusalSlotUnavailable}
	}

	lastMinute := p.WithinOverrideWindow(in.SlotStart, in.Now)

	if !lastMinute && in.SlotTier == TierElevated && in.Diner.Tier != TierElevated {
		return Verdict{Reason: RefusalTierRequired, TierBased: true}
	}

	if !lastMinute || p.LimitAppliesWithinOverride {
		if in.Diner.ActiveFutureBookings >= p.LimitFor(in.Diner.Tier) {
			return Verdict{Reason: RefusalBookingLimitReached, LastMinute: lastMinute}
		}
	}

	return Verdict{Eligible: true, LastMinute: lastMinute}
}
