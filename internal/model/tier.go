package model

import "tiergate/pkg/constraints"

// SubscriptionTier is an ordinal subscription level. The zero value is
// invalid and ranks below every real tier, so a missing or mistyped tier
// never grants access.
type SubscriptionTier string

const (
	TierFree         SubscriptionTier = constraints.TierFree
	TierBasic        SubscriptionTier = constraints.TierBasic
	TierProfessional SubscriptionTier = constraints.TierProfessional
	TierEnterprise   SubscriptionTier = constraints.TierEnterprise
)

var tierRanks = map[SubscriptionTier]int{
	TierFree:         0,
	TierBasic:        1,
	TierProfessional: 2,
	TierEnterprise:   3,
}

// AllTiers in ascending rank order.
var AllTiers = []SubscriptionTier{TierFree, TierBasic, TierProfessional, TierEnterprise}

// ParseTier maps a stored tier string to a SubscriptionTier. Unknown values
// come back as-is and report Valid()==false.
func ParseTier(s string) SubscriptionTier {
	t := SubscriptionTier(s)
	if _, ok := tierRanks[t]; ok {
		return t
	}
	return SubscriptionTier(s)
}

func (t SubscriptionTier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// Rank returns the ordinal position of the tier. Invalid tiers rank at -1,
// below free, so comparisons against them fail closed.
func (t SubscriptionTier) Rank() int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether t grants everything required by other.
func (t SubscriptionTier) AtLeast(other SubscriptionTier) bool {
	if !t.Valid() || !other.Valid() {
		return false
	}
	return t.Rank() >= other.Rank()
}
