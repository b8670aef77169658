package model

import "testing"

func TestTierOrdering(t *testing.T) {
	for i := 1; i < len(AllTiers); i++ {
		lower, higher := AllTiers[i-1], AllTiers[i]
		if lower.Rank() >= higher.Rank() {
			t.Errorf("%s should rank below %s", lower, higher)
		}
		if !higher.AtLeast(lower) {
			t.Errorf("%s should satisfy %s", higher, lower)
		}
		if lower.AtLeast(higher) {
			t.Errorf("%s should not satisfy %s", lower, higher)
		}
	}
	if !TierFree.AtLeast(TierFree) {
		t.Error("a tier should satisfy itself")
	}
}

func TestInvalidTierFailsClosed(t *testing.T) {
	bogus := SubscriptionTier("platinum")

	if bogus.Valid() {
		t.Error("unknown tier must be invalid")
	}
	if bogus.Rank() != -1 {
		t.Errorf("invalid tier should rank -1, got %d", bogus.Rank())
	}
	if bogus.AtLeast(TierFree) {
		t.Error("invalid tier must not satisfy any requirement")
	}
	if TierEnterprise.AtLeast(bogus) {
		t.Error("an invalid requirement must never be satisfied")
	}

	var zero SubscriptionTier
	if zero.AtLeast(TierFree) {
		t.Error("zero-value tier must not satisfy any requirement")
	}
}

func TestParseTier(t *testing.T) {
	if got := ParseTier("enterprise"); got != TierEnterprise || !got.Valid() {
		t.Errorf("ParseTier(enterprise) = %q", got)
	}
	if got := ParseTier("Platinum"); got.Valid() {
		t.Errorf("ParseTier should not validate %q", got)
	}
}
