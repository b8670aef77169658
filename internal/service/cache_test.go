package service

import (
	"testing"

	"tiergate/internal/model"
	v1 "tiergate/pkg/api/v1"
)

func TestGateCache_SnapshotFor(t *testing.T) {
	cache := NewGateCache()
	cache.UpdateFlag(v1.FlagDefinition{Name: "sso", RequiredTier: "enterprise", Revision: 10})
	cache.UpdateFlag(v1.FlagDefinition{Name: "advanced-reports", RequiredTier: "professional", Revision: 11})
	cache.UpdateOverride(v1.Override{CompanyID: "acme", FlagName: "sso", Enabled: true, Revision: 12})

	decisions, rev := cache.SnapshotFor("acme", model.TierBasic)
	if rev != 12 {
		t.Errorf("revision = %d, want 12", rev)
	}
	if !decisions["sso"] {
		t.Error("override should enable sso for acme despite the basic tier")
	}
	if decisions["advanced-reports"] {
		t.Error("basic tier should not pass a professional requirement")
	}

	// No override for globo: tier comparison only.
	decisions, _ = cache.SnapshotFor("globo", model.TierEnterprise)
	if !decisions["sso"] || !decisions["advanced-reports"] {
		t.Errorf("enterprise tier should pass both requirements, got %v", decisions)
	}
}

func TestGateCache_SnapshotFor_InvalidTier(t *testing.T) {
	cache := NewGateCache()
	cache.UpdateFlag(v1.FlagDefinition{Name: "time-tracking", RequiredTier: "free", Revision: 1})

	decisions, _ := cache.SnapshotFor("unknown-co", model.SubscriptionTier(""))
	if decisions["time-tracking"] {
		t.Error("a company with no valid tier must resolve to all-disabled")
	}
}

func TestGateCache_DeleteRaisesRevision(t *testing.T) {
	cache := NewGateCache()
	cache.UpdateFlag(v1.FlagDefinition{Name: "sso", RequiredTier: "enterprise", Revision: 5})
	cache.UpdateOverride(v1.Override{CompanyID: "acme", FlagName: "sso", Enabled: false, Revision: 6})

	cache.DeleteOverride("acme", "sso", 7)
	decisions, rev := cache.SnapshotFor("acme", model.TierEnterprise)
	if !decisions["sso"] {
		t.Error("removing the override must restore the tier decision")
	}
	if rev != 7 {
		t.Errorf("revision = %d, want 7", rev)
	}

	cache.DeleteFlag("sso", 8)
	decisions, rev = cache.SnapshotFor("acme", model.TierEnterprise)
	if len(decisions) != 0 {
		t.Errorf("deleted flag must leave the snapshot, got %v", decisions)
	}
	if rev != 8 {
		t.Errorf("revision = %d, want 8", rev)
	}
}
