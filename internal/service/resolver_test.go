package service

import (
	"context"
	"errors"
	"testing"

	"tiergate/internal/model"
	"tiergate/pkg/logger"

	"gorm.io/gorm"
)

func init() {
	logger.InitLogger("test")
}

// mockFlagRepo implements repository.FlagInterface over a map
type mockFlagRepo struct {
	flags map[string]*model.FeatureFlag
	err   error
}

func (m *mockFlagRepo) GetByName(ctx context.Context, name string) (*model.FeatureFlag, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.flags[name], nil
}

func (m *mockFlagRepo) GetByID(ctx context.Context, id uint64) (*model.FeatureFlag, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, f := range m.flags {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, nil
}

func (m *mockFlagRepo) GetAll(ctx context.Context) ([]*model.FeatureFlag, error) {
	var out []*model.FeatureFlag
	for _, f := range m.flags {
		out = append(out, f)
	}
	return out, m.err
}

func (m *mockFlagRepo) List(ctx context.Context, category, search string) ([]*model.FeatureFlag, error) {
	return m.GetAll(ctx)
}

func (m *mockFlagRepo) Save(ctx context.Context, flag *model.FeatureFlag) error { return m.err }
func (m *mockFlagRepo) Delete(ctx context.Context, id uint64) error             { return m.err }
func (m *mockFlagRepo) WithTx(tx *gorm.DB) any                                  { return m }

type mockCompanyRepo struct {
	companies map[string]*model.Company
	err       error
}

func (m *mockCompanyRepo) GetByID(ctx context.Context, id string) (*model.Company, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.companies[id], nil
}

func (m *mockCompanyRepo) ListByTiers(ctx context.Context, tiers []model.SubscriptionTier) ([]*model.Company, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*model.Company
	for _, c := range m.companies {
		for _, t := range tiers {
			if c.SubscriptionTier == t {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m *mockCompanyRepo) ListAll(ctx context.Context) ([]*model.Company, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*model.Company
	for _, c := range m.companies {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCompanyRepo) PingContext(ctx context.Context) error { return m.err }
func (m *mockCompanyRepo) WithTx(tx *gorm.DB) any                { return m }

type overrideKey struct {
	companyID string
	flagID    uint64
}

type mockOverrideRepo struct {
	overrides map[overrideKey]*model.CompanyFeatureFlag
	err       error
	// errFor fails lookups for one flag only, for batch isolation tests
	errFor uint64
}

func (m *mockOverrideRepo) Get(ctx context.Context, companyID string, flagID uint64) (*model.CompanyFeatureFlag, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.errFor != 0 && m.errFor == flagID {
		return nil, errors.New("connection reset")
	}
	return m.overrides[overrideKey{companyID, flagID}], nil
}

func (m *mockOverrideRepo) Upsert(ctx context.Context, o *model.CompanyFeatureFlag) error {
	if m.overrides == nil {
		m.overrides = make(map[overrideKey]*model.CompanyFeatureFlag)
	}
	m.overrides[overrideKey{o.CompanyID, o.FeatureFlagID}] = o
	return m.err
}

func (m *mockOverrideRepo) BulkUpsert(ctx context.Context, os []*model.CompanyFeatureFlag) error {
	for _, o := range os {
		if err := m.Upsert(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockOverrideRepo) ListByFlag(ctx context.Context, flagID uint64) ([]*model.CompanyFeatureFlag, error) {
	var out []*model.CompanyFeatureFlag
	for k, o := range m.overrides {
		if k.flagID == flagID {
			out = append(out, o)
		}
	}
	return out, m.err
}

func (m *mockOverrideRepo) ListByCompany(ctx context.Context, companyID string) ([]*model.CompanyFeatureFlag, error) {
	var out []*model.CompanyFeatureFlag
	for k, o := range m.overrides {
		if k.companyID == companyID {
			out = append(out, o)
		}
	}
	return out, m.err
}

func (m *mockOverrideRepo) WithTx(tx *gorm.DB) any { return m }

func fixtureResolver() (*Resolver, *mockOverrideRepo) {
	flags := &mockFlagRepo{flags: map[string]*model.FeatureFlag{
		"advanced-reports": {ID: 1, Name: "advanced-reports", RequiredTier: model.TierProfessional},
		"sso":              {ID: 2, Name: "sso", RequiredTier: model.TierEnterprise},
		"time-tracking":    {ID: 3, Name: "time-tracking", RequiredTier: model.TierFree, DefaultEnabled: false},
	}}
	companies := &mockCompanyRepo{companies: map[string]*model.Company{
		"acme":  {ID: "acme", SubscriptionTier: model.TierBasic},
		"globo": {ID: "globo", SubscriptionTier: model.TierEnterprise},
	}}
	overrides := &mockOverrideRepo{overrides: map[overrideKey]*model.CompanyFeatureFlag{}}
	return NewResolver(flags, companies, overrides), overrides
}

func TestResolver_TierComparison(t *testing.T) {
	r, _ := fixtureResolver()
	ctx := context.Background()

	// basic < professional
	if r.IsFeatureEnabled(ctx, "acme", "advanced-reports") {
		t.Error("basic tenant should not see a professional feature")
	}
	// enterprise >= professional
	if !r.IsFeatureEnabled(ctx, "globo", "advanced-reports") {
		t.Error("enterprise tenant should see a professional feature")
	}
	// equal rank passes
	if !r.IsFeatureEnabled(ctx, "globo", "sso") {
		t.Error("enterprise tenant should see an enterprise feature")
	}
}

func TestResolver_OverridePrecedence(t *testing.T) {
	r, overrides := fixtureResolver()
	ctx := context.Background()

	// Explicit disable beats a qualifying tier.
	overrides.overrides[overrideKey{"globo", 2}] = &model.CompanyFeatureFlag{
		CompanyID: "globo", FeatureFlagID: 2, Enabled: false,
	}
	if r.IsFeatureEnabled(ctx, "globo", "sso") {
		t.Error("disable override must win over tier default")
	}

	// Explicit enable beats an insufficient tier.
	overrides.overrides[overrideKey{"acme", 2}] = &model.CompanyFeatureFlag{
		CompanyID: "acme", FeatureFlagID: 2, Enabled: true,
	}
	if !r.IsFeatureEnabled(ctx, "acme", "sso") {
		t.Error("enable override must win over tier default")
	}
}

func TestResolver_UnknownEntities(t *testing.T) {
	r, _ := fixtureResolver()
	ctx := context.Background()

	if r.IsFeatureEnabled(ctx, "acme", "no-such-flag") {
		t.Error("unknown flag must resolve to disabled")
	}
	if r.IsFeatureEnabled(ctx, "no-such-company", "sso") {
		t.Error("unknown company must resolve to disabled")
	}
}

func TestResolver_DefaultEnabledNotConsulted(t *testing.T) {
	// time-tracking requires tier free, DefaultEnabled=false: resolution is
	// tier-only, so every known company qualifies regardless of the default.
	r, _ := fixtureResolver()
	ctx := context.Background()

	if !r.IsFeatureEnabled(ctx, "acme", "time-tracking") {
		t.Error("resolution must ignore DefaultEnabled and use the tier comparison")
	}
}

func TestResolver_StoreFailureFailsClosed(t *testing.T) {
	flags := &mockFlagRepo{err: errors.New("dial tcp: connection refused")}
	r := NewResolver(flags, &mockCompanyRepo{}, &mockOverrideRepo{})

	if r.IsFeatureEnabled(context.Background(), "acme", "sso") {
		t.Error("store failure must resolve to disabled, not propagate")
	}
}

func TestResolver_EvaluateAll(t *testing.T) {
	r, overrides := fixtureResolver()
	overrides.errFor = 2 // sso lookups fail
	ctx := context.Background()

	results := r.EvaluateAll(ctx, "globo", []string{"advanced-reports", "sso"})

	if d := results["advanced-reports"]; !d.Enabled || d.Err != "" {
		t.Errorf("advanced-reports should resolve cleanly, got %+v", d)
	}
	if d := results["sso"]; d.Enabled || d.Err == "" {
		t.Errorf("sso should be disabled with an error attached, got %+v", d)
	}
}

func TestResolver_EvaluateAll_DuplicateNames(t *testing.T) {
	// Batches with repeated names interleave worker map writes with the
	// dedup scan on the caller goroutine; run under -race this pins the
	// two never touching the results map concurrently.
	r, _ := fixtureResolver()
	ctx := context.Background()

	names := make([]string, 0, 600)
	for i := 0; i < 200; i++ {
		names = append(names, "advanced-reports", "sso", "time-tracking")
	}

	for i := 0; i < 50; i++ {
		results := r.EvaluateAll(ctx, "globo", names)
		if len(results) != 3 {
			t.Fatalf("expected 3 deduplicated decisions, got %d", len(results))
		}
		if d := results["sso"]; !d.Enabled || d.Err != "" {
			t.Fatalf("sso should resolve enabled, got %+v", d)
		}
	}
}

func TestResolver_EvaluateAll_NoCompany(t *testing.T) {
	flags := &mockFlagRepo{err: errors.New("must not be called")}
	r := NewResolver(flags, &mockCompanyRepo{err: errors.New("must not be called")}, &mockOverrideRepo{})

	results := r.EvaluateAll(context.Background(), "", []string{"a", "b"})
	if len(results) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(results))
	}
	for name, d := range results {
		if d.Enabled || d.Err != "" {
			t.Errorf("%s: empty company must short-circuit to disabled without errors, got %+v", name, d)
		}
	}
}
