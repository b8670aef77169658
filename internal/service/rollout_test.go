package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tiergate/internal/model"
	"tiergate/internal/repository"

	"github.com/glebarez/sqlite"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MockKV partially implements clientv3.KV. Put always fails so the
// fast-path publish falls through to the outbox worker path.
type MockKV struct {
	clientv3.KV
}

func (m *MockKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	return nil, errors.New("etcd unavailable")
}

func (m *MockKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	return nil, errors.New("etcd unavailable")
}

func (m *MockKV) Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	return nil, errors.New("etcd unavailable")
}

func (m *MockKV) Txn(ctx context.Context) clientv3.Txn {
	return nil
}

type MockEtcdInterface struct {
	MockKV
	clientv3.Watcher
}

func (m *MockEtcdInterface) Close() error { return nil }
func (m *MockEtcdInterface) Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan {
	return nil
}

func setupRolloutService(t *testing.T) (*RolloutService, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gate.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.FeatureFlag{}, &model.Company{}, &model.CompanyFeatureFlag{}, &model.FlagAudit{}, &model.OutboxTask{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db.Create(&model.FeatureFlag{ID: 1, Name: "sso", RequiredTier: model.TierEnterprise, Version: 1})
	db.Create(&model.Company{ID: "acme", Name: "Acme", SubscriptionTier: model.TierBasic})
	db.Create(&model.Company{ID: "globo", Name: "Globo", SubscriptionTier: model.TierEnterprise})

	svc := NewRolloutService(
		db,
		repository.NewFlagRepository(db),
		repository.NewCompanyRepository(db),
		repository.NewOverrideRepository(db),
		repository.NewAuditRepository(db),
		repository.NewOutboxRepository(db),
		repository.NewSyncRepository(&MockEtcdInterface{}),
	)
	return svc, db
}

func TestRollout_EnableIsIdempotent(t *testing.T) {
	svc, db := setupRolloutService(t)
	ctx := context.Background()

	if err := svc.EnableForCompany(ctx, "acme", 1, "alice"); err != nil {
		t.Fatalf("first enable: %v", err)
	}
	if err := svc.EnableForCompany(ctx, "acme", 1, "alice"); err != nil {
		t.Fatalf("second enable: %v", err)
	}

	var rows []model.CompanyFeatureFlag
	db.Find(&rows)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one override row after double enable, got %d", len(rows))
	}
	if !rows[0].Enabled || rows[0].EnabledBy != "alice" {
		t.Errorf("unexpected row state: %+v", rows[0])
	}
}

func TestRollout_DisableOverwritesEnable(t *testing.T) {
	svc, db := setupRolloutService(t)
	ctx := context.Background()

	if err := svc.EnableForCompany(ctx, "globo", 1, "alice"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := svc.DisableForCompany(ctx, "globo", 1, "bob"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	var rows []model.CompanyFeatureFlag
	db.Find(&rows)
	if len(rows) != 1 {
		t.Fatalf("disable must overwrite the row, not add one, got %d rows", len(rows))
	}
	if rows[0].Enabled {
		t.Error("row should be disabled")
	}
	if rows[0].EnabledBy != "bob" {
		t.Errorf("last writer should win, got %q", rows[0].EnabledBy)
	}
}

func TestRollout_TierMembershipFrozenAtCallTime(t *testing.T) {
	svc, db := setupRolloutService(t)
	ctx := context.Background()

	if err := svc.EnableForTier(ctx, model.TierBasic, 1, "alice"); err != nil {
		t.Fatalf("enable for tier: %v", err)
	}

	// globo moves into basic after the rollout; it must not gain the override.
	db.Model(&model.Company{}).Where("id = ?", "globo").Update("subscription_tier", model.TierBasic)

	var rows []model.CompanyFeatureFlag
	db.Find(&rows)
	if len(rows) != 1 || rows[0].CompanyID != "acme" {
		t.Fatalf("rollout must target the companies at the tier when called, got %+v", rows)
	}
}

func TestRollout_EmptyTargetsIsNoOp(t *testing.T) {
	svc, db := setupRolloutService(t)
	ctx := context.Background()

	// no company is on the professional tier
	if err := svc.EnableForTiers(ctx, []model.SubscriptionTier{model.TierProfessional}, 1, "alice"); err != nil {
		t.Fatalf("empty rollout must succeed: %v", err)
	}

	var overrides, audits, tasks int64
	db.Model(&model.CompanyFeatureFlag{}).Count(&overrides)
	db.Model(&model.FlagAudit{}).Count(&audits)
	db.Model(&model.OutboxTask{}).Count(&tasks)
	if overrides != 0 || audits != 0 || tasks != 0 {
		t.Errorf("no-op rollout must write nothing, got overrides=%d audits=%d tasks=%d", overrides, audits, tasks)
	}
}

func TestRollout_DisableSurvivesTierUpgrade(t *testing.T) {
	svc, db := setupRolloutService(t)
	ctx := context.Background()

	// acme is basic; sso requires enterprise. Explicitly disable, then
	// upgrade acme to enterprise: the override must still win.
	if err := svc.DisableForCompany(ctx, "acme", 1, "admin1"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	db.Model(&model.Company{}).Where("id = ?", "acme").Update("subscription_tier", model.TierEnterprise)

	resolver := NewResolver(
		repository.NewFlagRepository(db),
		repository.NewCompanyRepository(db),
		repository.NewOverrideRepository(db),
	)
	if resolver.IsFeatureEnabled(ctx, "acme", "sso") {
		t.Error("explicit disable must survive a later tier upgrade")
	}
}

func TestRollout_AllCompaniesWithNoTenants(t *testing.T) {
	svc, db := setupRolloutService(t)
	ctx := context.Background()

	db.Where("1 = 1").Delete(&model.Company{})

	if err := svc.EnableForAllCompanies(ctx, 1, "alice"); err != nil {
		t.Fatalf("global rollout over zero tenants must be a no-op: %v", err)
	}
	var overrides int64
	db.Model(&model.CompanyFeatureFlag{}).Count(&overrides)
	if overrides != 0 {
		t.Errorf("expected no override rows, got %d", overrides)
	}
}

func TestRollout_UnknownFlag(t *testing.T) {
	svc, _ := setupRolloutService(t)

	err := svc.EnableForCompany(context.Background(), "acme", 999, "alice")
	if !errors.Is(err, ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", err)
	}
}

func TestRollout_AuditAndOutboxPerCompany(t *testing.T) {
	svc, db := setupRolloutService(t)
	ctx := context.Background()

	if err := svc.EnableForAllCompanies(ctx, 1, "alice"); err != nil {
		t.Fatalf("enable for all: %v", err)
	}

	var audits []model.FlagAudit
	db.Find(&audits)
	if len(audits) != 1 {
		t.Fatalf("one rollout should yield one audit record, got %d", len(audits))
	}
	if audits[0].Operator != "alice" || audits[0].FlagName != "sso" {
		t.Errorf("unexpected audit: %+v", audits[0])
	}

	var tasks []model.OutboxTask
	db.Find(&tasks)
	if len(tasks) != 2 {
		t.Fatalf("expected one outbox task per company, got %d", len(tasks))
	}
	want := map[string]bool{
		BuildOverrideKey("acme", "sso"):  false,
		BuildOverrideKey("globo", "sso"): false,
	}
	for _, task := range tasks {
		if _, ok := want[task.Key]; !ok {
			t.Errorf("unexpected outbox key %q", task.Key)
		}
		want[task.Key] = true
	}
	for key, seen := range want {
		if !seen {
			t.Errorf("missing outbox task for %q", key)
		}
	}
}
