package service

import (
	"context"
	"encoding/json"
	"time"

	"tiergate/internal/model"
	"tiergate/internal/repository"
	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

type ReconcilerConfig struct {
	Interval   time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

// Reconciler is the anti-entropy loop between the database (source of truth)
// and the published etcd keyspace. It republishes missing or stale keys and
// sweeps orphans left behind by deleted flags, under a distributed lock so
// only one instance runs a round at a time.
type Reconciler struct {
	etcdClient   *clientv3.Client
	syncRepo     *repository.SyncRepository
	flagRepo     repository.FlagInterface
	companyRepo  repository.CompanyInterface
	overrideRepo repository.OverrideInterface
	cfg          ReconcilerConfig
}

func NewReconciler(client *clientv3.Client, syncRepo *repository.SyncRepository, flagRepo repository.FlagInterface, companyRepo repository.CompanyInterface, overrideRepo repository.OverrideInterface, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		etcdClient:   client,
		syncRepo:     syncRepo,
		flagRepo:     flagRepo,
		companyRepo:  companyRepo,
		overrideRepo: overrideRepo,
		cfg:          cfg,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	session, err := concurrency.NewSession(r.etcdClient, concurrency.WithTTL(10))
	if err != nil {
		logger.Error("failed to create etcd concurrency session", zap.Error(err))
		return
	}
	defer session.Close()

	mutex := concurrency.NewMutex(session, "/locks/tiergate-reconciler")

	logger.Info("reconciler started", zap.Duration("interval", r.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := mutex.Lock(lockCtx)
			cancel()

			if err != nil {
				if err == context.DeadlineExceeded {
					logger.Debug("reconciliation skipped, another instance holds the lock")
				} else {
					logger.Error("failed to acquire reconciliation lock", zap.Error(err))
				}
				continue
			}

			r.reconcile(ctx)

			if err := mutex.Unlock(context.Background()); err != nil {
				logger.Warn("failed to release reconciliation lock", zap.Error(err))
			}
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) {
	flags, err := r.flagRepo.GetAll(ctx)
	if err != nil {
		logger.Error("recon: failed to fetch flags from db", zap.Error(err))
		return
	}
	flagsByID := make(map[uint64]*model.FeatureFlag, len(flags))
	wantFlags := make(map[string]*model.FeatureFlag, len(flags))
	for _, f := range flags {
		flagsByID[f.ID] = f
		wantFlags[BuildFlagKey(f.Name)] = f
	}

	wantOverrides := make(map[string]*model.CompanyFeatureFlag)
	for _, f := range flags {
		overrides, err := r.overrideRepo.ListByFlag(ctx, f.ID)
		if err != nil {
			logger.Error("recon: failed to fetch overrides from db", zap.Error(err))
			return
		}
		for _, ov := range overrides {
			wantOverrides[BuildOverrideKey(ov.CompanyID, f.Name)] = ov
		}
		if r.cfg.BatchDelay > 0 {
			time.Sleep(r.cfg.BatchDelay)
		}
	}

	resp, err := r.syncRepo.GetWithRevision(ctx, GateRootPrefix)
	if err != nil {
		logger.Error("recon: failed to fetch keyspace from etcd", zap.Error(err))
		return
	}
	published := make(map[string][]byte, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		published[string(kv.Key)] = kv.Value
	}

	fixed := 0

	// DB has, etcd missing or stale.
	for key, f := range wantFlags {
		def := v1.FlagDefinition{
			Name:           f.Name,
			Description:    f.Description,
			Category:       f.Category,
			RequiredTier:   string(f.RequiredTier),
			DefaultEnabled: f.DefaultEnabled,
			Version:        f.Version,
		}
		if raw, ok := published[key]; ok {
			var cur v1.FlagDefinition
			if err := json.Unmarshal(raw, &cur); err == nil && cur.Version >= f.Version {
				continue
			}
		}
		logger.Warn("recon: republishing flag", zap.String("key", key))
		if _, err := r.syncRepo.SaveIfNewer(ctx, key, def.ToJSON(), f.Version); err != nil {
			logger.Error("recon: failed to republish flag", zap.String("key", key), zap.Error(err))
		}
		fixed++
	}

	for key, ov := range wantOverrides {
		flag := flagsByID[ov.FeatureFlagID]
		wire := v1.Override{
			CompanyID: ov.CompanyID,
			FlagName:  flag.Name,
			Enabled:   ov.Enabled,
			EnabledBy: ov.EnabledBy,
		}
		if raw, ok := published[key]; ok {
			var cur v1.Override
			if err := json.Unmarshal(raw, &cur); err == nil && cur.Enabled == ov.Enabled {
				continue
			}
		}
		logger.Warn("recon: republishing override", zap.String("key", key))
		if _, err := r.syncRepo.Save(ctx, key, wire.ToJSON()); err != nil {
			logger.Error("recon: failed to republish override", zap.String("key", key), zap.Error(err))
		}
		fixed++
	}

	// Etcd has, DB doesn't: deleted flags and their dangling overrides.
	for key := range published {
		_, isFlag := wantFlags[key]
		_, isOverride := wantOverrides[key]
		if isFlag || isOverride {
			continue
		}
		logger.Warn("recon: removing orphan key", zap.String("key", key))
		if _, err := r.syncRepo.Delete(ctx, key); err != nil {
			logger.Error("recon: failed to remove orphan", zap.String("key", key), zap.Error(err))
		}
		fixed++
	}

	logger.Info("reconciliation finished",
		zap.Int("db_flags", len(wantFlags)),
		zap.Int("db_overrides", len(wantOverrides)),
		zap.Int("etcd_keys", len(published)),
		zap.Int("fixed", fixed))
}
