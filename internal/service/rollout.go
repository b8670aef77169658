package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tiergate/internal/model"
	"tiergate/internal/repository"
	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/constraints"
	"tiergate/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrFlagNotFound = errors.New("feature flag not found")

// RolloutService bulk-applies override rows across a selection of companies.
// Every operation upserts (idempotent, last-write-wins), records the actor
// for the audit trail, and aborts the whole rollout on any store failure.
// Authorization is the caller's problem; actor is bookkeeping, not a check.
type RolloutService struct {
	db           *gorm.DB
	flagRepo     repository.FlagInterface
	companyRepo  repository.CompanyInterface
	overrideRepo repository.OverrideInterface
	auditRepo    repository.AuditInterface
	outboxRepo   repository.OutboxInterface
	syncRepo     *repository.SyncRepository
}

func NewRolloutService(db *gorm.DB, flagRepo repository.FlagInterface, companyRepo repository.CompanyInterface, overrideRepo repository.OverrideInterface, auditRepo repository.AuditInterface, outboxRepo repository.OutboxInterface, syncRepo *repository.SyncRepository) *RolloutService {
	return &RolloutService{
		db:           db,
		flagRepo:     flagRepo,
		companyRepo:  companyRepo,
		overrideRepo: overrideRepo,
		auditRepo:    auditRepo,
		outboxRepo:   outboxRepo,
		syncRepo:     syncRepo,
	}
}

func (s *RolloutService) EnableForCompany(ctx context.Context, companyID string, flagID uint64, actor string) error {
	return s.apply(ctx, []string{companyID}, flagID, true, actor, "company:"+companyID)
}

func (s *RolloutService) DisableForCompany(ctx context.Context, companyID string, flagID uint64, actor string) error {
	return s.apply(ctx, []string{companyID}, flagID, false, actor, "company:"+companyID)
}

// EnableForTier targets the companies at exactly that tier at call time.
// Companies upgrading into the tier later are not retroactively granted an
// override; they fall back to the tier comparison.
func (s *RolloutService) EnableForTier(ctx context.Context, tier model.SubscriptionTier, flagID uint64, actor string) error {
	return s.EnableForTiers(ctx, []model.SubscriptionTier{tier}, flagID, actor)
}

func (s *RolloutService) EnableForTiers(ctx context.Context, tiers []model.SubscriptionTier, flagID uint64, actor string) error {
	companies, err := s.companyRepo.ListByTiers(ctx, tiers)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(companies))
	for _, c := range companies {
		ids = append(ids, c.ID)
	}
	return s.apply(ctx, ids, flagID, true, actor, fmt.Sprintf("tiers:%v", tiers))
}

func (s *RolloutService) EnableForCompanies(ctx context.Context, companyIDs []string, flagID uint64, actor string) error {
	return s.apply(ctx, companyIDs, flagID, true, actor, fmt.Sprintf("companies:%d", len(companyIDs)))
}

func (s *RolloutService) EnableForAllCompanies(ctx context.Context, flagID uint64, actor string) error {
	companies, err := s.companyRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(companies))
	for _, c := range companies {
		ids = append(ids, c.ID)
	}
	return s.apply(ctx, ids, flagID, true, actor, "all")
}

// apply writes the override rows, the audit record and the outbox events in
// one transaction. An empty target list is a successful no-op.
func (s *RolloutService) apply(ctx context.Context, companyIDs []string, flagID uint64, enabled bool, actor, scope string) error {
	flag, err := s.flagRepo.GetByID(ctx, flagID)
	if err != nil {
		return err
	}
	if flag == nil {
		return ErrFlagNotFound
	}

	if len(companyIDs) == 0 {
		logger.Info("rollout matched no companies, nothing to do",
			zap.String("flag", flag.Name), zap.String("scope", scope))
		return nil
	}

	traceID, _ := ctx.Value("TraceID").(string)
	now := time.Now()

	var tasks []*model.OutboxTask
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txOverride := s.overrideRepo.WithTx(tx).(repository.OverrideInterface)
		txAudit := s.auditRepo.WithTx(tx).(repository.AuditInterface)
		txOutbox := s.outboxRepo.WithTx(tx)

		overrides := make([]*model.CompanyFeatureFlag, 0, len(companyIDs))
		for _, cid := range companyIDs {
			overrides = append(overrides, &model.CompanyFeatureFlag{
				CompanyID:     cid,
				FeatureFlagID: flagID,
				Enabled:       enabled,
				EnabledBy:     actor,
				EnabledAt:     now,
			})
		}
		if err := txOverride.BulkUpsert(ctx, overrides); err != nil {
			logger.Error("rollout upsert failed", zap.String("flag", flag.Name), zap.Error(err))
			return err
		}

		audit := &model.FlagAudit{
			FlagName: flag.Name,
			OldValue: "",
			NewValue: fmt.Sprintf("enabled=%t scope=%s targets=%d", enabled, scope, len(companyIDs)),
			Operator: actor,
			TraceID:  traceID,
		}
		if len(companyIDs) == 1 {
			audit.CompanyID = companyIDs[0]
		}
		if err := txAudit.Create(ctx, audit); err != nil {
			logger.Error("rollout audit failed", zap.String("flag", flag.Name), zap.Error(err))
			return err
		}

		for _, cid := range companyIDs {
			ov := v1.Override{
				CompanyID: cid,
				FlagName:  flag.Name,
				Enabled:   enabled,
				EnabledBy: actor,
			}
			task := &model.OutboxTask{
				Kind:    constraints.KindOverride,
				Key:     BuildOverrideKey(cid, flag.Name),
				Payload: ov.ToJSON(),
				Status:  model.StatusPending,
				TraceID: traceID,
			}
			if err := txOutbox.Create(ctx, task); err != nil {
				logger.Error("rollout outbox write failed", zap.String("flag", flag.Name), zap.Error(err))
				return err
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Fast-path publish; the outbox worker is the backstop if this fails.
	go s.publish(tasks)
	return nil
}

func (s *RolloutService) publish(tasks []*model.OutboxTask) {
	ctx := context.Background()
	for _, task := range tasks {
		if _, err := s.syncRepo.Save(ctx, task.Key, task.Payload); err != nil {
			logger.Warn("failed to publish override", zap.String("key", task.Key), zap.Error(err))
			continue
		}
		_ = s.outboxRepo.UpdateStatus(ctx, uint64(task.ID), model.StatusCompleted, 0)
	}
}
