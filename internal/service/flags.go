package service

import (
	"context"
	"errors"
	"fmt"

	"tiergate/internal/dto/resp"
	"tiergate/internal/model"
	"tiergate/internal/repository"
	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/constraints"
	"tiergate/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrMysqlUnhealthy = errors.New("mysql unhealthy")
var ErrEtcdUnhealthy = errors.New("etcd unhealthy")
var ErrInvalidTier = errors.New("invalid subscription tier")

const GateRootPrefix = "/tiergate/"
const FlagKeyPrefix = GateRootPrefix + "flags/"
const OverrideKeyPrefix = GateRootPrefix + "overrides/"

func BuildFlagKey(name string) string {
	return FlagKeyPrefix + name
}

// BuildOverrideKey keys overrides company-first so a client watch can be
// narrowed to one company's prefix.
func BuildOverrideKey(companyID, flagName string) string {
	return fmt.Sprintf("%s%s/%s", OverrideKeyPrefix, companyID, flagName)
}

// FlagService owns the lifecycle of global flag definitions: audited,
// versioned mutations published to the stream plane through the outbox.
type FlagService struct {
	db          *gorm.DB
	flagRepo    repository.FlagInterface
	companyRepo repository.CompanyInterface
	auditRepo   repository.AuditInterface
	outboxRepo  repository.OutboxInterface
	syncRepo    *repository.SyncRepository
}

func NewFlagService(db *gorm.DB, flagRepo repository.FlagInterface, companyRepo repository.CompanyInterface, auditRepo repository.AuditInterface, outboxRepo repository.OutboxInterface, syncRepo *repository.SyncRepository) *FlagService {
	return &FlagService{
		db:          db,
		flagRepo:    flagRepo,
		companyRepo: companyRepo,
		auditRepo:   auditRepo,
		outboxRepo:  outboxRepo,
		syncRepo:    syncRepo,
	}
}

// SaveFlag creates or updates a definition, bumping its version and writing
// the audit row and outbox event in the same transaction.
func (s *FlagService) SaveFlag(ctx context.Context, def v1.FlagDefinition, operator string) (int, error) {
	tier := model.ParseTier(def.RequiredTier)
	if !tier.Valid() {
		return 0, ErrInvalidTier
	}

	traceID, _ := ctx.Value("TraceID").(string)

	var latestVersion int
	var task *model.OutboxTask
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txFlag := s.flagRepo.WithTx(tx).(repository.FlagInterface)
		txAudit := s.auditRepo.WithTx(tx).(repository.AuditInterface)
		txOutbox := s.outboxRepo.WithTx(tx)

		flag, err := txFlag.GetByName(ctx, def.Name)
		if err != nil {
			logger.Error("failed to get flag", zap.String("name", def.Name), zap.Error(err))
			return err
		}

		var oldValue string
		if flag == nil {
			flag = &model.FeatureFlag{
				Name:           def.Name,
				Description:    def.Description,
				Category:       def.Category,
				RequiredTier:   tier,
				DefaultEnabled: def.DefaultEnabled,
				Version:        1,
				UpdatedBy:      operator,
			}
		} else {
			oldValue = fmt.Sprintf("tier=%s default=%t", flag.RequiredTier, flag.DefaultEnabled)
			flag.Description = def.Description
			flag.Category = def.Category
			flag.RequiredTier = tier
			flag.DefaultEnabled = def.DefaultEnabled
			flag.Version++
			flag.UpdatedBy = operator
		}
		if err := txFlag.Save(ctx, flag); err != nil {
			return err
		}
		latestVersion = flag.Version

		audit := &model.FlagAudit{
			FlagName: def.Name,
			OldValue: oldValue,
			NewValue: fmt.Sprintf("tier=%s default=%t", tier, def.DefaultEnabled),
			Operator: operator,
			TraceID:  traceID,
		}
		if err := txAudit.Create(ctx, audit); err != nil {
			logger.Error("failed to create flag audit", zap.String("name", def.Name), zap.Error(err))
			return err
		}

		def.Version = latestVersion
		def.RequiredTier = string(tier)
		task = &model.OutboxTask{
			Kind:    constraints.KindFlag,
			Key:     BuildFlagKey(def.Name),
			Payload: def.ToJSON(),
			Status:  model.StatusPending,
			TraceID: traceID,
		}
		if err := txOutbox.Create(ctx, task); err != nil {
			logger.Error("failed to create outbox event", zap.String("name", def.Name), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	go s.publishFlag(task, latestVersion)
	return latestVersion, nil
}

func (s *FlagService) publishFlag(task *model.OutboxTask, version int) {
	ctx := context.Background()
	if _, err := s.syncRepo.SaveIfNewer(ctx, task.Key, task.Payload, version); err != nil {
		logger.Warn("failed to publish flag", zap.String("key", task.Key), zap.Error(err))
		return
	}
	_ = s.outboxRepo.UpdateStatus(ctx, uint64(task.ID), model.StatusCompleted, 0)
}

// DeleteFlag removes the definition and every override it owns, then
// schedules removal from the stream plane.
func (s *FlagService) DeleteFlag(ctx context.Context, name, operator string) error {
	traceID, _ := ctx.Value("TraceID").(string)

	var task *model.OutboxTask
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txFlag := s.flagRepo.WithTx(tx).(repository.FlagInterface)
		txAudit := s.auditRepo.WithTx(tx).(repository.AuditInterface)
		txOutbox := s.outboxRepo.WithTx(tx)

		flag, err := txFlag.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if flag == nil {
			return ErrFlagNotFound
		}
		if err := txFlag.Delete(ctx, flag.ID); err != nil {
			return err
		}

		audit := &model.FlagAudit{
			FlagName: name,
			OldValue: fmt.Sprintf("tier=%s default=%t", flag.RequiredTier, flag.DefaultEnabled),
			NewValue: "deleted",
			Operator: operator,
			TraceID:  traceID,
		}
		if err := txAudit.Create(ctx, audit); err != nil {
			return err
		}

		// Empty payload means delete on the worker side. Orphan override keys
		// under other prefixes are swept by the reconciler.
		task = &model.OutboxTask{
			Kind:    constraints.KindFlag,
			Key:     BuildFlagKey(name),
			Payload: "",
			Status:  model.StatusPending,
			TraceID: traceID,
		}
		return txOutbox.Create(ctx, task)
	})
	if err != nil {
		return err
	}

	go func() {
		bg := context.Background()
		if _, err := s.syncRepo.Delete(bg, task.Key); err != nil {
			logger.Warn("failed to unpublish flag", zap.String("key", task.Key), zap.Error(err))
			return
		}
		_ = s.outboxRepo.UpdateStatus(bg, uint64(task.ID), model.StatusCompleted, 0)
	}()
	return nil
}

func (s *FlagService) GetFlag(ctx context.Context, name string) (*resp.FlagItem, error) {
	m, err := s.flagRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrFlagNotFound
	}
	item := flagItem(m)
	return &item, nil
}

func (s *FlagService) ListFlags(ctx context.Context, category, search string) ([]resp.FlagItem, error) {
	flags, err := s.flagRepo.List(ctx, category, search)
	if err != nil {
		return nil, err
	}
	items := make([]resp.FlagItem, 0, len(flags))
	for _, m := range flags {
		items = append(items, flagItem(m))
	}
	return items, nil
}

func (s *FlagService) GetFlagAudits(ctx context.Context, name string) ([]resp.AuditLogItem, error) {
	audits, err := s.auditRepo.ListByFlag(ctx, name)
	if err != nil {
		return nil, err
	}
	items := make([]resp.AuditLogItem, 0, len(audits))
	for _, a := range audits {
		items = append(items, resp.AuditLogItem{
			ID:        a.ID,
			FlagName:  a.FlagName,
			CompanyID: a.CompanyID,
			OldValue:  a.OldValue,
			NewValue:  a.NewValue,
			Operator:  a.Operator,
			CreatedAt: a.CreatedAt,
		})
	}
	return items, nil
}

func (s *FlagService) Health(ctx context.Context) error {
	if s.companyRepo.PingContext(ctx) != nil {
		return ErrMysqlUnhealthy
	}
	if s.syncRepo.Health(ctx) != nil {
		return ErrEtcdUnhealthy
	}
	return nil
}

func flagItem(m *model.FeatureFlag) resp.FlagItem {
	return resp.FlagItem{
		ID:             m.ID,
		Name:           m.Name,
		Description:    m.Description,
		Category:       m.Category,
		RequiredTier:   string(m.RequiredTier),
		DefaultEnabled: m.DefaultEnabled,
		Version:        m.Version,
		UpdatedAt:      m.UpdatedAt,
		UpdatedBy:      m.UpdatedBy,
	}
}
