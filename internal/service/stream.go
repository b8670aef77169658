package service

import (
	"context"
	"encoding/json"
	"strings"

	"tiergate/internal/buffer"
	"tiergate/internal/model"
	"tiergate/internal/repository"
	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/constraints"
	"tiergate/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// StreamService feeds the distribution plane: it tails the etcd keyspace,
// keeps the gate cache and the replay buffer current, and broadcasts change
// messages to connected SDK clients through the hub.
type StreamService struct {
	companyRepo repository.CompanyInterface
	syncRepo    *repository.SyncRepository
	cache       *GateCache
	buffer      *buffer.RevisionBuffer
	hub         *Hub
}

func NewStreamService(companyRepo repository.CompanyInterface, syncRepo *repository.SyncRepository, hub *Hub, bufferSize int) *StreamService {
	return &StreamService{
		companyRepo: companyRepo,
		syncRepo:    syncRepo,
		cache:       NewGateCache(),
		buffer:      buffer.NewRevisionBuffer(bufferSize),
		hub:         hub,
	}
}

// GetCompensation replays messages a reconnecting client missed. ok=false
// means the client's revision was evicted and it must take a full snapshot.
func (s *StreamService) GetCompensation(lastRev int64) ([]v1.Message, bool) {
	return s.buffer.GetSince(lastRev)
}

// SnapshotFor returns every flag resolved for one company from cached state.
// An unknown company gets only its (nonexistent) overrides against an
// invalid tier, which resolves everything to disabled.
func (s *StreamService) SnapshotFor(ctx context.Context, companyID string) (map[string]bool, int64, error) {
	company, err := s.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return nil, 0, err
	}
	var tier model.SubscriptionTier
	if company != nil {
		tier = company.SubscriptionTier
	}
	decisions, rev := s.cache.SnapshotFor(companyID, tier)
	return decisions, rev, nil
}

// Definitions exposes the cached global flag list for the dashboard.
func (s *StreamService) Definitions(ctx context.Context) ([]v1.FlagDefinition, int64) {
	return s.cache.Definitions()
}

// Run loads the initial keyspace snapshot and then follows the watch from
// the revision right after it, so nothing between Get and Watch is lost.
func (s *StreamService) Run(ctx context.Context) {
	resp, err := s.syncRepo.GetWithRevision(ctx, GateRootPrefix)
	if err != nil {
		logger.Error("failed to load initial gate state", zap.Error(err))
		return
	}
	rev0 := resp.Header.Revision
	for _, kv := range resp.Kvs {
		s.applyPut(string(kv.Key), kv.Value, kv.ModRevision, false)
	}
	logger.Info("gate snapshot initialized", zap.Int64("rev", rev0), zap.Int("keys", len(resp.Kvs)))

	watchChan := s.syncRepo.WatchFrom(ctx, GateRootPrefix, rev0+1)
	for {
		select {
		case <-ctx.Done():
			return
		case wresp := <-watchChan:
			if wresp.Canceled {
				logger.Warn("gate watch canceled", zap.Error(wresp.Err()))
				return
			}
			for _, ev := range wresp.Events {
				if ev.Type == clientv3.EventTypeDelete {
					s.applyDelete(string(ev.Kv.Key), ev.Kv.ModRevision)
				} else {
					s.applyPut(string(ev.Kv.Key), ev.Kv.Value, ev.Kv.ModRevision, true)
				}
			}
		}
	}
}

func (s *StreamService) applyPut(key string, value []byte, rev int64, broadcast bool) {
	switch {
	case strings.HasPrefix(key, FlagKeyPrefix):
		var def v1.FlagDefinition
		if err := json.Unmarshal(value, &def); err != nil {
			logger.Warn("failed to unmarshal flag definition", zap.String("key", key))
			return
		}
		def.Revision = rev
		s.cache.UpdateFlag(def)
		s.dispatch(v1.Message{
			Kind:     constraints.KindFlag,
			FlagName: def.Name,
			Version:  def.Version,
			Revision: rev,
			Action:   constraints.PUT,
		}, broadcast)

	case strings.HasPrefix(key, OverrideKeyPrefix):
		var ov v1.Override
		if err := json.Unmarshal(value, &ov); err != nil {
			logger.Warn("failed to unmarshal override", zap.String("key", key))
			return
		}
		ov.Revision = rev
		s.cache.UpdateOverride(ov)
		s.dispatch(v1.Message{
			Kind:      constraints.KindOverride,
			FlagName:  ov.FlagName,
			CompanyID: ov.CompanyID,
			Enabled:   ov.Enabled,
			Revision:  rev,
			Action:    constraints.PUT,
		}, broadcast)
	}
}

func (s *StreamService) applyDelete(key string, rev int64) {
	switch {
	case strings.HasPrefix(key, FlagKeyPrefix):
		name := strings.TrimPrefix(key, FlagKeyPrefix)
		s.cache.DeleteFlag(name, rev)
		s.dispatch(v1.Message{
			Kind:     constraints.KindFlag,
			FlagName: name,
			Revision: rev,
			Action:   constraints.DELETE,
		}, true)

	case strings.HasPrefix(key, OverrideKeyPrefix):
		rest := strings.TrimPrefix(key, OverrideKeyPrefix)
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			logger.Warn("malformed override key", zap.String("key", key))
			return
		}
		s.cache.DeleteOverride(parts[0], parts[1], rev)
		s.dispatch(v1.Message{
			Kind:      constraints.KindOverride,
			FlagName:  parts[1],
			CompanyID: parts[0],
			Revision:  rev,
			Action:    constraints.DELETE,
		}, true)
	}
}

func (s *StreamService) dispatch(msg v1.Message, broadcast bool) {
	if !broadcast {
		return
	}
	s.buffer.Add(msg)
	s.hub.Broadcast <- msg
}
