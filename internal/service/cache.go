package service

import (
	"sync"

	"tiergate/internal/model"
	v1 "tiergate/pkg/api/v1"
)

// GateCache mirrors the published state of the stream plane in memory:
// flag definitions plus per-company override maps, tagged with the highest
// etcd revision observed. Snapshot requests are served from here so a fleet
// of reconnecting SDK clients never stampedes the database.
type GateCache struct {
	mu        sync.RWMutex
	flags     map[string]v1.FlagDefinition
	overrides map[string]map[string]bool // companyID -> flagName -> enabled
	revision  int64
}

func NewGateCache() *GateCache {
	return &GateCache{
		flags:     make(map[string]v1.FlagDefinition),
		overrides: make(map[string]map[string]bool),
	}
}

func (c *GateCache) UpdateFlag(f v1.FlagDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[f.Name] = f
	c.bump(f.Revision)
}

func (c *GateCache) DeleteFlag(name string, rev int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flags, name)
	c.bump(rev)
}

func (c *GateCache) UpdateOverride(o v1.Override) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.overrides[o.CompanyID]
	if !ok {
		m = make(map[string]bool)
		c.overrides[o.CompanyID] = m
	}
	m[o.FlagName] = o.Enabled
	c.bump(o.Revision)
}

func (c *GateCache) DeleteOverride(companyID, flagName string, rev int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.overrides[companyID]; ok {
		delete(m, flagName)
		if len(m) == 0 {
			delete(c.overrides, companyID)
		}
	}
	c.bump(rev)
}

func (c *GateCache) bump(rev int64) {
	if rev > c.revision {
		c.revision = rev
	}
}

// SnapshotFor resolves every known flag for one company from cached state:
// override if present, tier comparison otherwise. The tier is supplied by
// the caller, which still owns the company lookup.
func (c *GateCache) SnapshotFor(companyID string, tier model.SubscriptionTier) (map[string]bool, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	decisions := make(map[string]bool, len(c.flags))
	companyOverrides := c.overrides[companyID]
	for name, def := range c.flags {
		if enabled, ok := companyOverrides[name]; ok {
			decisions[name] = enabled
			continue
		}
		decisions[name] = tier.AtLeast(model.ParseTier(def.RequiredTier))
	}
	return decisions, c.revision
}

// Definitions returns all cached flag definitions with the cache revision.
func (c *GateCache) Definitions() ([]v1.FlagDefinition, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]v1.FlagDefinition, 0, len(c.flags))
	for _, f := range c.flags {
		res = append(res, f)
	}
	return res, c.revision
}
