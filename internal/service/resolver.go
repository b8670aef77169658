package service

import (
	"context"
	"sync"

	"tiergate/internal/repository"
	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/logger"

	"go.uber.org/zap"
)

// Resolver answers "is feature F active for company C" with strict
// precedence: explicit override, then subscription-tier comparison. Every
// failure mode resolves to disabled; gating must never break the caller.
type Resolver struct {
	flagRepo     repository.FlagInterface
	companyRepo  repository.CompanyInterface
	overrideRepo repository.OverrideInterface
}

func NewResolver(flagRepo repository.FlagInterface, companyRepo repository.CompanyInterface, overrideRepo repository.OverrideInterface) *Resolver {
	return &Resolver{
		flagRepo:     flagRepo,
		companyRepo:  companyRepo,
		overrideRepo: overrideRepo,
	}
}

// IsFeatureEnabled resolves one gate. Unknown flags, unknown companies and
// store failures all come back false (fail closed); the flag's own
// DefaultEnabled attribute is deliberately not consulted.
func (r *Resolver) IsFeatureEnabled(ctx context.Context, companyID, featureName string) bool {
	enabled, err := r.resolve(ctx, companyID, featureName)
	if err != nil {
		logger.Warn("gate lookup failed, resolving to disabled",
			zap.String("company_id", companyID),
			zap.String("feature", featureName),
			zap.Error(err))
		return false
	}
	return enabled
}

func (r *Resolver) resolve(ctx context.Context, companyID, featureName string) (bool, error) {
	flag, err := r.flagRepo.GetByName(ctx, featureName)
	if err != nil {
		return false, err
	}
	if flag == nil {
		return false, nil
	}

	override, err := r.overrideRepo.Get(ctx, companyID, flag.ID)
	if err != nil {
		return false, err
	}
	if override != nil {
		// Authoritative regardless of tier or required tier.
		return override.Enabled, nil
	}

	company, err := r.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return false, err
	}
	if company == nil {
		return false, nil
	}

	return company.SubscriptionTier.AtLeast(flag.RequiredTier), nil
}

// EvaluateAll resolves a batch of gates concurrently, one goroutine per
// feature. Each feature is isolated: a failing lookup yields a disabled
// decision with its error attached and does not disturb the rest of the
// batch. An empty companyID short-circuits to all-disabled without touching
// the store.
func (r *Resolver) EvaluateAll(ctx context.Context, companyID string, featureNames []string) map[string]v1.Decision {
	results := make(map[string]v1.Decision, len(featureNames))
	if companyID == "" {
		for _, name := range featureNames {
			results[name] = v1.Decision{Enabled: false}
		}
		return results
	}

	// Dedup in a separate set; once workers are spawned only they write to
	// results, under mu.
	seen := make(map[string]struct{}, len(featureNames))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range featureNames {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			enabled, err := r.resolve(ctx, companyID, name)

			decision := v1.Decision{Enabled: enabled}
			if err != nil {
				decision = v1.Decision{Enabled: false, Err: err.Error()}
				logger.Warn("gate lookup failed in batch",
					zap.String("company_id", companyID),
					zap.String("feature", name),
					zap.Error(err))
			}

			mu.Lock()
			results[name] = decision
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return results
}
