package events_processor

import (
	"context"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/models"
	"github.com/getlago/lago/billing-processor/utils"
)

type CacheService struct {
	chargeCacheStore *models.ChargeCache
}

func NewCacheService(chargeCacheStore *models.ChargeCache) *CacheService {
	return &CacheService{
		chargeCacheStore: chargeCacheStore,
	}
}

// ExpireCache drops the memoized charge usage of every live subscription
// concerned by the event. It returns the number of expired entries.
func (s *CacheService) ExpireCache(ctx context.Context, store *models.ApiStore, subscriptions []*models.Subscription, bm *models.BillableMetric) utils.Result[int] {
	if bm == nil {
		return utils.SuccessResult(0)
	}

	live := make([]*models.Subscription, 0, len(subscriptions))
	planIDs := make([]string, 0, len(subscriptions))
	for _, sub := range subscriptions {
		if sub.IsTerminated() {
			continue
		}
		live = append(live, sub)
		planIDs = append(planIDs, sub.PlanID)
	}

	if len(live) == 0 {
		return utils.SuccessResult(0)
	}

	span := tracing.StartSpan(ctx, "CacheService.ExpireCache")
	defer span.End()

	chargesResult := store.FetchChargesForPlans(bm.ID, planIDs)
	if chargesResult.Failure() {
		return utils.FailedResultFrom[int](chargesResult, "fetch_charges", "Error fetching charges of the billable metric")
	}

	expired := 0
	for _, charge := range chargesResult.Value() {
		for _, sub := range live {
			if charge.PlanID != sub.PlanID {
				continue
			}

			cacheResult := s.chargeCacheStore.Expire(charge, sub)
			if cacheResult.Failure() {
				span.SetError(cacheResult.Error())
				return utils.FailedResultFrom[int](cacheResult, "expire_charge_cache", "Error expiring charge cache")
			}
			expired++
		}
	}

	span.SetAttribute("cache.expired", expired)
	return utils.SuccessResult(expired)
}
