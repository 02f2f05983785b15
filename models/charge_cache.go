package models

import (
	"strings"
	"time"

	"github.com/getlago/lago/billing-processor/utils"
)

const CACHE_KEY_VERSION = "1"

type ChargeCache struct {
	CacheStore Cacher
}

func NewChargeCache(cacheStore Cacher) *ChargeCache {
	return &ChargeCache{
		CacheStore: cacheStore,
	}
}

func ChargeCacheKey(charge *Charge, subscriptionID string) string {
	keyParts := []string{
		"charge-usage",
		CACHE_KEY_VERSION,
		charge.ID,
		subscriptionID,
		charge.UpdatedAt.UTC().Format(time.RFC3339),
	}

	return strings.Join(keyParts, "/")
}

// Expire removes the memoized usage of the charge for the subscription.
func (cache *ChargeCache) Expire(charge *Charge, subscription *Subscription) utils.Result[bool] {
	return cache.CacheStore.ExpireKey(ChargeCacheKey(charge, subscription.ID))
}
