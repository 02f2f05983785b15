package models

import (
	"context"
	"fmt"
	"time"

	"github.com/getlago/lago/billing-processor/config/redis"
	"github.com/getlago/lago/billing-processor/utils"
)

type Cacher interface {
	ExpireKey(key string) utils.Result[bool]
	Close() error
}

type CacheStore struct {
	context context.Context
	db      *redis.RedisDB
}

func NewCacheStore(ctx context.Context, db *redis.RedisDB) *CacheStore {
	return &CacheStore{
		context: ctx,
		db:      db,
	}
}

func (store *CacheStore) ExpireKey(key string) utils.Result[bool] {
	result := store.db.Client.Del(store.context, key)
	if err := result.Err(); err != nil {
		return utils.FailedBoolResult(err)
	}

	return utils.SuccessResult(result.Val() > 0)
}

func (store *CacheStore) Close() error {
	return store.db.Close()
}

type FlagStore struct {
	name    string
	context context.Context
	db      *redis.RedisDB
}

type Flagger interface {
	Flag(value string) error
}

func NewFlagStore(ctx context.Context, redis *redis.RedisDB, name string) *FlagStore {
	return &FlagStore{
		name:    name,
		context: ctx,
		db:      redis,
	}
}

func (store *FlagStore) Flag(value string) error {
	result := store.db.Client.SAdd(store.context, store.name, value)
	if err := result.Err(); err != nil {
		return err
	}

	return nil
}

func (store *FlagStore) Close() error {
	return store.db.Close()
}

const DeprecationMissingSubscriptionID = "event_missing_external_subscription_id"

type DeprecationReporter interface {
	Report(feature string, organizationID string) error
}

// DeprecationStore keeps per organization usage counters of deprecated
// features, read back by the API to warn the organizations.
type DeprecationStore struct {
	context context.Context
	db      *redis.RedisDB
}

func NewDeprecationStore(ctx context.Context, db *redis.RedisDB) *DeprecationStore {
	return &DeprecationStore{
		context: ctx,
		db:      db,
	}
}

func DeprecationKey(feature string, organizationID string, suffix string) string {
	return fmt.Sprintf("deprecation:%s:%s:%s", feature, organizationID, suffix)
}

func (store *DeprecationStore) Report(feature string, organizationID string) error {
	pipe := store.db.Client.TxPipeline()
	pipe.Set(store.context, DeprecationKey(feature, organizationID, "last_seen_at"), time.Now().UTC().Format(time.RFC3339), 0)
	pipe.Incr(store.context, DeprecationKey(feature, organizationID, "count"))

	_, err := pipe.Exec(store.context)
	return err
}
