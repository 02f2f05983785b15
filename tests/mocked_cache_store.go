package tests

import (
	"sync"

	"github.com/getlago/lago/billing-processor/utils"
)

type MockCacheStore struct {
	LastKey        string
	Keys           []string
	ExecutionCount int
	ReturnedResult utils.Result[bool]

	mu sync.Mutex
}

func (mcs *MockCacheStore) Close() error {
	return nil
}

func (mcs *MockCacheStore) ExpireKey(key string) utils.Result[bool] {
	mcs.mu.Lock()
	defer mcs.mu.Unlock()

	mcs.LastKey = key
	mcs.Keys = append(mcs.Keys, key)
	mcs.ExecutionCount++

	return mcs.ReturnedResult
}
