package tests

import "sync"

type MockFlagStore struct {
	Key            string
	ExecutionCount int
	ReturnedError  error

	mu sync.Mutex
}

func (mfs *MockFlagStore) Flag(key string) error {
	mfs.mu.Lock()
	defer mfs.mu.Unlock()

	mfs.ExecutionCount++
	mfs.Key = key

	return mfs.ReturnedError
}

type MockDeprecationStore struct {
	Features       []string
	OrganizationID string
	ExecutionCount int
	ReturnedError  error

	mu sync.Mutex
}

func (mds *MockDeprecationStore) Report(feature string, organizationID string) error {
	mds.mu.Lock()
	defer mds.mu.Unlock()

	mds.ExecutionCount++
	mds.Features = append(mds.Features, feature)
	mds.OrganizationID = organizationID

	return mds.ReturnedError
}
