package tests

import (
	"context"
	"sync"

	"github.com/getlago/lago/billing-processor/config/kafka"
)

type MockMessageProducer struct {
	Key            []byte
	Value          []byte
	ExecutionCount int
	Messages       []*kafka.ProducerMessage
	Fail           bool

	mu sync.Mutex
}

func (mp *MockMessageProducer) Produce(ctx context.Context, msg *kafka.ProducerMessage) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.Key = msg.Key
	mp.Value = msg.Value
	mp.ExecutionCount++
	mp.Messages = append(mp.Messages, msg)

	return !mp.Fail
}

func (mp *MockMessageProducer) GetTopic() string {
	return "mocked_topic"
}

func (mp *MockMessageProducer) Count() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.ExecutionCount
}
