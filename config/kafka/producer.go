package kafka

import (
	"context"
	"log/slog"
	"sort"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/getlago/lago/billing-processor/config/tracing"
	"github.com/getlago/lago/billing-processor/utils"
)

type ProducerConfig struct {
	Topic string
}

type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type ProducerMessage struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// MessageProducer pushes messages to a single topic.
type MessageProducer interface {
	Produce(context.Context, *ProducerMessage) bool
	GetTopic() string
}

func NewProducer(serverConfig ServerConfig, cfg *ProducerConfig) (*Producer, error) {
	kcl, err := NewKafkaClient(serverConfig, []kgo.Opt{kgo.DefaultProduceTopic(cfg.Topic)})
	if err != nil {
		return nil, err
	}

	return &Producer{
		client: kcl,
		topic:  cfg.Topic,
		logger: slog.Default().With("component", "kafka-producer", "kafka-topic", cfg.Topic),
	}, nil
}

func (msg *ProducerMessage) record(topic string) *kgo.Record {
	record := &kgo.Record{
		Topic: topic,
		Key:   msg.Key,
		Value: msg.Value,
	}

	keys := make([]string, 0, len(msg.Headers))
	for key := range msg.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: key, Value: []byte(msg.Headers[key])})
	}

	return record
}

// Produce waits for the broker acknowledgement.
func (p *Producer) Produce(ctx context.Context, msg *ProducerMessage) bool {
	span := tracing.StartSpan(ctx, "Producer.Produce", tracing.WithTag("kafka.topic", p.topic))
	defer span.End()

	pr := p.client.ProduceSync(span.GetContext(), msg.record(p.topic))
	if err := pr.FirstErr(); err != nil {
		p.logger.Error("record had a produce error while synchronously producing", slog.String("error", err.Error()))
		span.SetError(err)
		utils.CaptureError(err)
		return false
	}

	return true
}

func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) GetTopic() string {
	return p.topic
}

func (p *Producer) Close() {
	p.client.Close()
}
