package sink

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zoobzio/batchq"
)

// Kafka publishes each batch to a topic, one message per item, in a single
// SendMessages call. The batch succeeds only if every message is acked.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

var _ batchq.Consumer[string] = (*Kafka)(nil)

// NewKafka wraps producer. The caller owns the producer and closes it after
// the queue has shut down.
func NewKafka(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{producer: producer, topic: topic, logger: logger}
}

// NewKafkaProducer dials brokers with a producer config suited to batch
// delivery: all in-sync replicas ack, successes are returned.
func NewKafkaProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "sink: connect kafka %v", brokers)
	}
	return producer, nil
}

// ConsumeBatch implements batchq.Consumer.
func (k *Kafka) ConsumeBatch(ctx context.Context, items []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	msgs := make([]*sarama.ProducerMessage, len(items))
	for i, item := range items {
		msgs[i] = &sarama.ProducerMessage{
			Topic: k.topic,
			Value: sarama.StringEncoder(item),
		}
	}

	if err := k.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			k.logger.Warn("kafka partial failure",
				zap.String("topic", k.topic),
				zap.Int("failed", len(perrs)),
				zap.Int("size", len(items)),
			)
		}
		return false, errors.Wrapf(err, "sink: publish %d messages to %s", len(items), k.topic)
	}

	k.logger.Debug("batch published", zap.String("topic", k.topic), zap.Int("size", len(items)))
	return true, nil
}
