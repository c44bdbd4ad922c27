// Package events publishes coordination lifecycle messages to Kafka for
// downstream indexers and dashboards. Publishing is fire-and-forget from the
// coordinator's perspective; failures are surfaced to the caller so they can
// be logged, never retried on the request path beyond the client's own
// retry policy.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/braidnet/braidd/pkg/circuit"
	"github.com/braidnet/braidd/pkg/errors"
	"github.com/braidnet/braidd/pkg/log"
	"github.com/braidnet/braidd/pkg/retry"
)

// Client wraps kafka-go with connection pooling and a circuit breaker shared
// across topics.
type Client struct {
	brokers        []string
	logger         *log.Logger
	writers        map[string]*kafka.Writer
	writersMu      sync.RWMutex
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewClient creates a new Kafka events client
func NewClient(brokers []string, logger *log.Logger) *Client {
	// Configure circuit breaker for Kafka operations
	cbConfig := &circuit.Config{
		MaxFailures:     5,
		SuccessRequired: 3,
		Timeout:         15 * time.Second,
		ResetTimeout:    60 * time.Second,
	}

	return &Client{
		brokers:        brokers,
		logger:         logger.WithComponent("events"),
		writers:        make(map[string]*kafka.Writer),
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NetworkConfig(),
	}
}

// GetProducer gets or creates a Kafka producer for a topic (with connection pooling)
func (c *Client) GetProducer(topic string) *kafka.Writer {
	c.writersMu.RLock()
	if writer, exists := c.writers[topic]; exists {
		c.writersMu.RUnlock()
		return writer
	}
	c.writersMu.RUnlock()

	c.writersMu.Lock()
	defer c.writersMu.Unlock()

	// Double-check after acquiring write lock
	if writer, exists := c.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(c.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Compression:  kafka.Snappy,
	}

	c.writers[topic] = writer
	c.logger.Info("created Kafka producer", "topic", topic)
	return writer
}

// PublishJSON publishes a JSON-encoded message to Kafka
func (c *Client) PublishJSON(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "json_marshal",
			"failed to marshal event payload").
			WithContext("topic", topic).
			WithContext("key", key)
	}
	return c.publish(ctx, topic, key, data)
}

// PublishProto publishes a protobuf message to Kafka
func (c *Client) PublishProto(ctx context.Context, topic, key string, msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "protobuf_marshal",
			"failed to marshal protobuf message").
			WithContext("topic", topic).
			WithContext("key", key)
	}
	return c.publish(ctx, topic, key, data)
}

func (c *Client) publish(ctx context.Context, topic, key string, data []byte) error {
	return c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			writer := c.GetProducer(topic)
			kafkaMsg := kafka.Message{
				Key:   []byte(key),
				Value: data,
				Time:  time.Now(),
			}

			if err := writer.WriteMessages(ctx, kafkaMsg); err != nil {
				return errors.Wrap(err, errors.ErrorTypeKafka, "publish_message",
					"failed to publish message to Kafka").
					WithContext("topic", topic).
					WithContext("key", key).
					WithContext("message_size", len(data))
			}

			c.logger.Debug("published message", "topic", topic, "key", key, "size", len(data))
			return nil
		})
	})
}

// PublishWorkIssued publishes a work-issued event keyed by work hash
func (c *Client) PublishWorkIssued(ctx context.Context, msg *WorkIssuedMessage) error {
	return c.PublishJSON(ctx, TopicWorkIssued, msg.WorkHash, msg)
}

// PublishSolve publishes a solve event keyed by work hash
func (c *Client) PublishSolve(ctx context.Context, msg *SolveMessage) error {
	return c.PublishJSON(ctx, TopicSolves, msg.WorkHash, msg)
}

// PublishStats publishes the statistics tick as a protobuf Struct so
// schema-less consumers can decode it without a shared message definition.
func (c *Client) PublishStats(ctx context.Context, msg *CoordinatorStatsMessage) error {
	st, err := structpb.NewStruct(map[string]any{
		"active_work":   msg.ActiveWork,
		"pruned_work":   msg.PrunedWork,
		"rejected_work": float64(msg.RejectedWork),
		"avg_tx_count":  msg.AverageTxCount,
		"observed_at":   msg.ObservedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "stats_struct",
			"failed to build stats struct")
	}
	return c.PublishProto(ctx, TopicCoordinatorStats, msg.ObservedAt.Format(time.RFC3339Nano), st)
}

// Close closes all producers
func (c *Client) Close() error {
	c.writersMu.Lock()
	defer c.writersMu.Unlock()

	var lastErr error
	for topic, writer := range c.writers {
		if err := writer.Close(); err != nil {
			c.logger.Error("failed to close producer", "topic", topic, "error", err)
			lastErr = err
		}
	}

	c.writers = make(map[string]*kafka.Writer)
	return lastErr
}
