package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rental-booking/common/mq"
	rediscommon "rental-booking/common/redis"
	"rental-booking/internal/lifecycle"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// HandlerFunc processes one dequeued message. Returning an error does not stop
// consumption; the message is acknowledged and requeued until MaxDeliveryAttempts.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Source a queue a worker can drain
type Source interface {
	Consume(ctx context.Context, handle HandlerFunc) error
}

// StreamQueue Redis Streams backed queue
type StreamQueue struct {
	client    *redis.Client
	stream    string
	group     string
	consumer  string
	batchSize int64
	block     time.Duration
	logger    *zap.Logger
}

func NewStreamQueue(client *redis.Client, stream, group, consumer string, batchSize int, logger *zap.Logger) *StreamQueue {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &StreamQueue{
		client:    client,
		stream:    stream,
		group:     group,
		consumer:  consumer,
		batchSize: int64(batchSize),
		block:     2 * time.Second,
		logger:    logger,
	}
}

func (q *StreamQueue) Enqueue(ctx context.Context, msg *Message) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, q.client, q.stream, msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Consume reads the stream through the consumer group until ctx is done
func (q *StreamQueue) Consume(ctx context.Context, handle HandlerFunc) error {
	if err := rediscommon.CreateConsumerGroup(ctx, q.client, q.stream, q.group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", q.stream, err)
	}

	q.logger.Info("Notification stream consumer started",
		zap.String("stream", q.stream),
		zap.String("consumer_group", q.group),
		zap.String("consumer_name", q.consumer),
	)

	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := q.poll(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error("Failed to consume notification stream",
				zap.String("stream", q.stream),
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

// poll handles one batch and returns how many entries it saw
func (q *StreamQueue) poll(ctx context.Context, handle HandlerFunc) (int, error) {
	messages, err := rediscommon.ReadFromStream(ctx, q.client, q.stream, q.group, q.consumer, q.batchSize, q.block)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream %s: %w", q.stream, err)
	}

	for _, entry := range messages {
		q.process(ctx, entry, handle)
		if err := rediscommon.Ack(ctx, q.client, q.stream, q.group, entry.ID); err != nil {
			q.logger.Error("Failed to ack notification", zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}
	return len(messages), nil
}

func (q *StreamQueue) process(ctx context.Context, entry rediscommon.StreamMessage, handle HandlerFunc) {
	raw, ok := entry.Values["data"].(string)
	if !ok {
		q.logger.Warn("Dropping notification entry without data", zap.String("entry_id", entry.ID))
		return
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		q.logger.Warn("Dropping undecodable notification", zap.String("entry_id", entry.ID), zap.Error(err))
		return
	}
	if err := handle(ctx, &msg); err != nil {
		q.logger.Error("Notification handler failed",
			zap.String("entry_id", entry.ID),
			zap.String("message_id", msg.ID),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
		requeue(ctx, q, &msg, q.logger)
	}
}

// MaxDeliveryAttempts how many times a message is handed to a worker before it is dropped
const MaxDeliveryAttempts = 3

// requeue appends a copy of a failed message with Attempt incremented. The
// original entry is acknowledged by the caller either way.
func requeue(ctx context.Context, q Queue, msg *Message, logger *zap.Logger) {
	if msg.Attempt+1 >= MaxDeliveryAttempts {
		logger.Error("Giving up on notification",
			zap.String("message_id", msg.ID),
			zap.String("request_id", msg.RequestID),
			zap.Int("attempts", msg.Attempt+1),
			zap.String("error_code", lifecycle.CodeNotificationFailure),
		)
		return
	}
	retry := *msg
	retry.Attempt++
	if err := q.Enqueue(ctx, &retry); err != nil {
		logger.Error("Failed to requeue notification",
			zap.String("message_id", msg.ID),
			zap.String("error_code", lifecycle.CodeNotificationFailure),
			zap.Error(err),
		)
	}
}

// AMQPQueue RabbitMQ backed queue; messages are routed as notification.<template>
type AMQPQueue struct {
	publisher *mq.Publisher
	consumer  *mq.Consumer
	logger    *zap.Logger
}

// RoutingKeys the bindings a notification consumer needs
var RoutingKeys = []string{"notification.#"}

// NewAMQPQueue either side may be nil when the process only publishes or only consumes
func NewAMQPQueue(publisher *mq.Publisher, consumer *mq.Consumer, logger *zap.Logger) *AMQPQueue {
	return &AMQPQueue{publisher: publisher, consumer: consumer, logger: logger}
}

func (q *AMQPQueue) Enqueue(ctx context.Context, msg *Message) error {
	if q.publisher == nil {
		return fmt.Errorf("amqp queue has no publisher")
	}
	key := "notification." + string(msg.TemplateID)
	if err := q.publisher.PublishJSON(ctx, key, msg); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (q *AMQPQueue) Consume(ctx context.Context, handle HandlerFunc) error {
	if q.consumer == nil {
		return fmt.Errorf("amqp queue has no consumer")
	}
	deliveries, err := q.consumer.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	q.logger.Info("Notification AMQP consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("amqp delivery channel closed")
			}
			var msg Message
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				q.logger.Warn("Dropping undecodable notification", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			if err := handle(ctx, &msg); err != nil {
				q.logger.Error("Notification handler failed",
					zap.String("message_id", msg.ID),
					zap.Int("attempt", msg.Attempt),
					zap.Error(err),
				)
				requeue(ctx, q, &msg, q.logger)
			}
			_ = d.Ack(false)
		}
	}
}
