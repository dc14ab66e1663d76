package queue

import (
	"context"
	"errors"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	maxRetries    = 10
	retriesHeader = "x-retries"
)

func retryCount(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// HandleProcessingError routes a failed message. Invalid payloads and
// messages retried maxRetries times go to the DLQ; anything else goes to the
// retry queue with an incremented x-retries header. The original delivery
// is acked once the copy is published, and requeued if publishing fails.
func HandleProcessingError(ctx context.Context, ch amqpPublisher, msg amqp091.Delivery, queueName string, cause error) {
	retries := retryCount(msg.Headers)

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	target := queueName + "_retry"
	if errors.Is(cause, ErrInvalidMessage) || retries >= maxRetries {
		target = queueName + "_dlq"
		headers["x-error"] = cause.Error()
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", retries, "err", cause)
	} else {
		headers[retriesHeader] = int32(retries + 1)
		logger.Info("[Queue] Scheduling retry", "retry_queue", target, "attempt", retries+1)
	}

	err := ch.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to publish failed message", "target", target, "err", err)
		if nackErr := msg.Nack(false, true); nackErr != nil {
			logger.Error("[Queue] Failed to nack message", "err", nackErr)
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		logger.Error("[Queue] Failed to ack message", "err", ackErr)
	}
}
