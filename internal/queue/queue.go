package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ICGNU3/rhiz-intent-mvp-sub002/internal/util"
	"github.com/ICGNU3/rhiz-intent-mvp-sub002/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	EncounterRecordedQueue  = "encounter_recorded_queue"
	SuggestionAcceptedQueue = "suggestion_accepted_queue"
	GoalCreatedQueue        = "goal_created_queue"
	EdgesRetractedQueue     = "edges_retracted_queue"
	EdgeStrengthQueue       = "edge_strength_queue"
	SignalsQueue            = "signals_queue"
)

// Queues lists every queue the worker consumes.
var Queues = []string{
	EncounterRecordedQueue,
	SuggestionAcceptedQueue,
	GoalCreatedQueue,
	EdgesRetractedQueue,
	EdgeStrengthQueue,
	SignalsQueue,
}

const retryDelayMs = int32(10000)

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnvString("RABBITMQ_HOST", "localhost")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "host", host, "port", port, "err", err)
	}

	return conn
}

// SetupQueues declares each queue with its _dlq and its _retry queue. The
// retry queue dead-letters back into the main queue after a fixed delay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		if _, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             retryDelayMs,
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// PublishFIFO publishes a persistent JSON message on the default exchange.
func PublishFIFO(ctx context.Context, ch amqpPublisher, queueName string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return util.RetryErrWithContext(ctx, 3, 200*time.Millisecond, func(ctx context.Context) error {
		return ch.PublishWithContext(ctx, "", queueName, false, false, publishing)
	})
}

// ChannelPublisher publishes follow-up messages on an AMQP channel.
type ChannelPublisher struct {
	Channel amqpPublisher
}

func (p ChannelPublisher) Publish(ctx context.Context, queueName string, body []byte) error {
	return PublishFIFO(ctx, p.Channel, queueName, body)
}
