package observability

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher pushes service events onto the portal event bus.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
	Close() error
}

// NewPublisher connects to RabbitMQ, falling back to a logging no-op when the
// broker is not configured or unreachable so the chat service keeps working
// without it.
func NewPublisher(url, exchange string, log *logrus.Logger) Publisher {
	if url == "" {
		log.Info("amqp disabled, using noop publisher")
		return noopPublisher{log: log}
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		log.WithError(err).Warn("amqp unavailable, using noop publisher")
		return noopPublisher{log: log}
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		log.WithError(err).Warn("amqp channel failed, using noop publisher")
		return noopPublisher{log: log}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		log.WithError(err).Warn("amqp exchange declare failed, using noop publisher")
		return noopPublisher{log: log}
	}

	log.WithField("exchange", exchange).Info("amqp connected")
	return &amqpPublisher{conn: conn, channel: ch, exchange: exchange}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func (p *amqpPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	amqpHeaders := amqp.Table{}
	for key, value := range headers {
		amqpHeaders[key] = value
	}

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqpHeaders,
	})
}

func (p *amqpPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	log *logrus.Logger
}

func (n noopPublisher) PublishJSON(_ context.Context, routingKey string, _ interface{}, _ map[string]string) error {
	n.log.WithField("routing_key", routingKey).Debug("noop publish")
	return nil
}

func (noopPublisher) Close() error { return nil }

var defaultPublisher Publisher

// SetPublisher installs the process-wide publisher used by PublishEvent.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent publishes through the installed publisher, counting failures.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
