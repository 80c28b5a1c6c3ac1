package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/intakedesk/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingAttribute is the message attribute used as the AMQP routing key.
const RoutingAttribute = "type"

// RabbitMQClient publishes each channel to a topic exchange of the same
// name. One consumer queue, named channel plus QueueSuffix, is bound to
// every routing key, so events published before a consumer starts are
// kept.
type RabbitMQClient struct {
	conn *amqp.Connection
	cfg  config.RabbitMQConfig

	// Publishing shares one confirm-mode channel, which is not safe for
	// concurrent use.
	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool
}

// NewRabbitMQClient dials the broker and opens a publishing channel in
// confirm mode.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("RABBITMQ_URL is required")
	}
	if cfg.QueueSuffix == "" {
		cfg.QueueSuffix = ".notify"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	pub, err := conn.Channel()
	if err == nil {
		err = pub.Confirm(false)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publishing channel: %w", err)
	}

	return &RabbitMQClient{
		conn:     conn,
		cfg:      cfg,
		pub:      pub,
		declared: make(map[string]bool),
	}, nil
}

// Publish routes data by its type attribute and waits for the broker to
// confirm it.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	r.mu.Lock()
	if !r.declared[channel] {
		if err := r.declareTopology(r.pub, channel); err != nil {
			r.mu.Unlock()
			return "", err
		}
		r.declared[channel] = true
	}

	headers := make(amqp.Table, len(attrs))
	for key, value := range attrs {
		headers[key] = value
	}
	messageID := uuid.NewString()
	confirm, err := r.pub.PublishWithDeferredConfirmWithContext(ctx, channel, routingKey(attrs), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: r.deliveryMode(),
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         data,
	})
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", err
	}
	if !acked {
		return "", fmt.Errorf("broker rejected message %s", messageID)
	}
	return messageID, nil
}

// Subscribe consumes the channel's queue on a dedicated AMQP channel until
// ctx is done. A failed delivery is requeued once and then dropped.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if r.cfg.PrefetchCount > 0 {
		if err := ch.Qos(r.cfg.PrefetchCount, 0, false); err != nil {
			return err
		}
	}
	if err := r.declareTopology(ch, channel); err != nil {
		return err
	}

	tag := "intake-" + uuid.NewString()
	deliveries, err := ch.ConsumeWithContext(ctx, r.queueName(channel), tag, false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(tag, false)
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			msg := Message{ID: d.MessageId, Data: d.Body, Attributes: tableToAttributes(d.Headers)}
			if err := handler(ctx, msg); err != nil {
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Close closes the publishing channel and the connection.
func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.pub.Close()
	return r.conn.Close()
}

func (r *RabbitMQClient) declareTopology(ch *amqp.Channel, channel string) error {
	if err := ch.ExchangeDeclare(channel, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", channel, err)
	}
	queue := r.queueName(channel)
	if _, err := ch.QueueDeclare(queue, r.cfg.QueueDurable, r.cfg.QueueAutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, "#", channel, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

func (r *RabbitMQClient) queueName(channel string) string {
	return channel + r.cfg.QueueSuffix
}

func (r *RabbitMQClient) deliveryMode() uint8 {
	if r.cfg.QueueDurable {
		return amqp.Persistent
	}
	return amqp.Transient
}

func routingKey(attrs map[string]string) string {
	if key := attrs[RoutingAttribute]; key != "" {
		return key
	}
	return "event"
}

func tableToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch v := value.(type) {
		case string:
			attrs[key] = v
		case []byte:
			attrs[key] = string(v)
		default:
			attrs[key] = fmt.Sprint(v)
		}
	}
	return attrs
}
