package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Client defines the messaging client interface
type Client interface {
	// PublishMessage publishes a message to the exchange with the given routing key
	PublishMessage(exchange, routingKey string, body []byte) error

	// PublishJSON publishes a JSON message to the exchange with the given routing key
	PublishJSON(exchange, routingKey string, data interface{}) error

	// DeclareQueue declares a queue with the given name
	DeclareQueue(name string) error

	// BindQueue binds a queue to an exchange with the given routing key
	BindQueue(queueName, exchange, routingKey string) error

	// Consume consumes messages from the given queue. The handler receives
	// the message body and the routing key it was published with.
	Consume(queueName string, handler func(body []byte, routingKey string) error) error

	// GetConfig returns the RabbitMQ configuration in use
	GetConfig() *config.RabbitMQConfig

	// Close closes the connection
	Close() error
}

// RabbitMQClient implements the Client interface using RabbitMQ
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	log     *logrus.Logger
}

// NewRabbitMQClient creates a new RabbitMQ client and declares the task and
// log exchanges.
func NewRabbitMQClient(config *config.RabbitMQConfig, log *logrus.Logger) (*RabbitMQClient, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}

	if config.Exchange.Task == "" || config.Exchange.Log == "" {
		return nil, fmt.Errorf("rabbitmq exchange names are required")
	}

	client := &RabbitMQClient{
		config: config,
		log:    log,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes a connection to RabbitMQ
func (c *RabbitMQClient) connect() error {
	var err error

	c.conn, err = amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	for _, exchange := range []string{c.config.Exchange.Task, c.config.Exchange.Log} {
		err = c.channel.ExchangeDeclare(
			exchange, // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			c.Close()
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	// Set up connection recovery
	go c.handleReconnect()

	return nil
}

// handleReconnect attempts to reconnect to RabbitMQ when the connection is lost
func (c *RabbitMQClient) handleReconnect() {
	connErrChan := c.conn.NotifyClose(make(chan *amqp.Error))

	for err := range connErrChan {
		c.log.WithError(err).Warn("RabbitMQ connection closed, attempting to reconnect")

		for i := 0; i < c.config.ReconnectRetries; i++ {
			time.Sleep(time.Duration(c.config.ReconnectTimeout) * time.Millisecond)

			if err := c.connect(); err == nil {
				c.log.Info("Successfully reconnected to RabbitMQ")
				return
			}

			c.log.Warnf("Failed to reconnect to RabbitMQ (attempt %d/%d)", i+1, c.config.ReconnectRetries)
		}

		c.log.Error("Failed to reconnect to RabbitMQ after multiple attempts")
		return
	}
}

// PublishMessage publishes a message to the exchange with the given routing key
func (c *RabbitMQClient) PublishMessage(exchange, routingKey string, body []byte) error {
	if exchange == "" {
		exchange = c.config.Exchange.Task
	}

	return c.channel.Publish(
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/octet-stream",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON publishes a JSON message to the exchange with the given routing key
func (c *RabbitMQClient) PublishJSON(exchange, routingKey string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON message: %w", err)
	}

	if exchange == "" {
		exchange = c.config.Exchange.Task
	}

	return c.channel.Publish(
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// DeclareQueue declares a queue with the given name
func (c *RabbitMQClient) DeclareQueue(name string) error {
	_, err := c.channel.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)

	return err
}

// BindQueue binds a queue to an exchange with the given routing key
func (c *RabbitMQClient) BindQueue(queueName, exchange, routingKey string) error {
	if exchange == "" {
		exchange = c.config.Exchange.Task
	}

	return c.channel.QueueBind(
		queueName,  // queue name
		routingKey, // routing key
		exchange,   // exchange
		false,      // no-wait
		nil,        // arguments
	)
}

// Consume consumes messages from the given queue
func (c *RabbitMQClient) Consume(queueName string, handler func(body []byte, routingKey string) error) error {
	// Ensure queue exists
	if err := c.DeclareQueue(queueName); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := c.channel.Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			if err := handler(msg.Body, msg.RoutingKey); err != nil {
				c.log.WithError(err).Error("Error processing message")
				// Negative acknowledgement, message will be requeued
				msg.Nack(false, true)
			} else {
				msg.Ack(false)
			}
		}
	}()

	return nil
}

// GetConfig returns the RabbitMQ configuration in use
func (c *RabbitMQClient) GetConfig() *config.RabbitMQConfig {
	return c.config
}

// Close closes the connection and channel
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
