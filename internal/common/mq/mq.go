package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Options struct {
	Host  string
	Port  int
	User  string
	Pass  string
	VHost string
}

func (o Options) URL() string {
	vhost := o.VHost
	if vhost == "" || vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", o.User, o.Pass, o.Host, o.Port, vhost)
}

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex // amqp channels are not safe for concurrent publish
}

func Dial(o Options) (*Client, error) {
	conn, err := amqp.Dial(o.URL())
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) IsClosed() bool {
	return c == nil || c.conn == nil || c.conn.IsClosed()
}

// NotifyClose fires once when the underlying connection goes away.
func (c *Client) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (c *Client) DeclareTopic(exchange string) error {
	if c == nil || c.ch == nil {
		return errors.New("nil channel")
	}
	return c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// PublishTransient sends without publisher confirms; delivery is at most once.
func (c *Client) PublishTransient(ctx context.Context, exchange, key string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Bind declares an exclusive auto-delete queue bound to key and starts an
// auto-ack consumer on it.
func (c *Client) Bind(exchange, key string) (<-chan amqp.Delivery, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("queue declare: %w", err)
	}
	if err := c.ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
		return nil, "", fmt.Errorf("queue bind %s: %w", key, err)
	}
	msgs, err := c.ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, "", fmt.Errorf("consume %s: %w", q.Name, err)
	}
	return msgs, q.Name, nil
}

func (c *Client) Unbind(queue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.ch.QueueDelete(queue, false, false, false)
	return err
}
