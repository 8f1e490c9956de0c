// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package rabbitmq implements the task queue Broker on a durable AMQP queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/innovationmech/switstatus/pkg/taskqueue"
)

// Config holds the RabbitMQ broker settings.
type Config struct {
	URL           string `mapstructure:"url" json:"url" yaml:"url" validate:"required"`
	Queue         string `mapstructure:"queue" json:"queue" yaml:"queue"`
	PrefetchCount int    `mapstructure:"prefetch_count" json:"prefetch_count" yaml:"prefetch_count"`
	ConsumerTag   string `mapstructure:"consumer_tag" json:"consumer_tag" yaml:"consumer_tag"`
}

func (c *Config) applyDefaults() {
	if c.Queue == "" {
		c.Queue = "swit-status.checks"
	}
	if c.PrefetchCount <= 0 {
		c.PrefetchCount = 1
	}
}

// channel is the subset of *amqp.Channel the broker needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Broker publishes to and consumes from one durable queue through the
// default exchange. Deliveries are acknowledged after the handler returns.
type Broker struct {
	cfg  Config
	conn *amqp.Connection
	ch   channel

	mu     sync.Mutex
	closed bool
}

// Dial connects to RabbitMQ and declares the queue.
func Dial(cfg Config) (*Broker, error) {
	cfg.applyDefaults()
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connection failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	b, err := newBroker(cfg, ch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	b.conn = conn
	return b, nil
}

func newBroker(cfg Config, ch channel) (*Broker, error) {
	cfg.applyDefaults()
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}
	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to apply rabbitmq QoS: %w", err)
	}
	return &Broker{cfg: cfg, ch: ch}, nil
}

func (b *Broker) Publish(_ context.Context, task *taskqueue.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return taskqueue.ErrClosed
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	headers := amqp.Table{}
	for k, v := range task.Headers {
		headers[k] = v
	}
	pub := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		Body:         data,
		MessageId:    task.ID,
		Type:         task.Name,
		Timestamp:    task.SubmittedAt,
		DeliveryMode: amqp.Persistent,
	}
	if err := b.ch.Publish("", b.cfg.Queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	return nil
}

func (b *Broker) Consume(ctx context.Context, fn func(ctx context.Context, task *taskqueue.Task) error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return taskqueue.ErrClosed
	}
	deliveries, err := b.ch.Consume(b.cfg.Queue, b.cfg.ConsumerTag, false, false, false, false, nil)
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("rabbitmq consume failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return taskqueue.ErrClosed
			}
			var task taskqueue.Task
			if err := json.Unmarshal(d.Body, &task); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			_ = fn(ctx, &task)
			_ = d.Ack(false)
		}
	}
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.ch.Close()
	if b.conn != nil {
		if cerr := b.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
