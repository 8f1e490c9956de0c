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

// Package kafka implements the task queue Broker on Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/innovationmech/switstatus/pkg/taskqueue"
)

// Config holds the Kafka broker settings.
type Config struct {
	Brokers []string `mapstructure:"brokers" json:"brokers" yaml:"brokers" validate:"required,min=1"`
	Topic   string   `mapstructure:"topic" json:"topic" yaml:"topic"`
	GroupID string   `mapstructure:"group_id" json:"group_id" yaml:"group_id"`
	// WriteTimeout bounds each publish.
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Topic == "" {
		c.Topic = "swit-status.checks"
	}
	if c.GroupID == "" {
		c.GroupID = "swit-status-workers"
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Broker publishes tasks to a topic and consumes them in a consumer group.
// The task id is the message key.
type Broker struct {
	cfg       Config
	writer    messageWriter
	newReader func() messageReader

	mu     sync.Mutex
	reader messageReader
	closed bool
}

// New creates a broker. No connection is made until the first publish or
// consume.
func New(cfg Config) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka broker requires at least one broker address")
	}
	cfg.applyDefaults()

	b := &Broker{cfg: cfg}
	b.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	b.newReader = func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			MinBytes:    1,
			MaxBytes:    10 * 1024 * 1024,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.FirstOffset,
		})
	}
	return b, nil
}

func (b *Broker) Publish(ctx context.Context, task *taskqueue.Task) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return taskqueue.ErrClosed
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	headers := make([]kafka.Header, 0, len(task.Headers))
	for k, v := range task.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	msg := kafka.Message{Key: []byte(task.ID), Value: data, Headers: headers, Time: task.SubmittedAt}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write task to kafka: %w", err)
	}
	return nil
}

// Consume fetches messages and commits each one after fn returns.
func (b *Broker) Consume(ctx context.Context, fn func(ctx context.Context, task *taskqueue.Task) error) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return taskqueue.ErrClosed
	}
	if b.reader == nil {
		b.reader = b.newReader()
	}
	r := b.reader
	b.mu.Unlock()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return taskqueue.ErrClosed
			}
			return fmt.Errorf("failed to fetch task from kafka: %w", err)
		}

		var task taskqueue.Task
		if err := json.Unmarshal(msg.Value, &task); err == nil {
			_ = fn(ctx, &task)
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to commit kafka offset: %w", err)
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
	var errs []error
	if b.reader != nil {
		errs = append(errs, b.reader.Close())
	}
	errs = append(errs, b.writer.Close())
	return errors.Join(errs...)
}
