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

package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/innovationmech/switstatus/pkg/logger"
)

// NATSConfig holds the NATS control channel settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url" json:"url" yaml:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix" json:"subject_prefix" yaml:"subject_prefix"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

func (c *NATSConfig) applyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "swit-status.control"
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
}

// Subject is the subject a worker called name listens on for pings.
func (c NATSConfig) Subject(name string) string {
	c.applyDefaults()
	return c.SubjectPrefix + "." + name + ".ping"
}

type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// NATSPinger pings workers with request/reply, one request per worker.
type NATSPinger struct {
	conn requester
	cfg  NATSConfig
	log  *zap.Logger
}

// NewNATSPinger creates a pinger on an existing connection.
func NewNATSPinger(conn *nats.Conn, cfg NATSConfig) *NATSPinger {
	return newNATSPinger(conn, cfg)
}

func newNATSPinger(conn requester, cfg NATSConfig) *NATSPinger {
	cfg.applyDefaults()
	return &NATSPinger{conn: conn, cfg: cfg, log: logger.GetLogger()}
}

// Connect dials NATS with the configured URL.
func Connect(cfg NATSConfig, name string) (*nats.Conn, error) {
	cfg.applyDefaults()
	nc, err := nats.Connect(cfg.URL, nats.Name(name), nats.Timeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w", err)
	}
	return nc, nil
}

func (p *NATSPinger) Ping(ctx context.Context, names []string) (map[string]Reply, error) {
	var out map[string]Reply
	for _, name := range names {
		reply, err := p.pingOne(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			p.log.Debug("worker did not answer ping", zap.String("worker", name), zap.Error(err))
			continue
		}
		if out == nil {
			out = make(map[string]Reply)
		}
		out[name] = reply
	}
	return out, nil
}

func (p *NATSPinger) pingOne(ctx context.Context, name string) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	msg, err := p.conn.RequestWithContext(ctx, p.cfg.Subject(name), nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("no reply from %s: %w", name, err)
		}
		return nil, fmt.Errorf("nats request failed: %w", err)
	}

	reply := Reply{}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			// An undecodable answer is still an answer, just not a pong.
			return Reply{"error": string(msg.Data)}, nil
		}
	}
	return reply, nil
}

// Responder answers pings for one worker.
type Responder struct {
	sub *nats.Subscription
}

// Serve subscribes name's ping subject and answers with PongReply.
func Serve(conn *nats.Conn, cfg NATSConfig, name string) (*Responder, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if name == "" {
		return nil, errors.New("worker name is required")
	}
	pong, err := json.Marshal(PongReply)
	if err != nil {
		return nil, err
	}
	sub, err := conn.Subscribe(cfg.Subject(name), func(msg *nats.Msg) {
		_ = msg.Respond(pong)
	})
	if err != nil {
		return nil, fmt.Errorf("nats reply subscription failed: %w", err)
	}
	return &Responder{sub: sub}, nil
}

// Stop unsubscribes.
func (r *Responder) Stop() error {
	if r == nil || r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
