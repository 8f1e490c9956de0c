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
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyIsPong(t *testing.T) {
	assert.True(t, Reply{"ok": "pong"}.IsPong())
	assert.False(t, Reply{"ok": "pang"}.IsPong())
	assert.False(t, Reply{"ok": "pong", "extra": "1"}.IsPong())
	assert.False(t, Reply(nil).IsPong())
}

func TestDummyAlwaysPongs(t *testing.T) {
	got, err := Dummy{}.Ping(context.Background(), []string{"w1", "w2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]Reply{"w1": PongReply, "w2": PongReply}, got)
}

func TestHubAnswersOnlyJoinedWorkers(t *testing.T) {
	h := NewHub()
	h.Join("celery@a")
	h.JoinWithReply("celery@b", Reply{"ok": "busy"})

	got, err := h.Ping(context.Background(), []string{"celery@a"})
	require.NoError(t, err)
	assert.True(t, got["celery@a"].IsPong())

	got, err = h.Ping(context.Background(), []string{"celery@b"})
	require.NoError(t, err)
	assert.False(t, got["celery@b"].IsPong())

	got, err = h.Ping(context.Background(), []string{"celery@c"})
	require.NoError(t, err)
	assert.Nil(t, got)

	h.Leave("celery@a")
	assert.Equal(t, []string{"celery@b"}, h.Workers())
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	p, err := r.Lookup("dummy")
	require.NoError(t, err)
	assert.IsType(t, Dummy{}, p)

	_, err = r.Lookup("proj.celery.app")
	assert.ErrorIs(t, err, ErrUnknownApp)

	hub := NewHub()
	r.Register("proj.celery.app", hub)
	p, err = r.Lookup("proj.celery.app")
	require.NoError(t, err)
	assert.Same(t, hub, p)
}

type fakeRequester struct {
	replies  map[string][]byte
	subjects []string
}

func (f *fakeRequester) RequestWithContext(_ context.Context, subj string, _ []byte) (*nats.Msg, error) {
	f.subjects = append(f.subjects, subj)
	data, ok := f.replies[subj]
	if !ok {
		return nil, nats.ErrNoResponders
	}
	return &nats.Msg{Subject: subj, Data: data}, nil
}

func TestNATSPingerCollectsReplies(t *testing.T) {
	cfg := NATSConfig{SubjectPrefix: "ctl", Timeout: 50 * time.Millisecond}
	req := &fakeRequester{replies: map[string][]byte{
		"ctl.w1.ping": []byte(`{"ok":"pong"}`),
		"ctl.w2.ping": []byte(`{"ok":"nope"}`),
		"ctl.w3.ping": []byte(`garbage`),
	}}
	p := newNATSPinger(req, cfg)

	got, err := p.Ping(context.Background(), []string{"w1", "w2", "w3", "w4"})
	require.NoError(t, err)

	assert.True(t, got["w1"].IsPong())
	assert.False(t, got["w2"].IsPong())
	assert.Equal(t, "garbage", got["w3"]["error"])
	assert.NotContains(t, got, "w4")
	assert.Equal(t, []string{"ctl.w1.ping", "ctl.w2.ping", "ctl.w3.ping", "ctl.w4.ping"}, req.subjects)
}

func TestNATSPingerNobodyAnswers(t *testing.T) {
	p := newNATSPinger(&fakeRequester{}, NATSConfig{})

	got, err := p.Ping(context.Background(), []string{"w1"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNATSConfigDefaults(t *testing.T) {
	var cfg NATSConfig
	assert.Equal(t, "swit-status.control.w1.ping", cfg.Subject("w1"))

	cfg.applyDefaults()
	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestServeValidatesArguments(t *testing.T) {
	_, err := Serve(nil, NATSConfig{}, "w1")
	assert.Error(t, err)
}
