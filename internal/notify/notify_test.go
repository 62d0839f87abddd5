package notify

import (
	"context"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSender struct {
	msgs   []*pubsub.Message
	err    error
	closed bool
}

func (f *fakeSender) send(_ context.Context, msg *pubsub.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.msgs = append(f.msgs, msg)
	return "msg-1", nil
}

func (f *fakeSender) close() error {
	f.closed = true
	return nil
}

func TestPubSubPublish(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	p := &PubSub{sender: s}

	id, err := p.Publish(context.Background(), "bootstrap.report", map[string]bool{"degraded": true})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, s.msgs, 1)
	assert.JSONEq(t, `{"degraded":true}`, string(s.msgs[0].Data))
	assert.Equal(t, "bootstrap.report", s.msgs[0].Attributes[KindAttribute])

	require.NoError(t, p.Close())
	assert.True(t, s.closed)
}

func TestPubSubPublishErrors(t *testing.T) {
	t.Parallel()

	var unset *PubSub
	_, err := unset.Publish(context.Background(), "k", nil)
	require.Error(t, err)
	require.NoError(t, unset.Close())

	boom := errors.New("deadline exceeded")
	p := &PubSub{sender: &fakeSender{err: boom}}
	_, err = p.Publish(context.Background(), "k", "payload")
	require.ErrorIs(t, err, boom)

	_, err = p.Publish(context.Background(), "k", make(chan int))
	require.Error(t, err)
}

func TestNewPubSubRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := NewPubSub(context.Background(), "project", "")
	require.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLog(zap.New(core))

	id, err := l.Publish(context.Background(), "bootstrap.report", map[string]string{"outcome": "degraded"})
	require.NoError(t, err)
	assert.Equal(t, "log-1", id)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "bootstrap.report", logs.All()[0].ContextMap()["kind"])
	require.NoError(t, l.Close())
}

func TestMemoryPublisher(t *testing.T) {
	t.Parallel()

	m := &Memory{}
	id, err := m.Publish(context.Background(), "a", 1)
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	msgs[0].Kind = "changed"
	assert.Equal(t, "a", m.Messages()[0].Kind)
}
