// Package notify announces bootstrap reports to other systems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Publisher delivers a payload and returns a message ID.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) (string, error)
	Close() error
}

// Log writes payloads to the logger instead of a broker.
type Log struct {
	logger *zap.Logger
	mu     sync.Mutex
	seq    int
}

// NewLog returns a Log publisher.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Publish implements Publisher.
func (l *Log) Publish(_ context.Context, kind string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	l.mu.Lock()
	l.seq++
	id := fmt.Sprintf("log-%d", l.seq)
	l.mu.Unlock()
	l.logger.Info("notification", zap.String("kind", kind), zap.String("id", id), zap.ByteString("payload", data))
	return id, nil
}

// Close implements Publisher.
func (*Log) Close() error { return nil }

// Memory keeps published payloads for inspection.
type Memory struct {
	mu       sync.RWMutex
	messages []Message
}

// Message is one Memory publish.
type Message struct {
	Kind    string
	Payload any
}

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, kind string, payload any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Kind: kind, Payload: payload})
	return fmt.Sprintf("memory-%d", len(m.messages)), nil
}

// Messages returns a copy of what was published.
func (m *Memory) Messages() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Close implements Publisher.
func (*Memory) Close() error { return nil }
