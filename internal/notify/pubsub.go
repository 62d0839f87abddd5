package notify

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// KindAttribute carries the payload kind on every message.
const KindAttribute = "kind"

type sender interface {
	send(ctx context.Context, msg *pubsub.Message) (string, error)
	close() error
}

type topicSender struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

func (s *topicSender) send(ctx context.Context, msg *pubsub.Message) (string, error) {
	return s.publisher.Publish(ctx, msg).Get(ctx)
}

func (s *topicSender) close() error {
	s.publisher.Stop()
	return s.client.Close()
}

// PubSub publishes JSON payloads to a Google Cloud Pub/Sub topic.
type PubSub struct {
	sender sender
}

// NewPubSub connects to projectID and publishes to topic.
func NewPubSub(ctx context.Context, projectID, topic string) (*PubSub, error) {
	if projectID == "" || topic == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return &PubSub{sender: &topicSender{client: client, publisher: client.Publisher(topic)}}, nil
}

// Publish implements Publisher.
func (p *PubSub) Publish(ctx context.Context, kind string, payload any) (string, error) {
	if p == nil || p.sender == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{KindAttribute: kind},
	}
	id, err := p.sender.send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and closes the client.
func (p *PubSub) Close() error {
	if p == nil || p.sender == nil {
		return nil
	}
	if err := p.sender.close(); err != nil {
		return fmt.Errorf("close pubsub: %w", err)
	}
	return nil
}
