// Package pubsub announces published essays on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/essaypub/internal/essay"
)

// Attribute keys set on every message alongside the propagated trace context.
const (
	AttrRunID = "run_id"
	AttrKey   = "key"
)

// Notifier publishes essay.Published events as JSON messages.
type Notifier struct {
	topic      *pubsub.Topic
	propagator propagation.TextMapPropagator
}

// New creates a Notifier for topic. A nil propagator uses the global one.
func New(topic *pubsub.Topic, propagator propagation.TextMapPropagator) *Notifier {
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	return &Notifier{topic: topic, propagator: propagator}
}

// Notify marshals the event to JSON and waits for the server-assigned message ID.
func (n *Notifier) Notify(ctx context.Context, event essay.Published) (string, error) {
	if n.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrRunID: event.RunID,
			AttrKey:   event.Key,
		},
	}
	n.propagator.Inject(ctx, &attributeCarrier{attrs: msg.Attributes})

	id, err := n.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", n.topic.ID(), err)
	}
	return id, nil
}

// Close flushes pending messages and stops the topic's background goroutines.
func (n *Notifier) Close() {
	if n.topic != nil {
		n.topic.Stop()
	}
}

// attributeCarrier implements propagation.TextMapCarrier for message attributes.
type attributeCarrier struct {
	attrs map[string]string
}

func (c *attributeCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *attributeCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
