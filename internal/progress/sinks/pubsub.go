package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/licitatech/pncp-harvester/internal/progress"
)

// PubSubSink forwards progress events to a Google Cloud Pub/Sub topic, one
// JSON message per event with the stage carried as an attribute.
type PubSubSink struct {
	topic *pubsub.Topic
}

// NewPubSubSink wraps the provided topic. The caller retains ownership of the
// underlying client.
func NewPubSubSink(topic *pubsub.Topic) (*PubSubSink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &PubSubSink{topic: topic}, nil
}

// Consume publishes the batch and waits for server acknowledgement of every
// message. The first publish failure is returned after the whole batch has
// been attempted.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	results := make([]*pubsub.PublishResult, 0, len(batch))
	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal progress event: %w", err)
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"stage":  string(evt.Stage),
				"run_id": evt.RunID,
			},
		}))
	}
	var firstErr error
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("publish progress event: %w", err)
		}
	}
	return firstErr
}

// Close stops the topic's publish goroutines, flushing pending messages.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}
