// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

const publishAckTimeout = time.Minute

// PubSubEventPublisher forwards download session events to a topic so that
// other services can follow playlist downloads.
type PubSubEventPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubEventPublisher publishes to topicID on client.
func NewPubSubEventPublisher(client *pubsub.Client, topicID string) *PubSubEventPublisher {
	return &PubSubEventPublisher{topic: client.Topic(topicID)}
}

// Publish queues one event on the topic and returns without waiting for the
// server. The topic batches messages; a rejected message is logged once its
// result settles. The event type and session id are also set as attributes
// for subscription filters.
func (p *PubSubEventPublisher) Publish(ctx context.Context, event model.DownloadEvent) error {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":        event.Type,
			"download_id": event.DownloadID,
		},
	})

	go func() {
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishAckTimeout)
		defer cancel()
		if _, err := result.Get(ackCtx); err != nil {
			slog.WarnContext(ackCtx, "failed to publish download event", "type", event.Type, "download_id", event.DownloadID, "error", err)
			return
		}
		slog.DebugContext(ackCtx, "published download event", "type", event.Type, "download_id", event.DownloadID)
	}()
	return nil
}

// Stop flushes queued events and stops the topic's background publishing.
func (p *PubSubEventPublisher) Stop() {
	p.topic.Stop()
}
