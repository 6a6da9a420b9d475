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

// This file fans download events out to in-process subscribers.

package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// EventSink receives every event of every download session.
// cloud.PubSubEventPublisher and EventHub implement it.
type EventSink interface {
	Publish(ctx context.Context, event model.DownloadEvent) error
}

// EventHub delivers session events to subscribers of that session. A slow
// subscriber misses events rather than blocking the download.
type EventHub struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[chan model.DownloadEvent]struct{}
}

func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventHub{buffer: buffer, subs: make(map[string]map[chan model.DownloadEvent]struct{})}
}

// Subscribe returns a channel of events for downloadID and a function that
// ends the subscription and closes the channel.
func (h *EventHub) Subscribe(downloadID string) (<-chan model.DownloadEvent, func()) {
	ch := make(chan model.DownloadEvent, h.buffer)

	h.mu.Lock()
	if h.subs[downloadID] == nil {
		h.subs[downloadID] = make(map[chan model.DownloadEvent]struct{})
	}
	h.subs[downloadID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[downloadID], ch)
			if len(h.subs[downloadID]) == 0 {
				delete(h.subs, downloadID)
			}
			close(ch)
		})
	}
}

func (h *EventHub) Publish(ctx context.Context, event model.DownloadEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.DownloadID] {
		select {
		case ch <- event:
		default:
			slog.DebugContext(ctx, "dropping event for slow subscriber", "download_id", event.DownloadID, "type", event.Type)
		}
	}
	return nil
}

// Subscribers is the number of open subscriptions for downloadID.
func (h *EventHub) Subscribers(downloadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[downloadID])
}
