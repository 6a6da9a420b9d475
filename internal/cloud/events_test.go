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


package cloud_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubSubEventPublisherDeliversEvent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "download-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "download-events-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	publisher := cloud.NewPubSubEventPublisher(client, "download-events")
	event := model.DownloadEvent{
		Type:       model.EventSongStart,
		DownloadID: "session-1",
		Data:       map[string]interface{}{"song_index": 0},
		Timestamp:  time.Now().UTC(),
	}

	start := time.Now()
	require.NoError(t, publisher.Publish(ctx, event))
	assert.Less(t, time.Since(start), time.Second)
	publisher.Stop()

	recvCtx, stop := context.WithTimeout(ctx, 10*time.Second)
	defer stop()
	var got *pubsub.Message
	err = sub.Receive(recvCtx, func(_ context.Context, m *pubsub.Message) {
		m.Ack()
		got = m
		stop()
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.EventSongStart, got.Attributes["type"])
	assert.Equal(t, "session-1", got.Attributes["download_id"])
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, float64(0), payload["song_index"])
}
