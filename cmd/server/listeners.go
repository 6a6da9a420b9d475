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

package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/commands"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/workflow"
)

// SetupListeners attaches the analysis request pipeline to its subscription
// and starts receiving.
func SetupListeners(ctx context.Context, clients *cloud.ServiceClients, analyzer *workflow.SongAnalysisWorkflow, saver commands.ResultSaver) {
	listener, ok := clients.PubSubListeners[cloud.AnalysisRequestsSubscription]
	if !ok {
		slog.Info("no analysis request subscription configured")
		return
	}
	listener.SetCommand(workflow.NewAnalysisRequestWorkflow(analyzer, saver))
	listener.Listen(ctx)
}
