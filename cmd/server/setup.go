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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-tune-trace/internal/api"
	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/downloader"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/services"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/workflow"
)

// StateManager owns every long-lived component of the server.
type StateManager struct {
	config    *cloud.Config
	cloud     *cloud.ServiceClients
	history   *services.HistoryService
	downloads *services.DownloadManager
	publisher *cloud.PubSubEventPublisher
}

var state = &StateManager{}

// SetupOS points the configuration loader at ./configs with the "local"
// runtime unless the environment already says otherwise.
func SetupOS() error {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig loads the configuration once.
func GetConfig() (*cloud.Config, error) {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			return nil, fmt.Errorf("failed to setup env: %w", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			return nil, err
		}
		state.config = config
	}
	return state.config, nil
}

// InitState builds the services behind the HTTP handler.
//
// Logic Flow:
//  1. The history database and the data directory are always opened.
//  2. Cloud clients are created from the credentials. Missing generative
//     model credentials are not fatal: the server still serves history,
//     downloads and playlists, and the analysis routes answer with an error.
//  3. With a model available, the song analysis workflow backs the analysis
//     service and the analysis request listeners.
//  4. Download events go to the in-process hub and, when a topic is
//     configured, to Pub/Sub.
//  5. The archive and YouTube routes get their collaborators when configured.
func InitState(ctx context.Context, config *cloud.Config, apiKey string) (*api.Handler, error) {
	dataDir := config.Application.DataDir
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
		}
	}

	history, err := services.NewHistoryService(cloud.ResolvePath(dataDir, config.Database.Path))
	if err != nil {
		return nil, err
	}
	state.history = history

	clients, err := cloud.NewCloudServiceClients(ctx, config, apiKey)
	if errors.Is(err, cloud.ErrMissingCredentials) {
		slog.Warn("analysis disabled", "error", err)
	} else if err != nil {
		return nil, err
	}
	state.cloud = clients

	hub := services.NewEventHub(64)
	handler := &api.Handler{
		ServiceName:      config.Application.Name,
		APIKeyConfigured: clients != nil,
		History:          history,
		Events:           hub,
	}

	if clients != nil {
		agentModel, err := clients.AgentModel(config)
		if err != nil {
			return nil, err
		}
		resolver := services.NewYouTubeSearchResolver(config.Enrichment, nil)
		analyzer, err := workflow.NewSongAnalysisWorkflow(config, agentModel, resolver)
		if err != nil {
			return nil, err
		}
		handler.Analysis = &services.AnalysisService{
			Analyzer: analyzer,
			Store:    history,
			Exporter: services.NewParameterExporter(clients.BigQueryClient, config.BigQueryDataSource.DatasetName, config.BigQueryDataSource.ParametersTable),
		}
		SetupListeners(ctx, clients, analyzer, history)
	}

	sinks := []services.EventSink{hub}
	if clients != nil && clients.PubsubClient != nil && config.Topics.DownloadEvents != "" {
		state.publisher = cloud.NewPubSubEventPublisher(clients.PubsubClient, config.Topics.DownloadEvents)
		sinks = append(sinks, state.publisher)
	}
	state.downloads = services.NewDownloadManager(
		downloader.NewYtDlp(config.Downloads.YtDlpPath, config.Downloads.AudioQuality),
		cloud.ResolvePath(dataDir, config.Downloads.BaseDir),
		time.Duration(config.Downloads.SettleMillis)*time.Millisecond,
		sinks...,
	)
	handler.Downloads = state.downloads

	if clients != nil && clients.StorageClient != nil {
		handler.Archiver = cloud.NewPlaylistArchiver(
			clients.StorageClient,
			clients.IAMClient,
			config.Storage.ArchiveBucket,
			config.Storage.SignerServiceAccountEmail,
			time.Duration(config.Storage.SignedURLMinutes)*time.Minute,
		)
	}

	auth := cloud.NewYouTubeAuth(
		cloud.ResolvePath(dataDir, config.YouTube.ClientSecretsPath),
		cloud.ResolvePath(dataDir, config.YouTube.TokenPath),
		config.YouTube.RedirectURL,
	)
	handler.Auth = auth
	handler.Playlists = &services.PlaylistPublisher{
		History: history,
		Connect: func(ctx context.Context) (services.PlaylistAPI, error) {
			svc, err := auth.Service(ctx)
			if err != nil {
				return nil, err
			}
			return &services.YouTubePlaylistClient{Service: svc}, nil
		},
		DefaultPrivacy: config.YouTube.DefaultPrivacy,
	}

	return handler, nil
}

// CloseState stops downloads and releases every client.
func CloseState(ctx context.Context) error {
	var err error
	if state.downloads != nil {
		err = errors.Join(err, state.downloads.Shutdown(ctx))
	}
	if state.publisher != nil {
		state.publisher.Stop()
	}
	if state.cloud != nil {
		state.cloud.Close()
	}
	if state.history != nil {
		err = errors.Join(err, state.history.Close())
	}
	return err
}
