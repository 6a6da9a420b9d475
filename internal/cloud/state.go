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

// Package cloud provides components for interacting with Google Cloud services.
// This file builds every external client once at startup and bundles them
// into ServiceClients, which the process entry point owns and passes to the
// services that need them.
//
// Logic Flow:
//  1. The generative model client is always created. An API key selects the
//     Gemini API backend; otherwise the configured project selects Vertex AI.
//     With neither, construction fails with ErrMissingCredentials.
//  2. Pub/Sub, BigQuery, Cloud Storage and IAM clients are only created when
//     a project is configured and the matching section names a resource.
//  3. One Pub/Sub listener is created per configured subscription. Commands
//     are attached later, once the workflows exist.
//  4. Each configured agent model is wrapped in a QuotaAwareGenerativeAIModel.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients is the container for external service clients. Optional
// clients are nil when not configured.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	GenAIClient     *genai.Client
	BigQueryClient  *bigquery.Client
	IAMClient       *credentials.IamCredentialsClient
	PubSubListeners map[string]*PubSubListener
	AgentModels     map[string]*QuotaAwareGenerativeAIModel
}

// Close releases every client that was created.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BigQueryClient != nil {
		_ = c.BigQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// AgentModel returns the wrapped model the analysis pipeline uses.
func (c *ServiceClients) AgentModel(config *Config) (*QuotaAwareGenerativeAIModel, error) {
	name := config.Analysis.AgentModel
	if name == "" {
		name = DefaultAgentModel
	}
	m, ok := c.AgentModels[name]
	if !ok {
		return nil, fmt.Errorf("agent model %q is not configured", name)
	}
	return m, nil
}

// NewGenAIClient creates the generative model client for the available
// credentials.
func NewGenAIClient(ctx context.Context, config *Config, apiKey string) (*genai.Client, error) {
	var clientConfig *genai.ClientConfig
	switch {
	case apiKey != "":
		clientConfig = &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	case config.Application.GoogleProjectId != "":
		clientConfig = &genai.ClientConfig{
			Project:  config.Application.GoogleProjectId,
			Location: config.Application.GoogleLocation,
			Backend:  genai.BackendVertexAI,
		}
	default:
		return nil, ErrMissingCredentials
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	return client, nil
}

// NewCloudServiceClients creates the clients described by config. apiKey is
// the Gemini API key, which may be empty when running on Vertex AI.
//
// Inputs:
//   - ctx: The root context of the process.
//   - config: The loaded configuration.
//   - apiKey: The Gemini API key, or "".
//
// Outputs:
//   - *ServiceClients: The clients; call Close on shutdown.
//   - error: ErrMissingCredentials or a client construction error.
func NewCloudServiceClients(ctx context.Context, config *Config, apiKey string) (*ServiceClients, error) {
	cloud := &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	var err error
	if cloud.GenAIClient, err = NewGenAIClient(ctx, config, apiKey); err != nil {
		return nil, err
	}
	for key, values := range config.AgentModels {
		cloud.AgentModels[key] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, cloud.GenAIClient.Models, values.RateLimit)
	}

	project := config.Application.GoogleProjectId
	if project == "" {
		slog.Info("no google project configured; cloud integrations disabled")
		return cloud, nil
	}

	if config.Topics.DownloadEvents != "" || len(config.TopicSubscriptions) > 0 {
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, project); err != nil {
			cloud.Close()
			return nil, fmt.Errorf("error creating pubsub client: %w", err)
		}
		for key, values := range config.TopicSubscriptions {
			cloud.PubSubListeners[key] = NewPubSubListener(cloud.PubsubClient, values.Name, nil)
		}
	}

	if config.BigQueryDataSource.DatasetName != "" {
		if cloud.BigQueryClient, err = bigquery.NewClient(ctx, project); err != nil {
			cloud.Close()
			return nil, fmt.Errorf("error creating bigquery client: %w", err)
		}
	}

	if config.Storage.ArchiveBucket != "" {
		if cloud.StorageClient, err = storage.NewClient(ctx); err != nil {
			cloud.Close()
			return nil, fmt.Errorf("error creating storage client: %w", err)
		}
		if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx); err != nil {
			cloud.Close()
			return nil, fmt.Errorf("error creating iam credentials client: %w", err)
		}
	}

	return cloud, nil
}
