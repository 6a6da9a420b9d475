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

// Package cloud holds configuration and the clients for every external
// service the application talks to: the generative model, Pub/Sub, Cloud
// Storage, BigQuery, IAM credentials and the YouTube Data API.
//
// This file defines the configuration structs decoded from the TOML files.
//
// Structs:
//   - Application: project, location, port and data directory.
//   - Analysis: model selection and the recommendation counts.
//   - Enrichment: the search-scrape URL resolver.
//   - Downloads: the yt-dlp download manager.
//   - Database, Storage, BigQueryDataSource, Topics, TopicSubscription, YouTube.
//   - AgentModel: generation settings for one named model.
//   - Config: the root container.
package cloud

import "google.golang.org/genai"

// DefaultSafetySettings disables blocking for every harm category.
var DefaultSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
}

// Application holds process-wide settings.
type Application struct {
	Name            string `toml:"name"`              // Service name reported by the health endpoint.
	GoogleProjectId string `toml:"google_project_id"` // Enables the Google Cloud clients when set.
	GoogleLocation  string `toml:"location"`          // Vertex AI location.
	Port            string `toml:"port"`              // HTTP listen port.
	DataDir         string `toml:"data_dir"`          // Root for the database, downloads and tokens when relative.
}

// Analysis configures the song analysis pipeline.
type Analysis struct {
	AgentModel               string `toml:"agent_model"`               // Key into Config.AgentModels.
	ValidateOutput           bool   `toml:"validate_output"`           // Insert the structural validator into the chain.
	RequestedRecommendations int    `toml:"requested_recommendations"` // Count asked of the model.
	ValidatorRecommendations int    `toml:"validator_recommendations"` // Count the validator enforces.
	RawExcerptLength         int    `toml:"raw_excerpt_length"`        // Characters of an unparseable reply kept for diagnosis.
	MaxRetries               int    `toml:"max_retries"`               // Extra generation attempts after a failed call.
}

// Enrichment configures the video URL resolver.
type Enrichment struct {
	SearchURL              string  `toml:"search_url"`
	UserAgent              string  `toml:"user_agent"`
	TimeoutSeconds         int     `toml:"timeout_seconds"`
	RequestsPerSecond      float64 `toml:"requests_per_second"`
	Burst                  int     `toml:"burst"`
	BreakerFailures        int     `toml:"breaker_failures"`         // Consecutive failures that open the breaker.
	BreakerCooldownSeconds int     `toml:"breaker_cooldown_seconds"` // How long the breaker stays open.
}

// Downloads configures the playlist download manager.
type Downloads struct {
	BaseDir      string `toml:"base_dir"`
	YtDlpPath    string `toml:"yt_dlp_path"`
	SettleMillis int    `toml:"settle_millis"` // Wait after the tool exits before rescanning the directory.
	AudioQuality string `toml:"audio_quality"`
}

type Database struct {
	Path string `toml:"path"`
}

// Storage configures the playlist archive bucket.
type Storage struct {
	ArchiveBucket             string `toml:"archive_bucket"`
	SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	SignedURLMinutes          int    `toml:"signed_url_minutes"`
}

// BigQueryDataSource names the analytics export destination.
type BigQueryDataSource struct {
	DatasetName     string `toml:"dataset"`
	ParametersTable string `toml:"parameters_table"`
}

// Topics names the topics events are published to.
type Topics struct {
	DownloadEvents string `toml:"download_events"`
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// YouTube configures OAuth and playlist publishing.
type YouTube struct {
	ClientSecretsPath string `toml:"client_secrets_path"`
	TokenPath         string `toml:"token_path"`
	RedirectURL       string `toml:"redirect_url"`
	DefaultPrivacy    string `toml:"default_privacy"`
}

// PromptTemplates overrides the built-in prompt. Empty means built-in.
type PromptTemplates struct {
	AnalysisPrompt string `toml:"analysis"`
}

// AgentModel holds the generation settings for one named model.
type AgentModel struct {
	Model              string  `toml:"model"`               // Model id, e.g. gemini-2.0-flash-exp.
	SystemInstructions string  `toml:"system_instructions"` // Optional system instruction.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"` // Response MIME type.
	RateLimit          int     `toml:"rate_limit"`    // Requests per second, also the burst.
}

// Telemetry configures logging and the OpenTelemetry exporters.
type Telemetry struct {
	Enabled     bool   `toml:"enabled"`      // Install the Cloud Trace and Cloud Monitoring exporters.
	ServiceName string `toml:"service_name"` // Resource service name and otelgin server name.
	LogFile     string `toml:"log_file"`     // Copy of the stdout log, relative to the data directory.
	LogLevel    string `toml:"log_level"`    // debug, info, warn or error.
}

// Key of the analysis request subscription in Config.TopicSubscriptions.
const AnalysisRequestsSubscription = "analysis_requests"

// DefaultAgentModel is the Config.AgentModels key used when Analysis.AgentModel
// is empty.
const DefaultAgentModel = "tune-trace"

// Config is the root of the TOML configuration.
type Config struct {
	Application        Application                  `toml:"application"`
	Analysis           Analysis                     `toml:"analysis"`
	Enrichment         Enrichment                   `toml:"enrichment"`
	Downloads          Downloads                    `toml:"downloads"`
	Database           Database                     `toml:"database"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	Topics             Topics                       `toml:"topics"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	YouTube            YouTube                      `toml:"youtube"`
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	AgentModels        map[string]AgentModel        `toml:"agent_models"`
	Telemetry          Telemetry                    `toml:"telemetry"`
}

// NewConfig returns a Config populated with the defaults. Values decoded from
// TOML files replace them key by key.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:    "TuneTrace.AI",
			Port:    "8000",
			DataDir: ".",
		},
		Analysis: Analysis{
			AgentModel:               DefaultAgentModel,
			RequestedRecommendations: 6,
			ValidatorRecommendations: 3,
			RawExcerptLength:         500,
		},
		Enrichment: Enrichment{
			SearchURL:              "https://www.youtube.com/results",
			UserAgent:              "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			TimeoutSeconds:         10,
			RequestsPerSecond:      2,
			Burst:                  4,
			BreakerFailures:        5,
			BreakerCooldownSeconds: 60,
		},
		Downloads: Downloads{
			BaseDir:      "playlists",
			YtDlpPath:    "yt-dlp",
			SettleMillis: 3000,
			AudioQuality: "320",
		},
		Database: Database{Path: "tunetrace.db"},
		Storage:  Storage{SignedURLMinutes: 60},
		YouTube: YouTube{
			ClientSecretsPath: "client_secrets.json",
			TokenPath:         "youtube_token.json",
			RedirectURL:       "http://localhost:8000/youtube/callback",
			DefaultPrivacy:    "public",
		},
		Telemetry: Telemetry{
			ServiceName: "tune-trace-server",
			LogFile:     "app.log",
			LogLevel:    "info",
		},
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels: map[string]AgentModel{
			DefaultAgentModel: {
				Model:        "gemini-2.0-flash-exp",
				Temperature:  0.7,
				TopP:         0.95,
				TopK:         40,
				MaxTokens:    8192,
				OutputFormat: "application/json",
				RateLimit:    5,
			},
		},
	}
}

// AgentModelConfig returns the settings of the model the analysis uses.
func (c *Config) AgentModelConfig() (AgentModel, bool) {
	name := c.Analysis.AgentModel
	if name == "" {
		name = DefaultAgentModel
	}
	m, ok := c.AgentModels[name]
	return m, ok
}
