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
// This file contains the configuration loader and the text generation helper
// shared by every command that calls the generative model.
//
// Functions:
//   - LoadConfig: decodes the base configuration file and then the
//     runtime-specific override (e.g. .env.local.toml, .env.test.toml).
//   - GenerateTextResponse: calls the model with retries and records token
//     usage on the supplied counters.
//   - ResolvePath: anchors relative paths under the data directory.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
	EnvGoogleAPIKey     = "GOOGLE_API_KEY"    // API key for the Gemini API backend.
)

// ErrMissingCredentials is returned when neither an API key nor a Google
// Cloud project is available for the generative model.
var ErrMissingCredentials = errors.New("missing generative model credentials: set GOOGLE_API_KEY or application.google_project_id")

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// ConfigFiles returns the base and runtime configuration file names derived
// from the environment.
func ConfigFiles() (base string, runtime string) {
	prefix := os.Getenv(EnvConfigFilePrefix)
	if len(prefix) > 0 && !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix = prefix + string(os.PathSeparator)
	}
	env := os.Getenv(EnvConfigRuntime)
	if env == "" {
		env = "test"
	}
	base = prefix + ConfigFileBaseName + ConfigFileExtension
	runtime = prefix + ConfigFileBaseName + ConfigSeparator + env + ConfigFileExtension
	return base, runtime
}

// LoadConfig decodes the base configuration file and then the runtime
// override into baseConfig. Missing files are skipped; values in the
// override replace values from the base.
func LoadConfig(baseConfig interface{}) error {
	base, runtime := ConfigFiles()
	for _, name := range []string{base, runtime} {
		if !fileExists(name) {
			slog.Debug("configuration file not found", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Info("loaded configuration file", "file", name)
	}
	return nil
}

// ResolvePath returns p unchanged when it is absolute, otherwise joined to
// the data directory.
func ResolvePath(dataDir string, p string) string {
	if p == "" || filepath.IsAbs(p) || dataDir == "" {
		return p
	}
	return filepath.Join(dataDir, p)
}

// ContentGenerator is the slice of the generative model the commands use.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error)
}

// GenerateTextResponse sends contents to the model and concatenates the text
// of every candidate part. A failed call is retried up to maxRetries times,
// each retry counted on retryCounter.
//
// Inputs:
//   - ctx: The context for the request, which controls cancellation and tracing.
//   - inputTokenCounter, outputTokenCounter: Token usage counters.
//   - retryCounter: Incremented once per retry.
//   - maxRetries: Extra attempts after the first failure.
//   - model: The generator to call.
//   - contents: The prompt.
//
// Outputs:
//   - string: The raw reply text, possibly empty.
//   - error: The last error once attempts are exhausted or ctx is done.
func GenerateTextResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	maxRetries int,
	model ContentGenerator,
	contents []*genai.Content) (string, error) {

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = model.GenerateContent(ctx, contents)
		if err == nil {
			break
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return "", err
		}
		slog.WarnContext(ctx, "generation failed, retrying", "attempt", attempt+1, "error", err)
		if retryCounter != nil {
			retryCounter.Add(ctx, 1)
		}
	}
	if resp == nil {
		return "", nil
	}

	if resp.UsageMetadata != nil {
		if inputTokenCounter != nil {
			inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if outputTokenCounter != nil {
			outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

// NewTextContent wraps a prompt as a single user turn.
func NewTextContent(in string) []*genai.Content {
	return genai.Text(in)
}
