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

// Package test provides helpers and sample data shared by the test suites:
// the test configuration, Pub/Sub message payloads and model replies.
package test

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// StateManager caches the configuration so the TOML files are read once per
// test binary.
type StateManager struct {
	once   sync.Once
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is set.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestAnalysisRequestMessageText is the body of an analysis request as it
// arrives on the analysis requests subscription.
func GetTestAnalysisRequestMessageText() string {
	return `{
  "input": "Shook Ones, Pt. II by Mobb Deep",
  "requested_by": "integration-test"
}`
}

// GetTestPlainRequestMessageText is a request published as plain text.
func GetTestPlainRequestMessageText() string {
	return "Teardrop - Massive Attack"
}

// GetTestModelReply returns the example analysis the way the model tends to
// answer: a short preamble and the JSON inside a fenced block.
func GetTestModelReply(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(model.GetExampleAnalysis())
	if err != nil {
		t.Fatalf("failed to encode example analysis: %v", err)
	}
	return "Here is the analysis you asked for.\n```json\n" + string(b) + "\n```"
}

// RepoRoot walks up from the working directory to the directory holding
// go.mod.
func RepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above the working directory")
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at the repository's configs
// directory with the "test" runtime, so .env.test.toml overrides .env.toml.
func SetupOS() error {
	root, err := RepoRoot()
	if err != nil {
		return err
	}
	if err := os.Setenv(cloud.EnvConfigFilePrefix, filepath.Join(root, "configs")); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig returns the cached test configuration. Callers that change
// fields should copy it first.
func GetConfig() *cloud.Config {
	state.once.Do(func() {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	})
	return state.config
}
