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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-tune-trace/internal/api"
	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func localConfig(t *testing.T) *cloud.Config {
	t.Helper()
	state = &StateManager{}
	config := cloud.NewConfig()
	config.Application.DataDir = filepath.Join(t.TempDir(), "data")
	return config
}

func health(t *testing.T, handler *api.Handler) map[string]interface{} {
	t.Helper()
	w := httptest.NewRecorder()
	api.NewRouter(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestInitStateWithoutCredentials(t *testing.T) {
	config := localConfig(t)

	handler, err := InitState(context.Background(), config, "")
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, CloseState(context.Background())) })

	assert.Nil(t, handler.Analysis)
	assert.Nil(t, handler.Archiver)
	assert.NotNil(t, handler.Downloads)
	assert.NotNil(t, handler.Playlists)
	assert.FileExists(t, filepath.Join(config.Application.DataDir, config.Database.Path))

	body := health(t, handler)
	assert.Equal(t, false, body["api_key_configured"])
	assert.Equal(t, "TuneTrace.AI", body["service"])
}

func TestInitStateWithAPIKey(t *testing.T) {
	config := localConfig(t)

	handler, err := InitState(context.Background(), config, "test-api-key")
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, CloseState(context.Background())) })

	assert.NotNil(t, handler.Analysis)
	assert.Equal(t, true, health(t, handler)["api_key_configured"])
}

func TestInitStateUnknownAgentModel(t *testing.T) {
	config := localConfig(t)
	config.Analysis.AgentModel = "missing"

	_, err := InitState(context.Background(), config, "test-api-key")
	assert.Error(t, err)
	assert.NoError(t, CloseState(context.Background()))
}

func TestSetupOSKeepsExistingEnvironment(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, "")
	t.Setenv(cloud.EnvConfigRuntime, "staging")

	require.NoError(t, SetupOS())
	assert.Equal(t, "configs", os.Getenv(cloud.EnvConfigFilePrefix))
	assert.Equal(t, "staging", os.Getenv(cloud.EnvConfigRuntime))
}
