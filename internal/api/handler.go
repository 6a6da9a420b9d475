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

// Package api exposes the analysis, history, download and playlist services
// over HTTP.
//
// Logic Flow:
// NewRouter builds a gin engine with tracing and CORS middleware and calls
// RegisterRoutes, which mounts one route group per concern. Handlers decode
// the request, call a service and write JSON. Failures are written as
// {"detail": "..."} with the matching status code.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/services"
)

const (
	Version             = "2.0.0"
	defaultProgressWait = 30 * time.Second
	defaultPollInterval = time.Second
)

// Analyzer is implemented by services.AnalysisService.
type Analyzer interface {
	AnalyzeAndSave(ctx context.Context, input string) (*services.AnalyzeResponse, error)
	MoreRecommendations(ctx context.Context, input string) *services.AnalyzeResponse
	AnalyzeBatch(ctx context.Context, songs []string) *model.BatchResult
}

// HistoryStore is implemented by services.HistoryService.
type HistoryStore interface {
	GetAnalysis(ctx context.Context, id int64) (*model.StoredAnalysis, error)
	GetHistory(ctx context.Context, limit int, offset int, successOnly bool) ([]model.HistoryEntry, error)
	SearchAnalyses(ctx context.Context, q string, limit int) ([]model.HistoryEntry, error)
	GetParametersTable(ctx context.Context, analysisID int64, limit int) ([]model.ParameterRow, error)
	GetAllDataTabular(ctx context.Context) (*model.TabularData, error)
	GetStatistics(ctx context.Context) (*model.Statistics, error)
	DeleteAnalysis(ctx context.Context, id int64) (bool, error)
	ClearAll(ctx context.Context) (int, error)
}

// Archiver is implemented by cloud.PlaylistArchiver.
type Archiver interface {
	Archive(ctx context.Context, playlistName string, dir string, ext string) ([]cloud.ArchivedFile, error)
}

// Authenticator is implemented by cloud.YouTubeAuth.
type Authenticator interface {
	AuthURL(state string) (string, error)
	Exchange(ctx context.Context, code string) error
	Status() cloud.AuthStatus
}

// Handler holds the services behind the routes. Analysis, Archiver, Auth
// and Playlists may be nil; their routes then answer with an error.
type Handler struct {
	ServiceName      string
	APIKeyConfigured bool

	Analysis  Analyzer
	History   HistoryStore
	Downloads *services.DownloadManager
	Events    *services.EventHub
	Archiver  Archiver
	Playlists *services.PlaylistPublisher
	Auth      Authenticator

	// ProgressWait bounds how long the progress stream waits for an unknown
	// session to appear. PollInterval is the status snapshot period.
	ProgressWait time.Duration
	PollInterval time.Duration

	oauthStates sync.Map
}

// NewRouter returns a gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware(h.serviceName()))
	r.Use(cors.Default())
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts every route on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	h.AnalysisRouter(r)
	h.HistoryRouter(r)
	Dashboard(r, h.History)
	h.DownloadRouter(r)
	h.YouTubeRouter(r)
}

func (h *Handler) serviceName() string {
	if h.ServiceName == "" {
		return "TuneTrace.AI"
	}
	return h.ServiceName
}

func (h *Handler) progressWait() time.Duration {
	if h.ProgressWait <= 0 {
		return defaultProgressWait
	}
	return h.ProgressWait
}

func (h *Handler) pollInterval() time.Duration {
	if h.PollInterval <= 0 {
		return defaultPollInterval
	}
	return h.PollInterval
}

func abort(c *gin.Context, status int, format string, args ...interface{}) {
	c.AbortWithStatusJSON(status, gin.H{"detail": fmt.Sprintf(format, args...)})
}

// boundedInt reads an integer query parameter, falling back to def when it is
// absent and rejecting values outside [lo, hi].
func boundedInt(c *gin.Context, name string, def int, lo int, hi int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		abort(c, http.StatusUnprocessableEntity, "%s must be an integer", name)
		return 0, false
	}
	return id, true
}

func isNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
