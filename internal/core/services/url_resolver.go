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

// Package services contains the business logic that sits between the HTTP
// layer, the analysis workflow and the data stores. This file implements the
// video URL resolver used during enrichment.
//
// Logic Flow:
// A song is looked up by scraping the public search results page for the
// first embedded video identifier. Every failure path (rate limiter, open
// circuit, transport error, non-200 status, no identifier in the page) falls
// back to a search sentinel that the download manager can resolve later.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

const (
	WatchURLPrefix = "https://www.youtube.com/watch?v="
	searchBodyCap  = 4 << 20
)

var videoIDPattern = regexp.MustCompile(`"videoId":"([\w-]{11})"`)

// YouTubeSearchResolver resolves (song, artist) pairs to watch URLs.
type YouTubeSearchResolver struct {
	HTTPClient *http.Client
	SearchURL  string
	UserAgent  string
	Timeout    time.Duration
	Limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[string]
}

// NewYouTubeSearchResolver builds a resolver from the enrichment settings. A
// nil client means http.DefaultClient.
func NewYouTubeSearchResolver(settings cloud.Enrichment, client *http.Client) *YouTubeSearchResolver {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if settings.RequestsPerSecond > 0 {
		limit = rate.Limit(settings.RequestsPerSecond)
	}
	burst := settings.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := uint32(settings.BreakerFailures)
	if failures == 0 {
		failures = 5
	}

	return &YouTubeSearchResolver{
		HTTPClient: client,
		SearchURL:  settings.SearchURL,
		UserAgent:  settings.UserAgent,
		Timeout:    time.Duration(settings.TimeoutSeconds) * time.Second,
		Limiter:    rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "youtube-search",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     time.Duration(settings.BreakerCooldownSeconds) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Resolve never fails: it returns a watch URL or a search sentinel.
func (r *YouTubeSearchResolver) Resolve(ctx context.Context, songName string, artist string) string {
	fallback := model.SearchSentinel(songName, artist)

	videoID, err := r.FirstVideoID(ctx, model.SearchQuery(songName, artist))
	if err != nil {
		slog.DebugContext(ctx, "video search failed, using search sentinel", "query", fallback, "error", err)
		return fallback
	}
	if videoID == "" {
		return fallback
	}
	return WatchURLPrefix + videoID
}

// FirstVideoID returns the first video identifier on the results page for
// query, or "" when the page has none. A resolver built without
// NewYouTubeSearchResolver has no breaker and searches directly.
func (r *YouTubeSearchResolver) FirstVideoID(ctx context.Context, query string) (string, error) {
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("search rate limit: %w", err)
		}
	}
	if r.breaker == nil {
		return r.search(ctx, query)
	}
	return r.breaker.Execute(func() (string, error) {
		return r.search(ctx, query)
	})
}

func (r *YouTubeSearchResolver) search(ctx context.Context, query string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	target, err := url.Parse(r.SearchURL)
	if err != nil {
		return "", fmt.Errorf("invalid search url: %w", err)
	}
	params := target.Query()
	params.Set("search_query", query)
	target.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, searchBodyCap))
	if err != nil {
		return "", err
	}
	match := videoIDPattern.FindSubmatch(body)
	if match == nil {
		return "", nil
	}
	return string(match[1]), nil
}

// IsBreakerOpen reports whether searches are currently short-circuited.
func (r *YouTubeSearchResolver) IsBreakerOpen() bool {
	return r.breaker != nil && r.breaker.State() == gobreaker.StateOpen
}

