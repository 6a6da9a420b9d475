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

// This file publishes analyzed songs as a playlist on YouTube.

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

const (
	PlaylistURLPrefix   = "https://www.youtube.com/playlist?list="
	playlistHistorySize = 1000
)

// ErrNoVideoFound means there was nothing to add to a playlist.
var ErrNoVideoFound = errors.New("no video urls found in analyzed songs")

// PlaylistAPI is the remote playlist service.
type PlaylistAPI interface {
	CreatePlaylist(ctx context.Context, title string, description string, privacy string) (*PlaylistInfo, error)
	AddVideo(ctx context.Context, playlistID string, videoID string) (*VideoResult, error)
}

// AnalysisLister is the part of the history store the publisher reads.
type AnalysisLister interface {
	GetAllAnalyses(ctx context.Context, limit int, successOnly bool) ([]*model.StoredAnalysis, error)
}

type PlaylistInfo struct {
	PlaylistID  string `json:"playlist_id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Privacy     string `json:"privacy"`
}

type VideoResult struct {
	Success    bool   `json:"success"`
	VideoID    string `json:"video_id,omitempty"`
	VideoTitle string `json:"video_title,omitempty"`
	Position   int64  `json:"position"`
	VideoURL   string `json:"video_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

type VideoSummary struct {
	Total   int           `json:"total"`
	Added   int           `json:"added"`
	Failed  int           `json:"failed"`
	Details []VideoResult `json:"details"`
}

// PlaylistReport is the outcome of a publish run.
type PlaylistReport struct {
	Success     bool          `json:"success"`
	Playlist    *PlaylistInfo `json:"playlist"`
	PlaylistID  string        `json:"playlist_id"`
	PlaylistURL string        `json:"playlist_url"`
	Videos      VideoSummary  `json:"videos"`
}

// YouTubePlaylistClient implements PlaylistAPI on the YouTube Data API.
type YouTubePlaylistClient struct {
	Service *youtube.Service
}

func (c *YouTubePlaylistClient) CreatePlaylist(ctx context.Context, title string, description string, privacy string) (*PlaylistInfo, error) {
	playlist := &youtube.Playlist{
		Snippet: &youtube.PlaylistSnippet{Title: title, Description: description},
		Status:  &youtube.PlaylistStatus{PrivacyStatus: privacy},
	}
	resp, err := c.Service.Playlists.Insert([]string{"snippet", "status"}, playlist).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube playlist insert failed: %w", err)
	}

	out := &PlaylistInfo{PlaylistID: resp.Id, URL: PlaylistURLPrefix + resp.Id, Title: title, Description: description, Privacy: privacy}
	if resp.Snippet != nil {
		out.Title, out.Description = resp.Snippet.Title, resp.Snippet.Description
	}
	if resp.Status != nil {
		out.Privacy = resp.Status.PrivacyStatus
	}
	return out, nil
}

func (c *YouTubePlaylistClient) AddVideo(ctx context.Context, playlistID string, videoID string) (*VideoResult, error) {
	item := &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &youtube.ResourceId{Kind: "youtube#video", VideoId: videoID},
		},
	}
	resp, err := c.Service.PlaylistItems.Insert([]string{"snippet"}, item).Context(ctx).Do()
	if err != nil {
		return nil, errors.New(describeYouTubeError(err))
	}
	out := &VideoResult{Success: true, VideoID: videoID}
	if resp.Snippet != nil {
		out.VideoTitle, out.Position = resp.Snippet.Title, resp.Snippet.Position
	}
	return out, nil
}

// describeYouTubeError maps the common API failures to readable messages.
func describeYouTubeError(err error) string {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			if item.Reason == "videoNotFound" {
				return "Video not found or is private"
			}
			if strings.Contains(strings.ToLower(item.Reason), "quota") {
				return "YouTube API quota exceeded"
			}
		}
		if apiErr.Code == http.StatusForbidden {
			return "Access forbidden (video might be restricted)"
		}
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "videoNotFound"):
		return "Video not found or is private"
	case strings.Contains(lower, "quota"):
		return "YouTube API quota exceeded"
	case strings.Contains(lower, "forbidden"):
		return "Access forbidden (video might be restricted)"
	}
	return msg
}

// ExtractVideoID pulls the video id out of watch, short, embed and /v/ URLs.
func ExtractVideoID(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if strings.Contains(raw, "youtu.be") {
		segments := strings.Split(raw, "/")
		id := strings.SplitN(segments[len(segments)-1], "?", 2)[0]
		return id, id != ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := parsed.Hostname()
	if host != "www.youtube.com" && host != "youtube.com" {
		return "", false
	}
	switch {
	case parsed.Path == "/watch":
		id := parsed.Query().Get("v")
		return id, id != ""
	case strings.HasPrefix(parsed.Path, "/embed/"):
		id := strings.TrimPrefix(parsed.Path, "/embed/")
		return id, id != ""
	case strings.HasPrefix(parsed.Path, "/v/"):
		id := strings.TrimPrefix(parsed.Path, "/v/")
		return id, id != ""
	}
	return "", false
}

// PlaylistPublisher turns saved analyses into a remote playlist.
type PlaylistPublisher struct {
	History        AnalysisLister
	Connect        func(ctx context.Context) (PlaylistAPI, error)
	DefaultPrivacy string
}

// CollectVideoURLs returns the video URLs of all successful saved analyses,
// newest analysis first, input song before its recommendations, without
// duplicates.
func (p *PlaylistPublisher) CollectVideoURLs(ctx context.Context) ([]string, error) {
	analyses, err := p.History.GetAllAnalyses(ctx, playlistHistorySize, true)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, a := range analyses {
		for _, u := range a.VideoURLs() {
			if seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out, nil
}

// PublishHistory creates a playlist from every saved analysis.
func (p *PlaylistPublisher) PublishHistory(ctx context.Context, title string, description string) (*PlaylistReport, error) {
	urls, err := p.CollectVideoURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(urls) == 0 {
		return nil, ErrNoVideoFound
	}
	if description == "" {
		description = fmt.Sprintf("Generated by TuneTrace.AI - %d songs", len(urls))
	}
	return p.PublishFromURLs(ctx, title, description, urls)
}

// PublishFromURLs creates the playlist and adds each video in order. A video
// that cannot be added is reported and skipped.
//
// Inputs:
//   - ctx: The request context.
//   - title, description: Playlist metadata.
//   - urls: Video URLs. Entries without an extractable id count as failures.
//
// Outputs:
//   - *PlaylistReport: Per-video details and totals.
//   - error: Connecting to the service or creating the playlist failed.
func (p *PlaylistPublisher) PublishFromURLs(ctx context.Context, title string, description string, urls []string) (*PlaylistReport, error) {
	api, err := p.Connect(ctx)
	if err != nil {
		return nil, err
	}
	privacy := p.DefaultPrivacy
	if privacy == "" {
		privacy = "public"
	}

	playlist, err := api.CreatePlaylist(ctx, title, description, privacy)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "created playlist", "playlist_id", playlist.PlaylistID, "videos", len(urls))

	report := &PlaylistReport{
		Success:     true,
		Playlist:    playlist,
		PlaylistID:  playlist.PlaylistID,
		PlaylistURL: playlist.URL,
		Videos:      VideoSummary{Total: len(urls), Details: make([]VideoResult, 0, len(urls))},
	}
	for _, raw := range urls {
		result := p.addOne(ctx, api, playlist.PlaylistID, strings.TrimSpace(raw))
		if result.Success {
			report.Videos.Added++
		} else {
			report.Videos.Failed++
		}
		report.Videos.Details = append(report.Videos.Details, result)
	}
	return report, nil
}

func (p *PlaylistPublisher) addOne(ctx context.Context, api PlaylistAPI, playlistID string, raw string) VideoResult {
	if raw == "" {
		return VideoResult{Error: "Empty URL"}
	}
	videoID, ok := ExtractVideoID(raw)
	if !ok {
		return VideoResult{Error: fmt.Sprintf("Could not extract video ID from URL: %s", raw), VideoURL: raw}
	}
	added, err := api.AddVideo(ctx, playlistID, videoID)
	if err != nil {
		return VideoResult{Error: err.Error(), VideoID: videoID, VideoURL: raw}
	}
	return *added
}
