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

package model

import (
	"fmt"
	"strings"
	"time"
)

// SearchSentinelPrefix marks a value that is a search query for the download
// tool rather than a playable URL.
const SearchSentinelPrefix = "ytsearch1:"

// SearchQuery is the free-text query used to find a song when no direct video
// URL is known.
func SearchQuery(songName string, artist string) string {
	return strings.Join(strings.Fields(fmt.Sprintf("%s %s official audio", artist, songName)), " ")
}

// SearchSentinel wraps SearchQuery in the prefix understood by the download
// tool. The enrichment resolver and the download manager both use it, so a
// sentinel stored with an analysis can be downloaded later unchanged.
func SearchSentinel(songName string, artist string) string {
	return SearchSentinelPrefix + SearchQuery(songName, artist)
}

// IsSearchSentinel reports whether s is a search sentinel.
func IsSearchSentinel(s string) bool {
	return strings.HasPrefix(s, SearchSentinelPrefix)
}

// MediaKind selects the downloaded file format.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ParseMediaKind maps a request value to a MediaKind. Anything other than
// "video" downloads audio.
func ParseMediaKind(s string) MediaKind {
	if strings.EqualFold(strings.TrimSpace(s), string(MediaVideo)) {
		return MediaVideo
	}
	return MediaAudio
}

// Extension is the file extension the download tool produces for the kind.
func (k MediaKind) Extension() string {
	if k == MediaVideo {
		return "mp4"
	}
	return "mp3"
}

// DownloadItem is one song in a download request.
type DownloadItem struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URL    string `json:"youtube_url"`
}

// Label is the name used for the item in session state and events.
func (i DownloadItem) Label() string {
	return fmt.Sprintf("%s - %s", i.Artist, i.Title)
}

// SessionStatus is the lifecycle state of a download session.
type SessionStatus string

const (
	SessionStarting    SessionStatus = "starting"
	SessionDownloading SessionStatus = "downloading"
	SessionCompleted   SessionStatus = "completed"
)

// DownloadSession is the live state of one playlist download.
type DownloadSession struct {
	ID           string        `json:"download_id"`
	PlaylistName string        `json:"playlist_name"`
	PlaylistPath string        `json:"playlist_path"`
	Kind         MediaKind     `json:"download_type"`
	Status       SessionStatus `json:"status"`
	Total        int           `json:"total"`
	Current      int           `json:"current"`
	CurrentSong  string        `json:"current_song,omitempty"`
	Completed    []string      `json:"completed"`
	Failed       []string      `json:"failed"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (s *DownloadSession) Clone() *DownloadSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Completed = append(make([]string, 0, len(s.Completed)), s.Completed...)
	out.Failed = append(make([]string, 0, len(s.Failed)), s.Failed...)
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

// IsDone reports the terminal state.
func (s *DownloadSession) IsDone() bool {
	return s.Status == SessionCompleted
}

// Event types emitted during a download session.
const (
	EventStarted      = "started"
	EventSongStart    = "song_start"
	EventSongProgress = "song_progress"
	EventSongComplete = "song_complete"
	EventSongError    = "song_error"
	EventComplete     = "complete"
)

// Item outcomes carried by song_complete events.
const (
	ItemSuccess = "success"
	ItemFailed  = "failed"
)

// Progress is one progress report from the download tool. Speed and ETA are
// passed through as the tool prints them.
type Progress struct {
	Percent float64 `json:"progress"`
	Speed   string  `json:"speed"`
	ETA     string  `json:"eta"`
}

// DownloadEvent is one entry of a session's event stream. Data holds the
// event-specific fields.
type DownloadEvent struct {
	Type       string                 `json:"type"`
	DownloadID string                 `json:"download_id"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Payload flattens the event into the object sent to stream subscribers.
func (e DownloadEvent) Payload() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Data)+2)
	for k, v := range e.Data {
		out[k] = v
	}
	out["type"] = e.Type
	out["download_id"] = e.DownloadID
	return out
}
