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

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

type downloadRequest struct {
	PlaylistName string              `json:"playlist_name" binding:"required"`
	Songs        []map[string]string `json:"songs" binding:"required"`
	DownloadType string              `json:"download_type"`
}

// DownloadRouter registers the playlist download routes.
func (h *Handler) DownloadRouter(r gin.IRouter) {
	r.POST("/download-playlist", func(c *gin.Context) {
		var req downloadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusUnprocessableEntity, "invalid request body: %v", err)
			return
		}
		items, err := downloadItems(req.Songs)
		if err != nil {
			abort(c, http.StatusBadRequest, "%v", err)
			return
		}

		task, err := h.Downloads.Start("", req.PlaylistName, items, model.ParseMediaKind(req.DownloadType), nil)
		if err != nil {
			abort(c, http.StatusInternalServerError, "Failed to start download: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"download_id": task.ID,
			"message":     "Download started",
			"total_songs": len(items),
		})
	})

	r.GET("/download-status/:id", func(c *gin.Context) {
		status, ok := h.Downloads.GetStatus(c.Param("id"))
		if !ok {
			abort(c, http.StatusNotFound, "Download not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
	})

	r.GET("/download-progress/:id", h.streamProgress)

	r.POST("/download-archive/:id", func(c *gin.Context) {
		id := c.Param("id")
		status, ok := h.Downloads.GetStatus(id)
		if !ok {
			abort(c, http.StatusNotFound, "Download not found")
			return
		}
		if !status.IsDone() {
			abort(c, http.StatusConflict, "Download %s is still in progress", id)
			return
		}
		if h.Archiver == nil {
			abort(c, http.StatusServiceUnavailable, "Archive storage is not configured")
			return
		}
		files, err := h.Archiver.Archive(c.Request.Context(), status.PlaylistName, status.PlaylistPath, status.Kind.Extension())
		if err != nil {
			abort(c, http.StatusInternalServerError, "Failed to archive download: %v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "download_id": id, "count": len(files), "files": files})
	})
}

// downloadItems checks that every song carries title, artist and a non-empty
// youtube_url.
func downloadItems(songs []map[string]string) ([]model.DownloadItem, error) {
	items := make([]model.DownloadItem, 0, len(songs))
	for _, song := range songs {
		title, hasTitle := song["title"]
		artist, hasArtist := song["artist"]
		url, hasURL := song["youtube_url"]
		if !hasTitle || !hasArtist || !hasURL {
			return nil, errors.New("Each song must have 'title', 'artist', and 'youtube_url' fields")
		}
		if url == "" {
			return nil, fmt.Errorf("Song '%s' is missing YouTube URL", title)
		}
		items = append(items, model.DownloadItem{Title: title, Artist: artist, URL: url})
	}
	return items, nil
}

// streamProgress writes a server-sent event stream for one session: a
// "connected" message, then status snapshots whenever the state changes and
// the session events as they happen, then a final "complete" message.
func (h *Handler) streamProgress(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	send := func(payload interface{}) bool {
		b, err := json.Marshal(payload)
		if err != nil {
			slog.ErrorContext(ctx, "failed to encode progress message", "download_id", id, "error", err)
			return false
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", b); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	var events <-chan model.DownloadEvent
	if h.Events != nil {
		ch, unsubscribe := h.Events.Subscribe(id)
		defer unsubscribe()
		events = ch
	}

	wait := 500 * time.Millisecond
	if p := h.pollInterval(); p < wait {
		wait = p
	}
	_, ok := h.Downloads.GetStatus(id)
	deadline := time.Now().Add(h.progressWait())
	for !ok && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		_, ok = h.Downloads.GetStatus(id)
	}
	if !ok {
		send(gin.H{"type": "error", "message": "Download not found"})
		return
	}
	if !send(gin.H{"type": "connected", "download_id": id}) {
		return
	}

	var last []byte
	// snapshot sends the status if it changed and reports whether the stream
	// is over.
	snapshot := func() bool {
		current, ok := h.Downloads.GetStatus(id)
		if !ok {
			send(gin.H{"type": "error", "message": "Download lost"})
			return true
		}
		b, _ := json.Marshal(current)
		if !bytes.Equal(b, last) {
			last = b
			if !send(current) {
				return true
			}
		}
		if current.IsDone() {
			send(gin.H{"type": "complete", "data": current})
			return true
		}
		return false
	}

	if snapshot() {
		return
	}
	ticker := time.NewTicker(h.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e, open := <-events:
			if !open {
				events = nil
				continue
			}
			if e.Type == model.EventComplete {
				snapshot()
				return
			}
			if !send(e.Payload()) {
				return
			}
		case <-ticker.C:
			if snapshot() {
				return
			}
		}
	}
}
