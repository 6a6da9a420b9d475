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
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/services"
)

type createPlaylistRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// YouTubeRouter registers the playlist publishing and OAuth routes.
func (h *Handler) YouTubeRouter(r gin.IRouter) {
	r.POST("/create-youtube-playlist", func(c *gin.Context) {
		var req createPlaylistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusUnprocessableEntity, "invalid request body: %v", err)
			return
		}
		if req.Source == "" {
			req.Source = "all"
		}
		if req.Source != "all" {
			abort(c, http.StatusBadRequest, "Unsupported source: %s. Use 'all' for now.", req.Source)
			return
		}
		if h.Playlists == nil {
			abort(c, http.StatusServiceUnavailable, "YouTube publishing is not configured")
			return
		}

		report, err := h.Playlists.PublishHistory(c.Request.Context(), req.Title, req.Description)
		switch {
		case errors.Is(err, services.ErrNoVideoFound):
			abort(c, http.StatusNotFound, "No YouTube URLs found in analyzed songs")
			return
		case errors.Is(err, cloud.ErrNotAuthenticated), errors.Is(err, fs.ErrNotExist):
			abort(c, http.StatusBadRequest, "%v", err)
			return
		case err != nil:
			abort(c, http.StatusInternalServerError, "Failed to create YouTube playlist: %v", err)
			return
		}
		slog.InfoContext(c.Request.Context(), "youtube playlist created",
			"url", report.PlaylistURL, "added", report.Videos.Added, "failed", report.Videos.Failed)
		c.JSON(http.StatusOK, report)
	})

	r.GET("/youtube-auth-status", func(c *gin.Context) {
		if h.Auth == nil {
			c.JSON(http.StatusOK, cloud.AuthStatus{Message: "YouTube integration is not configured"})
			return
		}
		c.JSON(http.StatusOK, h.Auth.Status())
	})

	yt := r.Group("/youtube")
	{
		yt.GET("/auth", func(c *gin.Context) {
			if h.Auth == nil {
				abort(c, http.StatusServiceUnavailable, "YouTube integration is not configured")
				return
			}
			state := uuid.NewString()
			url, err := h.Auth.AuthURL(state)
			if err != nil {
				abort(c, http.StatusBadRequest, "%v", err)
				return
			}
			h.oauthStates.Store(state, struct{}{})
			c.Redirect(http.StatusFound, url)
		})

		yt.GET("/callback", func(c *gin.Context) {
			if h.Auth == nil {
				abort(c, http.StatusServiceUnavailable, "YouTube integration is not configured")
				return
			}
			if msg := c.Query("error"); msg != "" {
				abort(c, http.StatusBadRequest, "Authorization denied: %s", msg)
				return
			}
			if _, ok := h.oauthStates.LoadAndDelete(c.Query("state")); !ok {
				abort(c, http.StatusBadRequest, "Unknown or expired authorization state")
				return
			}
			code := c.Query("code")
			if code == "" {
				abort(c, http.StatusBadRequest, "Missing authorization code")
				return
			}
			if err := h.Auth.Exchange(c.Request.Context(), code); err != nil {
				abort(c, http.StatusBadRequest, "%v", err)
				return
			}
			c.JSON(http.StatusOK, h.Auth.Status())
		})
	}
}
