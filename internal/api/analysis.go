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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

type songInput struct {
	Input string `json:"input" binding:"required"`
}

type batchInput struct {
	Songs []string `json:"songs" binding:"required"`
}

var endpointDescriptions = gin.H{
	"/analyze":                        "Analyze a single song (auto-saved to database)",
	"/more-recommendations":           "Get additional 6 recommendations for a song",
	"/batch":                          "Analyze multiple songs",
	"/history":                        "Get analysis history",
	"/history/{id}":                   "Get specific analysis by ID",
	"/search":                         "Search analyses by query",
	"/statistics":                     "Get usage statistics and insights",
	"/table":                          "Get all data in tabular format",
	"/table/parameters":               "Get parameters table with values & confidence scores",
	"/table/parameters/{analysis_id}": "Get parameters for specific analysis",
	"/download-playlist":              "Start downloading a playlist (POST)",
	"/download-progress/{id}":         "Stream download progress via SSE",
	"/download-status/{id}":           "Get current download status",
	"/download-archive/{id}":          "Upload a finished download to cloud storage (POST)",
	"/create-youtube-playlist":        "Create a YouTube playlist from analyzed songs (POST)",
	"/youtube-auth-status":            "Check YouTube API authentication status",
	"/youtube/auth":                   "Start YouTube authorization",
	"/examples":                       "Get example songs",
	"/health":                         "Health check",
}

// AnalysisRouter registers the service description, health and analysis
// routes.
func (h *Handler) AnalysisRouter(r gin.IRouter) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     h.serviceName(),
			"version":     Version,
			"description": "Music Analysis & Recommendation System with SQLite Storage",
			"endpoints":   endpointDescriptions,
			"features": gin.H{
				"persistent_storage": true,
				"database":           "SQLite",
				"auto_save":          true,
				"tabular_view":       true,
			},
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "healthy",
			"api_key_configured": h.APIKeyConfigured,
			"service":            h.serviceName(),
		})
	})

	r.GET("/examples", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"examples": model.GetExampleSongs()})
	})

	r.POST("/analyze", func(c *gin.Context) {
		var in songInput
		if !h.bindAnalysis(c, &in) {
			return
		}
		resp, err := h.Analysis.AnalyzeAndSave(c.Request.Context(), in.Input)
		if err != nil {
			abort(c, http.StatusInternalServerError, "Analysis failed: %v", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	r.POST("/more-recommendations", func(c *gin.Context) {
		var in songInput
		if !h.bindAnalysis(c, &in) {
			return
		}
		c.JSON(http.StatusOK, h.Analysis.MoreRecommendations(c.Request.Context(), in.Input))
	})

	r.POST("/batch", func(c *gin.Context) {
		var in batchInput
		if !h.bindAnalysis(c, &in) {
			return
		}
		result := h.Analysis.AnalyzeBatch(c.Request.Context(), in.Songs)
		c.JSON(http.StatusOK, gin.H{"success": true, "data": result, "count": len(in.Songs)})
	})
}

// bindAnalysis checks that analysis is available and decodes the body.
func (h *Handler) bindAnalysis(c *gin.Context, dest interface{}) bool {
	if h.Analysis == nil {
		abort(c, http.StatusInternalServerError, "GOOGLE_API_KEY environment variable not set")
		return false
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		abort(c, http.StatusUnprocessableEntity, "invalid request body: %v", err)
		return false
	}
	return true
}
