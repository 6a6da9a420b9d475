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
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HistoryRouter registers the saved analysis routes.
func (h *Handler) HistoryRouter(r gin.IRouter) {
	history := r.Group("/history")
	{
		history.GET("", func(c *gin.Context) {
			limit, err := boundedInt(c, "limit", 50, 1, 100)
			if err != nil {
				abort(c, http.StatusUnprocessableEntity, "%v", err)
				return
			}
			offset, err := boundedInt(c, "offset", 0, 0, int(^uint(0)>>1))
			if err != nil {
				abort(c, http.StatusUnprocessableEntity, "%v", err)
				return
			}
			successOnly := c.DefaultQuery("success_only", "true") != "false"

			entries, err := h.History.GetHistory(c.Request.Context(), limit, offset, successOnly)
			if err != nil {
				abort(c, http.StatusInternalServerError, "%v", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"count":   len(entries),
				"limit":   limit,
				"offset":  offset,
				"history": entries,
			})
		})

		history.GET("/:id", func(c *gin.Context) {
			id, ok := pathID(c, "id")
			if !ok {
				return
			}
			analysis, err := h.History.GetAnalysis(c.Request.Context(), id)
			if isNotFound(err) {
				abort(c, http.StatusNotFound, "Analysis %d not found", id)
				return
			}
			if err != nil {
				abort(c, http.StatusInternalServerError, "%v", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "analysis": analysis})
		})

		history.DELETE("/:id", func(c *gin.Context) {
			id, ok := pathID(c, "id")
			if !ok {
				return
			}
			deleted, err := h.History.DeleteAnalysis(c.Request.Context(), id)
			if err != nil {
				abort(c, http.StatusInternalServerError, "%v", err)
				return
			}
			if !deleted {
				abort(c, http.StatusNotFound, "Analysis %d not found", id)
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("Analysis %d deleted successfully", id)})
		})
	}

	r.GET("/search", func(c *gin.Context) {
		q := c.Query("q")
		if q == "" {
			abort(c, http.StatusUnprocessableEntity, "q is required")
			return
		}
		limit, err := boundedInt(c, "limit", 20, 1, 100)
		if err != nil {
			abort(c, http.StatusUnprocessableEntity, "%v", err)
			return
		}
		results, err := h.History.SearchAnalyses(c.Request.Context(), q, limit)
		if err != nil {
			abort(c, http.StatusInternalServerError, "%v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "query": q, "count": len(results), "results": results})
	})

	r.POST("/clear", func(c *gin.Context) {
		if c.Query("confirm") != "DELETE_ALL" {
			abort(c, http.StatusBadRequest, "Must provide confirm='DELETE_ALL' to clear database")
			return
		}
		n, err := h.History.ClearAll(c.Request.Context())
		if err != nil {
			abort(c, http.StatusInternalServerError, "%v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Database cleared successfully", "deleted_analyses": n})
	})
}
