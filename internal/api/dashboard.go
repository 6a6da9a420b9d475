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
)

var parameterColumns = []string{
	"id",
	"analysis_id",
	"input_text",
	"song_name",
	"artist",
	"parameter_name",
	"parameter_value",
	"confidence_score",
	"created_at",
}

// Dashboard registers the statistics and tabular export routes.
//
// Inputs:
//   - r: The router the routes are added to.
//   - store: The history store the routes read.
func Dashboard(r gin.IRouter, store HistoryStore) {
	r.GET("/statistics", func(c *gin.Context) {
		stats, err := store.GetStatistics(c.Request.Context())
		if err != nil {
			abort(c, http.StatusInternalServerError, "%v", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "statistics": stats})
	})

	table := r.Group("/table")
	{
		table.GET("", func(c *gin.Context) {
			data, err := store.GetAllDataTabular(c.Request.Context())
			if err != nil {
				abort(c, http.StatusInternalServerError, "%v", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success":     true,
				"description": "Complete tabular view of all analyses",
				"total_rows":  data.TotalRows,
				"data":        data.Data,
				"columns":     data.Columns,
			})
		})

		table.GET("/parameters", func(c *gin.Context) {
			limit, err := boundedInt(c, "limit", 100, 1, 1000)
			if err != nil {
				abort(c, http.StatusUnprocessableEntity, "%v", err)
				return
			}
			rows, err := store.GetParametersTable(c.Request.Context(), 0, limit)
			if err != nil {
				abort(c, http.StatusInternalServerError, "%v", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"count":   len(rows),
				"limit":   limit,
				"data":    rows,
				"columns": parameterColumns,
			})
		})

		table.GET("/parameters/:id", func(c *gin.Context) {
			id, ok := pathID(c, "id")
			if !ok {
				return
			}
			rows, err := store.GetParametersTable(c.Request.Context(), id, 0)
			if err != nil {
				abort(c, http.StatusInternalServerError, "%v", err)
				return
			}
			if len(rows) == 0 {
				abort(c, http.StatusNotFound, "No parameters found for analysis %d", id)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"success":     true,
				"analysis_id": id,
				"count":       len(rows),
				"data":        rows,
				"columns":     parameterColumns,
			})
		})
	}
}
