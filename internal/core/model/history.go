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

import "time"

// StoredAnalysis is one row of the analysis history with its JSON columns
// decoded.
type StoredAnalysis struct {
	ID              int64                    `json:"id"`
	InputText       string                   `json:"input_text"`
	SongName        string                   `json:"song_name"`
	Artist          string                   `json:"artist"`
	YouTubeURL      string                   `json:"youtube_url"`
	Parameters      interface{}              `json:"analysis_data"`
	Recommendations []map[string]interface{} `json:"recommendations"`
	CreatedAt       time.Time                `json:"created_at"`
	Success         bool                     `json:"success"`
	ErrorMessage    string                   `json:"error_message,omitempty"`
}

// VideoURLs lists the input song URL followed by the recommendation URLs,
// skipping blanks.
func (s *StoredAnalysis) VideoURLs() []string {
	out := make([]string, 0, len(s.Recommendations)+1)
	if s.YouTubeURL != "" {
		out = append(out, s.YouTubeURL)
	}
	for _, rec := range s.Recommendations {
		if url := StringField(rec, KeyYouTubeURL); url != "" {
			out = append(out, url)
		}
	}
	return out
}

// HistoryEntry is the summary row returned by history listings and search.
type HistoryEntry struct {
	ID           int64     `json:"id"`
	InputText    string    `json:"input_text"`
	SongName     string    `json:"song_name"`
	Artist       string    `json:"artist"`
	CreatedAt    time.Time `json:"created_at"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ParameterRow is one parameter judgement joined with its analysis.
type ParameterRow struct {
	ID              int64       `json:"id"`
	AnalysisID      int64       `json:"analysis_id"`
	InputText       string      `json:"input_text"`
	SongName        string      `json:"song_name"`
	Artist          string      `json:"artist"`
	ParameterName   string      `json:"parameter_name"`
	ParameterValue  interface{} `json:"parameter_value"`
	ConfidenceScore *float64    `json:"confidence_score"`
	CreatedAt       time.Time   `json:"created_at"`
}

// TabularRow is one analysis/parameter pair of the flat export. Analyses
// without parameters appear once with empty parameter fields.
type TabularRow struct {
	AnalysisID      int64       `json:"analysis_id"`
	InputText       string      `json:"input_text"`
	SongName        string      `json:"song_name"`
	Artist          string      `json:"artist"`
	CreatedAt       time.Time   `json:"created_at"`
	Success         bool        `json:"success"`
	ParameterName   *string     `json:"parameter_name"`
	ParameterValue  interface{} `json:"parameter_value"`
	ConfidenceScore *float64    `json:"confidence_score"`
}

// TabularColumns is the column order of TabularRow.
var TabularColumns = []string{
	"analysis_id",
	"input_text",
	"song_name",
	"artist",
	"created_at",
	"success",
	"parameter_name",
	"parameter_value",
	"confidence_score",
}

// TabularData is the full flat export.
type TabularData struct {
	TotalRows int          `json:"total_rows"`
	Data      []TabularRow `json:"data"`
	Columns   []string     `json:"columns"`
}

type ArtistCount struct {
	Artist string `json:"artist"`
	Count  int    `json:"count"`
}

type RecommendationCount struct {
	SongName string `json:"song_name"`
	Artist   string `json:"artist"`
	Count    int    `json:"count"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Statistics summarises the history store.
type Statistics struct {
	TotalAnalyses      int                   `json:"total_analyses"`
	SuccessfulAnalyses int                   `json:"successful_analyses"`
	FailedAnalyses     int                   `json:"failed_analyses"`
	TotalParameters    int                   `json:"total_parameters"`
	SuccessRate        float64               `json:"success_rate"`
	TopArtists         []ArtistCount         `json:"top_artists"`
	TopRecommendations []RecommendationCount `json:"top_recommendations"`
	RecentActivity     []DailyCount          `json:"recent_activity"`
}

// ParameterExportRow is the analytics shape of one parameter judgement.
type ParameterExportRow struct {
	AnalysisID      int64     `bigquery:"analysis_id"`
	SongName        string    `bigquery:"song_name"`
	Artist          string    `bigquery:"artist"`
	ParameterName   string    `bigquery:"parameter_name"`
	ParameterValue  string    `bigquery:"parameter_value"`
	ConfidenceScore float64   `bigquery:"confidence_score"`
	CreatedAt       time.Time `bigquery:"created_at"`
}
