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

// This file centralizes the SQL used by the history store. Placeholders are
// SQLite positional parameters.

package services

const (
	qryCreateAnalyses = `CREATE TABLE IF NOT EXISTS analyses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		input_text TEXT NOT NULL,
		song_name TEXT,
		artist TEXT,
		youtube_url TEXT,
		analysis_data TEXT NOT NULL,
		recommendations TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		success BOOLEAN DEFAULT 1,
		error_message TEXT
	)`
	qryCreateParameters = `CREATE TABLE IF NOT EXISTS parameters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id INTEGER NOT NULL,
		parameter_name TEXT NOT NULL,
		parameter_value TEXT,
		confidence_score REAL,
		FOREIGN KEY (analysis_id) REFERENCES analyses(id)
	)`
	qryCreateRecommendations = `CREATE TABLE IF NOT EXISTS recommendation_songs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id INTEGER NOT NULL,
		song_name TEXT NOT NULL,
		artist TEXT NOT NULL,
		rationale TEXT NOT NULL,
		youtube_url TEXT,
		is_wildcard BOOLEAN DEFAULT 0,
		position INTEGER NOT NULL,
		FOREIGN KEY (analysis_id) REFERENCES analyses(id)
	)`
	qryIndexCreated    = `CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at DESC)`
	qryIndexSong       = `CREATE INDEX IF NOT EXISTS idx_analyses_song ON analyses(song_name, artist)`
	qryIndexParameters = `CREATE INDEX IF NOT EXISTS idx_parameters_name ON parameters(parameter_name)`

	qryInsertAnalysis = `INSERT INTO analyses
		(input_text, song_name, artist, youtube_url, analysis_data, recommendations, created_at, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	qryInsertParameter = `INSERT INTO parameters
		(analysis_id, parameter_name, parameter_value, confidence_score)
		VALUES (?, ?, ?, ?)`
	qryInsertRecommendation = `INSERT INTO recommendation_songs
		(analysis_id, song_name, artist, rationale, youtube_url, is_wildcard, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	qryAnalysisColumns = `id, input_text, song_name, artist, youtube_url, analysis_data, recommendations, created_at, success, error_message`
	qryEntryColumns    = `id, input_text, song_name, artist, created_at, success, error_message`

	// qryHistory takes an optional WHERE clause (%s), then limit and offset.
	qryHistory = `SELECT ` + qryEntryColumns + ` FROM analyses %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	qrySearch  = `SELECT ` + qryEntryColumns + ` FROM analyses
		WHERE (song_name LIKE ? OR artist LIKE ? OR input_text LIKE ?) AND success = 1
		ORDER BY created_at DESC, id DESC LIMIT ?`
	qryAnalysisByID = `SELECT ` + qryAnalysisColumns + ` FROM analyses WHERE id = ?`
	qryAllAnalyses  = `SELECT ` + qryAnalysisColumns + ` FROM analyses %s ORDER BY created_at DESC, id DESC LIMIT ?`

	qryParameterColumns = `p.id, p.analysis_id, a.input_text, a.song_name, a.artist,
		p.parameter_name, p.parameter_value, p.confidence_score, a.created_at`
	qryParametersForAnalysis = `SELECT ` + qryParameterColumns + `
		FROM parameters p JOIN analyses a ON p.analysis_id = a.id
		WHERE p.analysis_id = ? ORDER BY p.id ASC`
	qryParameters = `SELECT ` + qryParameterColumns + `
		FROM parameters p JOIN analyses a ON p.analysis_id = a.id
		ORDER BY a.created_at DESC, a.id DESC, p.id ASC LIMIT ?`

	qryTabular = `SELECT a.id, a.input_text, a.song_name, a.artist, a.created_at, a.success,
		p.parameter_name, p.parameter_value, p.confidence_score
		FROM analyses a LEFT JOIN parameters p ON a.id = p.analysis_id
		ORDER BY a.created_at DESC, a.id DESC, p.id ASC`

	qryCountAnalyses   = `SELECT COUNT(*) FROM analyses`
	qryCountSuccessful = `SELECT COUNT(*) FROM analyses WHERE success = 1`
	qryCountFailed     = `SELECT COUNT(*) FROM analyses WHERE success = 0`
	qryCountParameters = `SELECT COUNT(*) FROM parameters`
	qryTopArtists      = `SELECT artist, COUNT(*) AS count FROM analyses
		WHERE success = 1 AND artist IS NOT NULL
		GROUP BY artist ORDER BY count DESC, artist ASC LIMIT 10`
	qryTopRecommendations = `SELECT song_name, artist, COUNT(*) AS count FROM recommendation_songs
		GROUP BY song_name, artist ORDER BY count DESC, song_name ASC LIMIT 10`
	qryRecentActivity = `SELECT DATE(created_at) AS day, COUNT(*) AS count FROM analyses
		WHERE created_at >= ? GROUP BY day ORDER BY day DESC`

	qryDeleteParameters      = `DELETE FROM parameters WHERE analysis_id = ?`
	qryDeleteRecommendations = `DELETE FROM recommendation_songs WHERE analysis_id = ?`
	qryDeleteAnalysis        = `DELETE FROM analyses WHERE id = ?`
	qryClearParameters       = `DELETE FROM parameters`
	qryClearRecommendations  = `DELETE FROM recommendation_songs`
	qryClearAnalyses         = `DELETE FROM analyses`
)

// schemaStatements are idempotent and run every time the store is opened.
var schemaStatements = []string{
	qryCreateAnalyses,
	qryCreateParameters,
	qryCreateRecommendations,
	qryIndexCreated,
	qryIndexSong,
	qryIndexParameters,
}
