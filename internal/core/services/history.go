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

// This file implements the analysis history store on SQLite.

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// ErrNotFound is returned when a history record does not exist.
var ErrNotFound = errors.New("not found")

const (
	timestampLayout = "2006-01-02 15:04:05.000"
	unknownValue    = "Unknown"
	recentDays      = 7
)

// HistoryService persists analysis results and answers history queries.
type HistoryService struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistoryService opens (creating if needed) the SQLite database at path and
// applies the schema.
//
// Inputs:
//   - path: The database file.
//
// Outputs:
//   - *HistoryService: The open store. Call Close when done.
//   - error: The database could not be opened or migrated.
func NewHistoryService(path string) (*HistoryService, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection serialises access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return &HistoryService{db: db, now: time.Now}, nil
}

func (h *HistoryService) Close() error {
	return h.db.Close()
}

// SaveResult stores a result, one row per song for multi-song results, and
// returns the new ids in order.
func (h *HistoryService) SaveResult(ctx context.Context, input string, result *model.AnalysisResult) ([]int64, error) {
	if !result.IsMultiple() {
		id, err := h.SaveAnalysis(ctx, input, result)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}

	ids := make([]int64, 0, len(result.Results))
	for _, item := range result.Results {
		itemInput := item.Source
		if itemInput == "" {
			itemInput = input
		}
		id, err := h.SaveAnalysis(ctx, itemInput, item)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SaveAnalysis writes one analysis with its parameter and recommendation rows
// in a single transaction.
//
// Inputs:
//   - ctx: The request context.
//   - input: The text the user submitted.
//   - result: A single (not multi-song) result. Error variants are stored as
//     failed rows carrying the error message.
//
// Outputs:
//   - int64: The id of the new analysis row.
//   - error: Any database or encoding error.
func (h *HistoryService) SaveAnalysis(ctx context.Context, input string, result *model.AnalysisResult) (int64, error) {
	var (
		songName, artist, videoURL, errorMessage sql.NullString
		parameters                               interface{} = map[string]interface{}{}
		recommendations                          []interface{}
		inputSong                                map[string]interface{}
	)

	success := false
	if !result.IsError() {
		inputSong, success = result.Analysis.InputSongObject()
	}
	if success {
		songName = nullString(stringOr(model.StringField(inputSong, model.KeySongName), unknownValue))
		artist = nullString(stringOr(model.StringField(inputSong, model.KeyArtist), unknownValue))
		videoURL = nullString(model.StringField(inputSong, model.KeyYouTubeURL))
		if p, ok := inputSong[model.KeyParameters]; ok && p != nil {
			parameters = p
		}
		recommendations, _ = result.Analysis[model.KeyRecommendations].([]interface{})
	} else {
		errorMessage = nullString(stringOr(result.Error, "Unknown error"))
	}
	if recommendations == nil {
		recommendations = make([]interface{}, 0)
	}

	parametersJSON, err := json.Marshal(parameters)
	if err != nil {
		return 0, fmt.Errorf("failed to encode parameters: %w", err)
	}
	recommendationsJSON, err := json.Marshal(recommendations)
	if err != nil {
		return 0, fmt.Errorf("failed to encode recommendations: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, qryInsertAnalysis,
		input, songName, artist, videoURL, string(parametersJSON), string(recommendationsJSON),
		h.now().UTC().Format(timestampLayout), success, errorMessage)
	if err != nil {
		return 0, fmt.Errorf("failed to insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	switch p := parameters.(type) {
	case map[string]interface{}:
		for name, raw := range p {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			value, err := json.Marshal(entry[model.KeyValue])
			if err != nil {
				return 0, fmt.Errorf("failed to encode parameter %q: %w", name, err)
			}
			var score sql.NullFloat64
			if f, ok := entry[model.KeyConfidenceScore].(float64); ok {
				score = sql.NullFloat64{Float64: f, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, qryInsertParameter, id, name, string(value), score); err != nil {
				return 0, fmt.Errorf("failed to insert parameter %q: %w", name, err)
			}
		}
	case []interface{}:
		slog.WarnContext(ctx, "parameters is a list instead of an object; skipping parameter rows", "analysis_id", id)
	}

	for i, raw := range recommendations {
		rec, _ := raw.(map[string]interface{})
		song := model.SongFromObject(rec)
		_, err := tx.ExecContext(ctx, qryInsertRecommendation, id,
			stringOr(song.SongName, unknownValue),
			stringOr(song.Artist, unknownValue),
			song.Rationale,
			nullString(song.YouTubeURL),
			song.IsWildcard(),
			i+1)
		if err != nil {
			return 0, fmt.Errorf("failed to insert recommendation %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit analysis: %w", err)
	}
	return id, nil
}

// GetAnalysis returns the record with the given id, or ErrNotFound.
func (h *HistoryService) GetAnalysis(ctx context.Context, id int64) (*model.StoredAnalysis, error) {
	out, err := scanStoredAnalysis(h.db.QueryRowContext(ctx, qryAnalysisByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis %d: %w", id, err)
	}
	return out, nil
}

// GetHistory lists summaries, newest first.
func (h *HistoryService) GetHistory(ctx context.Context, limit int, offset int, successOnly bool) ([]model.HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx, fmt.Sprintf(qryHistory, successClause(successOnly)), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanEntries(rows)
}

// SearchAnalyses matches q against song name, artist and input text of
// successful analyses.
func (h *HistoryService) SearchAnalyses(ctx context.Context, q string, limit int) ([]model.HistoryEntry, error) {
	pattern := "%" + q + "%"
	rows, err := h.db.QueryContext(ctx, qrySearch, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	return scanEntries(rows)
}

// GetAllAnalyses returns full records, newest first. Rows whose JSON columns
// cannot be decoded are skipped.
func (h *HistoryService) GetAllAnalyses(ctx context.Context, limit int, successOnly bool) ([]*model.StoredAnalysis, error) {
	rows, err := h.db.QueryContext(ctx, fmt.Sprintf(qryAllAnalyses, successClause(successOnly)), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	out := make([]*model.StoredAnalysis, 0)
	for rows.Next() {
		item, err := scanStoredAnalysis(rows)
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed analysis entry", "error", err)
			continue
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// GetParametersTable lists parameter rows. A positive analysisID restricts the
// rows to that analysis and ignores limit.
func (h *HistoryService) GetParametersTable(ctx context.Context, analysisID int64, limit int) ([]model.ParameterRow, error) {
	var rows *sql.Rows
	var err error
	if analysisID > 0 {
		rows, err = h.db.QueryContext(ctx, qryParametersForAnalysis, analysisID)
	} else {
		rows, err = h.db.QueryContext(ctx, qryParameters, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query parameters: %w", err)
	}
	defer rows.Close()

	out := make([]model.ParameterRow, 0)
	for rows.Next() {
		var (
			r                        model.ParameterRow
			input, song, artist, val sql.NullString
			score                    sql.NullFloat64
			created                  sqlTime
		)
		if err := rows.Scan(&r.ID, &r.AnalysisID, &input, &song, &artist, &r.ParameterName, &val, &score, &created); err != nil {
			return nil, fmt.Errorf("failed to scan parameter row: %w", err)
		}
		r.InputText, r.SongName, r.Artist = input.String, song.String, artist.String
		r.ParameterValue = decodeParameterValue(val)
		r.ConfidenceScore = floatPtr(score)
		r.CreatedAt = created.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetAllDataTabular flattens every analysis and parameter into rows.
func (h *HistoryService) GetAllDataTabular(ctx context.Context) (*model.TabularData, error) {
	rows, err := h.db.QueryContext(ctx, qryTabular)
	if err != nil {
		return nil, fmt.Errorf("failed to query tabular data: %w", err)
	}
	defer rows.Close()

	data := make([]model.TabularRow, 0)
	for rows.Next() {
		var (
			r                          model.TabularRow
			input, song, artist, pname sql.NullString
			val                        sql.NullString
			score                      sql.NullFloat64
			created                    sqlTime
		)
		if err := rows.Scan(&r.AnalysisID, &input, &song, &artist, &created, &r.Success, &pname, &val, &score); err != nil {
			return nil, fmt.Errorf("failed to scan tabular row: %w", err)
		}
		r.InputText, r.SongName, r.Artist = input.String, song.String, artist.String
		r.CreatedAt = created.Time
		if pname.Valid {
			name := pname.String
			r.ParameterName = &name
		}
		r.ParameterValue = decodeParameterValue(val)
		r.ConfidenceScore = floatPtr(score)
		data = append(data, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &model.TabularData{TotalRows: len(data), Data: data, Columns: model.TabularColumns}, nil
}

// GetStatistics summarises the store.
func (h *HistoryService) GetStatistics(ctx context.Context) (*model.Statistics, error) {
	out := &model.Statistics{
		TopArtists:         make([]model.ArtistCount, 0),
		TopRecommendations: make([]model.RecommendationCount, 0),
		RecentActivity:     make([]model.DailyCount, 0),
	}
	counts := []struct {
		query string
		dest  *int
	}{
		{qryCountAnalyses, &out.TotalAnalyses},
		{qryCountSuccessful, &out.SuccessfulAnalyses},
		{qryCountFailed, &out.FailedAnalyses},
		{qryCountParameters, &out.TotalParameters},
	}
	for _, c := range counts {
		if err := h.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}
	if out.TotalAnalyses > 0 {
		out.SuccessRate = float64(out.SuccessfulAnalyses) / float64(out.TotalAnalyses) * 100
	}

	rows, err := h.db.QueryContext(ctx, qryTopArtists)
	if err != nil {
		return nil, fmt.Errorf("failed to query top artists: %w", err)
	}
	for rows.Next() {
		var a model.ArtistCount
		if err := rows.Scan(&a.Artist, &a.Count); err != nil {
			rows.Close()
			return nil, err
		}
		out.TopArtists = append(out.TopArtists, a)
	}
	rows.Close()

	rows, err = h.db.QueryContext(ctx, qryTopRecommendations)
	if err != nil {
		return nil, fmt.Errorf("failed to query top recommendations: %w", err)
	}
	for rows.Next() {
		var r model.RecommendationCount
		if err := rows.Scan(&r.SongName, &r.Artist, &r.Count); err != nil {
			rows.Close()
			return nil, err
		}
		out.TopRecommendations = append(out.TopRecommendations, r)
	}
	rows.Close()

	cutoff := h.now().UTC().AddDate(0, 0, -recentDays).Format(timestampLayout)
	rows, err = h.db.QueryContext(ctx, qryRecentActivity, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d model.DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		out.RecentActivity = append(out.RecentActivity, d)
	}
	return out, rows.Err()
}

// DeleteAnalysis removes an analysis and its child rows. It reports whether
// the analysis existed.
func (h *HistoryService) DeleteAnalysis(ctx context.Context, id int64) (bool, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, q := range []string{qryDeleteParameters, qryDeleteRecommendations} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return false, fmt.Errorf("failed to delete child rows of %d: %w", id, err)
		}
	}
	res, err := tx.ExecContext(ctx, qryDeleteAnalysis, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete analysis %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

// ClearAll deletes everything and returns the number of analyses removed.
func (h *HistoryService) ClearAll(ctx context.Context) (int, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, qryCountAnalyses).Scan(&count); err != nil {
		return 0, err
	}
	for _, q := range []string{qryClearRecommendations, qryClearParameters, qryClearAnalyses} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, fmt.Errorf("failed to clear history: %w", err)
		}
	}
	return count, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStoredAnalysis(row rowScanner) (*model.StoredAnalysis, error) {
	var (
		out                              model.StoredAnalysis
		song, artist, videoURL, errorMsg sql.NullString
		params, recs                     string
		created                          sqlTime
	)
	err := row.Scan(&out.ID, &out.InputText, &song, &artist, &videoURL, &params, &recs, &created, &out.Success, &errorMsg)
	if err != nil {
		return nil, err
	}
	out.SongName, out.Artist, out.YouTubeURL, out.ErrorMessage = song.String, artist.String, videoURL.String, errorMsg.String
	out.CreatedAt = created.Time

	if err := json.Unmarshal([]byte(params), &out.Parameters); err != nil {
		return nil, fmt.Errorf("analysis %d has malformed analysis_data: %w", out.ID, err)
	}
	if err := json.Unmarshal([]byte(recs), &out.Recommendations); err != nil {
		return nil, fmt.Errorf("analysis %d has malformed recommendations: %w", out.ID, err)
	}
	if out.Recommendations == nil {
		out.Recommendations = make([]map[string]interface{}, 0)
	}
	return &out, nil
}

func scanEntries(rows *sql.Rows) ([]model.HistoryEntry, error) {
	defer rows.Close()
	out := make([]model.HistoryEntry, 0)
	for rows.Next() {
		var (
			e                      model.HistoryEntry
			song, artist, errorMsg sql.NullString
			created                sqlTime
		)
		if err := rows.Scan(&e.ID, &e.InputText, &song, &artist, &created, &e.Success, &errorMsg); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.SongName, e.Artist, e.ErrorMessage = song.String, artist.String, errorMsg.String
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

func successClause(successOnly bool) string {
	if successOnly {
		return "WHERE success = 1"
	}
	return ""
}

// sqlTime scans timestamps whether the driver hands back time.Time or text.
type sqlTime struct {
	time.Time
}

func (t *sqlTime) Scan(v interface{}) error {
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = x
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func decodeParameterValue(v sql.NullString) interface{} {
	if !v.Valid {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return v.String
	}
	return out
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringOr(s string, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
