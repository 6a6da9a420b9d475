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

package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/services"
)

func searchSettings(url string) cloud.Enrichment {
	return cloud.Enrichment{
		SearchURL:              url + "/results",
		UserAgent:              "tunetrace-test",
		TimeoutSeconds:         5,
		BreakerFailures:        2,
		BreakerCooldownSeconds: 60,
	}
}

func TestResolverFindsFirstVideo(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		gotAgent = r.UserAgent()
		fmt.Fprint(w, `var ytInitialData = {"videoId":"dQw4w9WgXcQ","other":{"videoId":"yoYZf-lBF_U"}};`)
	}))
	defer srv.Close()

	r := services.NewYouTubeSearchResolver(searchSettings(srv.URL), srv.Client())
	got := r.Resolve(context.Background(), "Never Gonna Give You Up", "Rick  Astley")

	assert.Equal(t, services.WatchURLPrefix+"dQw4w9WgXcQ", got)
	assert.Equal(t, "Rick Astley Never Gonna Give You Up official audio", gotQuery)
	assert.Equal(t, "tunetrace-test", gotAgent)
}

func TestResolverFallsBackToSearchSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>no results</html>")
	}))
	defer srv.Close()

	r := services.NewYouTubeSearchResolver(searchSettings(srv.URL), srv.Client())
	got := r.Resolve(context.Background(), "Teardrop", "Massive Attack")
	assert.Equal(t, model.SearchSentinel("Teardrop", "Massive Attack"), got)
	assert.False(t, r.IsBreakerOpen())
}

func TestResolverBreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := services.NewYouTubeSearchResolver(searchSettings(srv.URL), srv.Client())
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		got := r.Resolve(ctx, "Song", "Artist")
		assert.True(t, model.IsSearchSentinel(got))
	}
	assert.True(t, r.IsBreakerOpen())
	assert.Equal(t, int32(2), hits.Load())

	_, err := r.FirstVideoID(ctx, "Artist Song official audio")
	assert.Error(t, err)
}

func TestResolverLiteralWithoutBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"videoId":"dQw4w9WgXcQ"}`)
	}))
	defer srv.Close()

	r := &services.YouTubeSearchResolver{SearchURL: srv.URL + "/results"}
	got := r.Resolve(context.Background(), "Never Gonna Give You Up", "Rick Astley")

	assert.Equal(t, services.WatchURLPrefix+"dQw4w9WgXcQ", got)
	assert.False(t, r.IsBreakerOpen())
}

type fakeInserter struct {
	rows []*model.ParameterExportRow
	err  error
	puts int
}

func (f *fakeInserter) Put(_ context.Context, src interface{}) error {
	f.puts++
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, src.([]*model.ParameterExportRow)...)
	return nil
}

func TestParameterRows(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows, err := services.ParameterRows(7, model.GetExampleAnalysis(), created)
	require.NoError(t, err)
	require.Len(t, rows, 19)

	first := rows[0]
	assert.Equal(t, "Dynamic Range", first.ParameterName)
	assert.Equal(t, `"Low (Compressed): Consistently loud and in-your-face."`, first.ParameterValue)
	assert.Equal(t, 0.9, first.ConfidenceScore)
	assert.Equal(t, int64(7), first.AnalysisID)
	assert.Equal(t, "Mobb Deep", first.Artist)
	assert.Equal(t, created, first.CreatedAt)

	for _, r := range rows {
		if r.ParameterName == model.GenreParameterName {
			assert.JSONEq(t, `{"genre":"Hip-Hop","subgenre":"East Coast Hardcore Hip-Hop"}`, r.ParameterValue)
		}
	}
}

func TestParameterExporter(t *testing.T) {
	ctx := context.Background()
	ins := &fakeInserter{}
	exp := &services.ParameterExporter{Inserter: ins, Table: "p.d.parameters"}

	n, err := exp.Export(ctx, 1, model.GetExampleAnalysis(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 19, n)
	assert.Len(t, ins.rows, 19)

	listParams := model.Analysis{model.KeyInputSongAnalysis: map[string]interface{}{model.KeyParameters: []interface{}{}}}
	n, err = exp.Export(ctx, 2, listParams, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, ins.puts)

	ins.err = errors.New("quota")
	_, err = exp.Export(ctx, 3, model.GetExampleAnalysis(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p.d.parameters")

	assert.Nil(t, services.NewParameterExporter(nil, "d", "t"))
}

type fakeAnalyzer struct {
	result *model.AnalysisResult
	calls  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string) *model.AnalysisResult {
	f.calls++
	return f.result
}

func (f *fakeAnalyzer) AnalyzeBatch(_ context.Context, songs []string) *model.BatchResult {
	out := &model.BatchResult{BatchAnalysis: true, Count: len(songs)}
	for _, s := range songs {
		out.Results = append(out.Results, model.BatchItem{Input: s, Analysis: f.result})
	}
	return out
}

type memorySaver struct {
	next  int64
	saved []string
	err   error
}

func (m *memorySaver) SaveResult(_ context.Context, input string, result *model.AnalysisResult) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	n := 1
	if result.IsMultiple() {
		n = len(result.Results)
	}
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		m.next++
		ids = append(ids, m.next)
		m.saved = append(m.saved, input)
	}
	return ids, nil
}

func TestAnalyzeAndSave(t *testing.T) {
	ctx := context.Background()
	ins := &fakeInserter{}
	store := &memorySaver{}
	svc := &services.AnalysisService{
		Analyzer: &fakeAnalyzer{result: successResult()},
		Store:    store,
		Exporter: &services.ParameterExporter{Inserter: ins, Table: "t"},
	}

	resp, err := svc.AnalyzeAndSave(ctx, "Shook Ones by Mobb Deep")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.AnalysisID)
	assert.Equal(t, []int64{1}, resp.AnalysisIDs)
	assert.Equal(t, "Shook Ones by Mobb Deep", resp.Input)
	assert.Len(t, ins.rows, 19)
}

func TestAnalyzeAndSaveErrorVariant(t *testing.T) {
	ctx := context.Background()
	ins := &fakeInserter{}
	store := &memorySaver{}
	svc := &services.AnalysisService{
		Analyzer: &fakeAnalyzer{result: model.NewErrorResult("Failed to generate valid JSON output", "x", "")},
		Store:    store,
		Exporter: &services.ParameterExporter{Inserter: ins, Table: "t"},
	}

	resp, err := svc.AnalyzeAndSave(ctx, "gibberish")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to generate valid JSON output", resp.Error)
	assert.Equal(t, []string{"gibberish"}, store.saved)
	assert.Equal(t, 0, ins.puts)
}

func TestAnalyzeAndSaveExportFailureIsNotFatal(t *testing.T) {
	svc := &services.AnalysisService{
		Analyzer: &fakeAnalyzer{result: successResult()},
		Store:    &memorySaver{},
		Exporter: &services.ParameterExporter{Inserter: &fakeInserter{err: errors.New("down")}, Table: "t"},
	}
	resp, err := svc.AnalyzeAndSave(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestAnalyzeAndSaveStorageFailure(t *testing.T) {
	svc := &services.AnalysisService{
		Analyzer: &fakeAnalyzer{result: successResult()},
		Store:    &memorySaver{err: errors.New("disk full")},
	}
	_, err := svc.AnalyzeAndSave(context.Background(), "x")
	assert.ErrorContains(t, err, "disk full")
}

func TestAnalyzeAndSaveMultiSong(t *testing.T) {
	multi := model.NewMultiSongResult([]*model.AnalysisResult{successResult(), model.NewErrorResult("bad", "", "b")})
	ins := &fakeInserter{}
	svc := &services.AnalysisService{
		Analyzer: &fakeAnalyzer{result: multi},
		Store:    &memorySaver{},
		Exporter: &services.ParameterExporter{Inserter: ins, Table: "t"},
	}
	resp, err := svc.AnalyzeAndSave(context.Background(), "a, b")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []int64{1, 2}, resp.AnalysisIDs)
	assert.Equal(t, 1, ins.puts)
}

func TestMoreRecommendationsDoesNotSave(t *testing.T) {
	store := &memorySaver{}
	analyzer := &fakeAnalyzer{result: successResult()}
	svc := &services.AnalysisService{Analyzer: analyzer, Store: store}

	resp := svc.MoreRecommendations(context.Background(), "Shook Ones")
	assert.True(t, resp.Success)
	assert.Equal(t, "Generated new recommendations", resp.Message)
	assert.Empty(t, store.saved)

	analyzer.result = model.NewErrorResult("Error during analysis: x", "", "Shook Ones")
	resp = svc.MoreRecommendations(context.Background(), "Shook Ones")
	assert.False(t, resp.Success)
	assert.Equal(t, "Error during analysis: x", resp.Error)
}

func TestAnalyzeBatchPassesThrough(t *testing.T) {
	svc := &services.AnalysisService{Analyzer: &fakeAnalyzer{result: successResult()}, Store: &memorySaver{}}
	out := svc.AnalyzeBatch(context.Background(), []string{"a", "b"})
	assert.True(t, out.BatchAnalysis)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "b", out.Results[1].Input)
}
