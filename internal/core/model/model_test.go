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

package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisCloneIsDeep(t *testing.T) {
	original := model.GetExampleAnalysis()
	clone := original.Clone()

	input, ok := clone.InputSongObject()
	require.True(t, ok)
	input[model.KeyYouTubeURL] = "changed"
	clone.RecommendationObjects()[0][model.KeySongName] = "changed"

	assert.Equal(t, "https://www.youtube.com/watch?v=yoYZf-lBF_U", original.InputSong().YouTubeURL)
	assert.Equal(t, "C.R.E.A.M.", original.Recommendations()[0].SongName)
}

func TestSongFromObject(t *testing.T) {
	song := model.GetExampleAnalysis().InputSong()

	assert.Equal(t, "Shook Ones, Pt. II", song.SongName)
	assert.Equal(t, "Mobb Deep", song.Artist)
	assert.True(t, song.ParametersIsObject)
	assert.Empty(t, model.MissingRubricParameters(song))

	genre, ok := song.Parameters[model.GenreParameterName].Genre()
	require.True(t, ok)
	assert.Equal(t, "Hip-Hop", genre.Genre)
	assert.Equal(t, "East Coast Hardcore Hip-Hop", genre.Subgenre)

	require.NotNil(t, song.Parameters["Mood / Tone"].ConfidenceScore)
	assert.InDelta(t, 0.95, *song.Parameters["Mood / Tone"].ConfidenceScore, 1e-9)
}

func TestSongFromObjectWithArrayParameters(t *testing.T) {
	song := model.SongFromObject(map[string]interface{}{
		model.KeySongName:   "Song",
		model.KeyParameters: []interface{}{"a", "b"},
	})
	assert.False(t, song.ParametersIsObject)
	assert.Empty(t, song.Parameters)
	assert.Len(t, model.MissingRubricParameters(song), len(model.Rubric))
}

func TestExampleHasWildcardLast(t *testing.T) {
	recs := model.GetExampleAnalysis().Recommendations()
	require.Len(t, recs, model.RequestedRecommendationCount)
	for i, rec := range recs[:len(recs)-1] {
		assert.False(t, rec.IsWildcard(), "recommendation %d", i)
	}
	assert.True(t, recs[len(recs)-1].IsWildcard())
}

func TestAnalysisResultJSON(t *testing.T) {
	success := model.NewSuccessResult(model.Analysis{"disclaimer": "d"})
	failure := model.NewErrorResult("Failed to generate valid JSON output", "raw", "")
	multi := model.NewMultiSongResult([]*model.AnalysisResult{success, failure})

	b, err := json.Marshal(success)
	require.NoError(t, err)
	assert.JSONEq(t, `{"disclaimer":"d"}`, string(b))

	b, err = json.Marshal(failure)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Failed to generate valid JSON output","raw_response":"raw"}`, string(b))

	b, err = json.Marshal(multi)
	require.NoError(t, err)
	assert.JSONEq(t, `{"multiple_songs":true,"count":2,"results":[{"disclaimer":"d"},{"error":"Failed to generate valid JSON output","raw_response":"raw"}]}`, string(b))

	assert.True(t, success.Succeeded())
	assert.True(t, failure.IsError())
	assert.True(t, multi.IsMultiple())
	assert.False(t, multi.Succeeded())
}

func TestRubricTable(t *testing.T) {
	table := model.RubricTable()
	for _, name := range model.RubricParameterNames() {
		assert.Contains(t, table, "| "+name+" |")
	}
	assert.Len(t, model.RubricParameterNames(), 19)
}

func TestSearchSentinel(t *testing.T) {
	assert.Equal(t, "ytsearch1:Queen Bohemian Rhapsody official audio", model.SearchSentinel("Bohemian Rhapsody", "Queen"))
	assert.Equal(t, "ytsearch1:official audio", model.SearchSentinel("", ""))
	assert.True(t, model.IsSearchSentinel(model.SearchSentinel("a", "b")))
	assert.False(t, model.IsSearchSentinel("https://www.youtube.com/watch?v=abc"))
}

func TestMediaKind(t *testing.T) {
	assert.Equal(t, model.MediaVideo, model.ParseMediaKind("Video"))
	assert.Equal(t, model.MediaAudio, model.ParseMediaKind(""))
	assert.Equal(t, "mp4", model.MediaVideo.Extension())
	assert.Equal(t, "mp3", model.MediaAudio.Extension())
}

func TestDownloadSessionClone(t *testing.T) {
	now := time.Now()
	session := &model.DownloadSession{Completed: []string{"a"}, Failed: []string{"b"}, CompletedAt: &now}
	clone := session.Clone()
	clone.Completed[0] = "x"
	clone.Failed = append(clone.Failed, "y")

	assert.Equal(t, []string{"a"}, session.Completed)
	assert.Equal(t, []string{"b"}, session.Failed)
	assert.NotSame(t, session.CompletedAt, clone.CompletedAt)
}

func TestDownloadEventPayload(t *testing.T) {
	event := model.DownloadEvent{Type: model.EventSongStart, DownloadID: "id", Data: map[string]interface{}{"song_index": 1}}
	payload := event.Payload()
	assert.Equal(t, "song_start", payload["type"])
	assert.Equal(t, "id", payload["download_id"])
	assert.Equal(t, 1, payload["song_index"])
}

func TestStoredAnalysisVideoURLs(t *testing.T) {
	stored := &model.StoredAnalysis{
		YouTubeURL: "u0",
		Recommendations: []map[string]interface{}{
			{model.KeyYouTubeURL: "u1"},
			{model.KeySongName: "no url"},
			{model.KeyYouTubeURL: "u2"},
		},
	}
	assert.Equal(t, []string{"u0", "u1", "u2"}, stored.VideoURLs())
}
