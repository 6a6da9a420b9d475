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

package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/commands"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-tune-trace/internal/testutil"
)

// scriptedGenerator answers by song: the prompt template used in these tests
// renders to "song=<input>".
type scriptedGenerator struct {
	replies map[string]string
	errs    map[string]error
	panics  map[string]bool
}

func (s *scriptedGenerator) GenerateContent(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	song := strings.TrimPrefix(contents[0].Parts[0].Text, "song=")
	if s.panics[song] {
		panic("model client blew up")
	}
	if err, ok := s.errs[song]; ok {
		return nil, err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: s.replies[song]}}}}},
	}, nil
}

type stubResolver struct {
	panic bool
}

func (r stubResolver) Resolve(ctx context.Context, songName string, artist string) string {
	if r.panic {
		panic("search down")
	}
	return model.SearchSentinel(songName, artist)
}

type recordingSaver struct {
	inputs []string
}

func (r *recordingSaver) SaveResult(ctx context.Context, input string, result *model.AnalysisResult) ([]int64, error) {
	r.inputs = append(r.inputs, input)
	return []int64{int64(len(r.inputs))}, nil
}

func exampleReply(t *testing.T) string {
	b, err := json.Marshal(model.GetExampleAnalysis())
	require.NoError(t, err)
	return string(b)
}

func testConfig() *cloud.Config {
	loaded := *test.GetConfig()
	config := &loaded
	config.PromptTemplates.AnalysisPrompt = "song={{.SONG_INPUT}}"
	return config
}

func newWorkflow(t *testing.T, config *cloud.Config, gen *scriptedGenerator, resolver commands.URLResolver) *workflow.SongAnalysisWorkflow {
	w, err := workflow.NewSongAnalysisWorkflow(config, gen, resolver)
	require.NoError(t, err)
	return w
}

func TestAnalyzeSingleSongEnriches(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{"Shook Ones": "Sure!\n```json\n" + exampleReply(t) + "\n```"}}
	w := newWorkflow(t, testConfig(), gen, stubResolver{})

	result := w.Analyze(context.Background(), "  Shook Ones  ")

	require.True(t, result.Succeeded())
	assert.False(t, result.IsMultiple())
	assert.Equal(t, "Shook Ones", result.Source)
	input := result.Analysis.InputSong()
	assert.Equal(t, "ytsearch1:Mobb Deep Shook Ones Pt. II official audio", input.YouTubeURL)
	recs := result.Analysis.Recommendations()
	require.Len(t, recs, model.RequestedRecommendationCount)
	for _, rec := range recs {
		assert.True(t, model.IsSearchSentinel(rec.YouTubeURL), rec.YouTubeURL)
	}
}

func TestAnalyzeExtractionFailureKeepsExcerpt(t *testing.T) {
	long := strings.Repeat("x", 800)
	gen := &scriptedGenerator{replies: map[string]string{"Teardrop": long, "Silence": ""}}
	w := newWorkflow(t, testConfig(), gen, stubResolver{})

	result := w.Analyze(context.Background(), "Teardrop")
	require.True(t, result.IsError())
	assert.Equal(t, workflow.ExtractionFailedMessage, result.Error)
	assert.Equal(t, long[:500], result.RawResponse)

	result = w.Analyze(context.Background(), "Silence")
	require.True(t, result.IsError())
	assert.Equal(t, workflow.NoResponseMessage, result.RawResponse)
}

func TestAnalyzeConvertsModelErrors(t *testing.T) {
	gen := &scriptedGenerator{errs: map[string]error{"Bad": errors.New("permission denied")}}
	w := newWorkflow(t, testConfig(), gen, stubResolver{})

	result := w.Analyze(context.Background(), "Bad")

	require.True(t, result.IsError())
	assert.True(t, strings.HasPrefix(result.Error, "Error during analysis: "), result.Error)
	assert.Contains(t, result.Error, "permission denied")
	assert.Equal(t, "Bad", result.Input)
}

func TestAnalyzeRecoversGeneratorPanic(t *testing.T) {
	gen := &scriptedGenerator{panics: map[string]bool{"Boom": true}}
	w := newWorkflow(t, testConfig(), gen, stubResolver{})

	result := w.Analyze(context.Background(), "Boom")

	require.True(t, result.IsError())
	assert.Contains(t, result.Error, "model client blew up")
}

func TestAnalyzeMultiSongIsolatesFailures(t *testing.T) {
	gen := &scriptedGenerator{
		replies: map[string]string{"A": exampleReply(t)},
		errs:    map[string]error{"B": errors.New("timeout")},
	}
	w := newWorkflow(t, testConfig(), gen, stubResolver{})

	result := w.Analyze(context.Background(), "A\nB")

	require.True(t, result.IsMultiple())
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Succeeded())
	assert.True(t, result.Results[1].IsError())
	assert.Equal(t, "B", result.Results[1].Source)

	b, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, true, decoded["multiple_songs"])
	assert.Equal(t, float64(2), decoded["count"])
}

func TestAnalyzeEnrichmentFailureIsSwallowed(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{"A": exampleReply(t)}}
	w := newWorkflow(t, testConfig(), gen, stubResolver{panic: true})

	result := w.Analyze(context.Background(), "A")

	require.True(t, result.Succeeded())
	assert.Empty(t, result.Analysis.InputSong().YouTubeURL)
}

func TestAnalyzeWithValidatorEnabled(t *testing.T) {
	config := testConfig()
	config.Analysis.ValidateOutput = true
	config.Analysis.ValidatorRecommendations = model.RequestedRecommendationCount
	short := model.GetExampleAnalysis()
	short[model.KeyRecommendations] = short[model.KeyRecommendations].([]interface{})[:3]
	shortReply, err := json.Marshal(short)
	require.NoError(t, err)
	gen := &scriptedGenerator{replies: map[string]string{"A": exampleReply(t), "B": string(shortReply)}}
	w := newWorkflow(t, config, gen, stubResolver{})

	assert.True(t, w.Analyze(context.Background(), "A").Succeeded())

	result := w.Analyze(context.Background(), "B")
	require.True(t, result.IsError())
	assert.Contains(t, result.Error, "Recommendations must be a list of exactly 6 items")
}

func TestNewWorkflowRejectsValidatorCountMismatch(t *testing.T) {
	config := testConfig()
	config.Analysis.ValidateOutput = true
	config.Analysis.RequestedRecommendations = 6
	config.Analysis.ValidatorRecommendations = 3

	_, err := workflow.NewSongAnalysisWorkflow(config, &scriptedGenerator{}, stubResolver{})
	assert.ErrorIs(t, err, workflow.ErrRecommendationCountMismatch)

	config.Analysis.ValidateOutput = false
	_, err = workflow.NewSongAnalysisWorkflow(config, &scriptedGenerator{}, stubResolver{})
	assert.NoError(t, err)
}

func TestLocalRuntimeConfigAcceptsExampleReply(t *testing.T) {
	root, err := test.RepoRoot()
	require.NoError(t, err)
	t.Setenv(cloud.EnvConfigFilePrefix, filepath.Join(root, "configs"))
	t.Setenv(cloud.EnvConfigRuntime, "local")
	config := cloud.NewConfig()
	require.NoError(t, cloud.LoadConfig(config))
	assert.Equal(t, 0, config.Analysis.MaxRetries)
	config.PromptTemplates.AnalysisPrompt = "song={{.SONG_INPUT}}"

	gen := &scriptedGenerator{replies: map[string]string{"Shook Ones": exampleReply(t)}}
	result := newWorkflow(t, config, gen, stubResolver{}).Analyze(context.Background(), "Shook Ones")

	require.False(t, result.IsError(), result.Error)
	assert.Len(t, result.Analysis.Recommendations(), model.RequestedRecommendationCount)
}

func TestAnalyzeBatch(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{"A": exampleReply(t), "B": "nope"}}
	w := newWorkflow(t, testConfig(), gen, stubResolver{})

	batch := w.AnalyzeBatch(context.Background(), []string{"A", "B"})

	assert.True(t, batch.BatchAnalysis)
	assert.Equal(t, 2, batch.Count)
	assert.Equal(t, "A", batch.Results[0].Input)
	assert.True(t, batch.Results[0].Analysis.Succeeded())
	assert.True(t, batch.Results[1].Analysis.IsError())
}

func TestNewWorkflowRequiresGenerator(t *testing.T) {
	_, err := workflow.NewSongAnalysisWorkflow(testConfig(), nil, stubResolver{})
	assert.ErrorIs(t, err, cloud.ErrMissingCredentials)

	config := testConfig()
	config.PromptTemplates.AnalysisPrompt = "{{.SONG_INPUT"
	_, err = workflow.NewSongAnalysisWorkflow(config, &scriptedGenerator{}, stubResolver{})
	assert.Error(t, err)
}

func TestAnalysisRequestWorkflowSavesResult(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{"Teardrop by Massive Attack": exampleReply(t)}}
	saver := &recordingSaver{}
	pipeline := workflow.NewAnalysisRequestWorkflow(newWorkflow(t, testConfig(), gen, stubResolver{}), saver)

	chCtx := cloud.RunMessageCommand(context.Background(), pipeline, []byte(`{"input":"Teardrop by Massive Attack"}`))

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, []string{"Teardrop by Massive Attack"}, saver.inputs)
	assert.Equal(t, []int64{1}, chCtx.Get(commands.KeyAnalysisID))
	result, ok := chCtx.Get(commands.KeyAnalysisResult).(*model.AnalysisResult)
	require.True(t, ok)
	assert.True(t, result.Succeeded())
}

func TestAnalysisRequestWorkflowRejectsEmptyMessage(t *testing.T) {
	saver := &recordingSaver{}
	pipeline := workflow.NewAnalysisRequestWorkflow(newWorkflow(t, testConfig(), &scriptedGenerator{}, stubResolver{}), saver)

	chCtx := cloud.RunMessageCommand(context.Background(), pipeline, []byte("   "))

	require.True(t, chCtx.HasErrors())
	assert.ErrorIs(t, chCtx.FirstError(), commands.ErrEmptyRequest)
	assert.Empty(t, saver.inputs)
}

func TestAnalysisRequestWorkflowFixtures(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{
		"Shook Ones, Pt. II by Mobb Deep": test.GetTestModelReply(t),
		"Teardrop - Massive Attack":       test.GetTestModelReply(t),
	}}
	saver := &recordingSaver{}
	pipeline := workflow.NewAnalysisRequestWorkflow(newWorkflow(t, testConfig(), gen, stubResolver{}), saver)

	for _, body := range []string{test.GetTestAnalysisRequestMessageText(), test.GetTestPlainRequestMessageText()} {
		chCtx := cloud.RunMessageCommand(context.Background(), pipeline, []byte(body))
		test.HandleErr(chCtx.FirstError(), t)
	}

	assert.Equal(t, []string{"Shook Ones, Pt. II by Mobb Deep", "Teardrop - Massive Attack"}, saver.inputs)
}
