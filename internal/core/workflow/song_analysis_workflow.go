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

// Package workflow combines commands into the pipelines the service runs. This
// file implements the song analysis orchestrator.
//
// Logic Flow:
// Every song reference gets a fresh chain context and runs through the same
// chain of commands:
//
//  1. Render the analysis prompt (rubric, few-shot example, song reference).
//  2. Ask the generative model for a reply.
//  3. Extract the JSON object from the reply.
//  4. Optionally validate the structure of the object.
//  5. Attach best-effort video URLs to the input song and each recommendation.
//
// Whatever the chain records as an error, including recovered panics, is
// turned into the error variant of model.AnalysisResult here. Nothing escapes
// to the caller.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/analysis"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/commands"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/cor"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

const (
	ExtractionFailedMessage = "Failed to generate valid JSON output"
	NoResponseMessage       = "No response"
)

// ErrRecommendationCountMismatch means the validator would reject every reply
// that follows the prompt.
var ErrRecommendationCountMismatch = errors.New("validator recommendation count does not match the requested count")

// SongAnalysisWorkflow is the analysis orchestrator. It is also a cor.Command,
// reading a song reference from its input parameter and writing a
// *model.AnalysisResult to its output parameter, so that it can sit inside the
// queued request pipeline.
type SongAnalysisWorkflow struct {
	cor.BaseCommand
	chain         cor.Chain
	excerptLength int
}

// NewSongAnalysisWorkflow builds the orchestrator.
//
// Inputs:
//   - config: The application configuration. The prompt template, counts,
//     retry budget and validator switch are read from it.
//   - generator: The generative model. A nil generator is a configuration
//     error and is reported as cloud.ErrMissingCredentials.
//   - resolver: Resolves video URLs during enrichment.
//
// Outputs:
//   - *SongAnalysisWorkflow: The orchestrator, safe for concurrent use.
//   - error: Missing credentials, an unparseable prompt template, or
//     ErrRecommendationCountMismatch when the validator is enabled with a
//     count other than the one the prompt requests.
func NewSongAnalysisWorkflow(config *cloud.Config, generator cloud.ContentGenerator, resolver commands.URLResolver) (*SongAnalysisWorkflow, error) {
	if generator == nil {
		return nil, cloud.ErrMissingCredentials
	}
	prompt, err := commands.ParseAnalysisPrompt(config.PromptTemplates.AnalysisPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis prompt: %w", err)
	}

	excerpt := config.Analysis.RawExcerptLength
	if excerpt <= 0 {
		excerpt = 500
	}
	requested := config.Analysis.RequestedRecommendations
	if requested <= 0 {
		requested = model.RequestedRecommendationCount
	}
	if config.Analysis.ValidateOutput && validatorCount(config.Analysis) != requested {
		return nil, fmt.Errorf("%w: prompt requests %d, validator expects %d",
			ErrRecommendationCountMismatch, requested, validatorCount(config.Analysis))
	}

	w := &SongAnalysisWorkflow{
		BaseCommand:   *cor.NewBaseCommand("song-analysis-workflow"),
		excerptLength: excerpt,
	}
	w.chain = newAnalysisChain(prompt, requested, generator, resolver, config.Analysis)
	return w, nil
}

func validatorCount(settings cloud.Analysis) int {
	if settings.ValidatorRecommendations <= 0 {
		return analysis.LegacyRecommendationCount
	}
	return settings.ValidatorRecommendations
}

func newAnalysisChain(
	prompt *template.Template,
	requested int,
	generator cloud.ContentGenerator,
	resolver commands.URLResolver,
	settings cloud.Analysis) cor.Chain {

	out := cor.NewBaseChain("song-analysis")
	out.AddCommand(commands.NewSongPromptCreator("create-analysis-prompt", prompt, requested))
	out.AddCommand(commands.NewAnalysisGenerator("generate-analysis", generator, settings.MaxRetries))
	out.AddCommand(commands.NewAnalysisExtractor("extract-analysis"))
	if settings.ValidateOutput {
		out.AddCommand(commands.NewAnalysisValidator("validate-analysis", validatorCount(settings)))
	}
	out.AddCommand(commands.NewURLEnricher("enrich-video-urls", resolver))
	return out
}

// Analyze splits the raw input and analyzes every song reference in it. More
// than one reference yields the multi-song wrapper. Items are independent: a
// failure in one does not stop the others.
func (w *SongAnalysisWorkflow) Analyze(ctx context.Context, raw string) *model.AnalysisResult {
	songs := analysis.Split(raw)
	if len(songs) == 1 {
		return w.AnalyzeSong(ctx, songs[0])
	}

	slog.InfoContext(ctx, "analyzing multiple songs", "count", len(songs))
	results := make([]*model.AnalysisResult, 0, len(songs))
	for _, song := range songs {
		results = append(results, w.AnalyzeSong(ctx, song))
	}
	return model.NewMultiSongResult(results)
}

// AnalyzeBatch analyzes each entry of the list as a single song reference.
func (w *SongAnalysisWorkflow) AnalyzeBatch(ctx context.Context, songs []string) *model.BatchResult {
	items := make([]model.BatchItem, 0, len(songs))
	for _, song := range songs {
		items = append(items, model.BatchItem{Input: song, Analysis: w.AnalyzeSong(ctx, song)})
	}
	return &model.BatchResult{BatchAnalysis: true, Count: len(items), Results: items}
}

// AnalyzeSong runs one song reference through the chain and never panics.
func (w *SongAnalysisWorkflow) AnalyzeSong(ctx context.Context, song string) (result *model.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "analysis panicked", "input", song, "panic", r)
			result = model.NewErrorResult(fmt.Sprintf("Error during analysis: %v", r), "", song)
			result.Source = song
		}
	}()

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, song)
	w.chain.Execute(chCtx)

	result = w.toResult(ctx, chCtx, song)
	result.Source = song
	return result
}

func (w *SongAnalysisWorkflow) toResult(ctx context.Context, chCtx cor.Context, song string) *model.AnalysisResult {
	if err := chCtx.FirstError(); err != nil {
		raw, _ := chCtx.Get(commands.KeyRawResponse).(string)
		switch {
		case errors.Is(err, analysis.ErrExtractionFailed):
			slog.WarnContext(ctx, "no json in model reply", "input", song, "reply_length", len(raw))
			return model.NewErrorResult(ExtractionFailedMessage, w.excerpt(raw), "")
		case errors.Is(err, commands.ErrInvalidAnalysis):
			slog.WarnContext(ctx, "model reply failed validation", "input", song, "error", err)
			return model.NewErrorResult(err.Error(), w.excerpt(raw), song)
		default:
			slog.ErrorContext(ctx, "analysis failed", "input", song, "error", err)
			return model.NewErrorResult(fmt.Sprintf("Error during analysis: %v", err), "", song)
		}
	}

	doc, ok := chCtx.Get(cor.CtxIn).(model.Analysis)
	if !ok {
		return model.NewErrorResult("Error during analysis: pipeline produced no analysis", "", song)
	}
	if missing := model.MissingRubricParameters(doc.InputSong()); len(missing) > 0 {
		slog.InfoContext(ctx, "analysis is missing rubric parameters", "input", song, "missing", missing)
	}
	return model.NewSuccessResult(doc)
}

// excerpt keeps the first excerptLength characters of an unparseable reply.
func (w *SongAnalysisWorkflow) excerpt(raw string) string {
	if raw == "" {
		return NoResponseMessage
	}
	runes := []rune(raw)
	if len(runes) > w.excerptLength {
		return string(runes[:w.excerptLength])
	}
	return raw
}

// Execute lets the workflow run as a step of a larger chain.
func (w *SongAnalysisWorkflow) Execute(context cor.Context) {
	song := context.Get(w.GetInputParam()).(string)
	result := w.Analyze(context.GetContext(), song)
	w.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(commands.KeyAnalysisResult, result)
	context.Add(w.GetOutputParam(), result)
}
