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

// This file implements the analysis service used by the HTTP handlers: run the
// orchestrator, save the outcome, export parameters for analytics.

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/commands"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// Analyzer is implemented by workflow.SongAnalysisWorkflow.
type Analyzer interface {
	Analyze(ctx context.Context, raw string) *model.AnalysisResult
	AnalyzeBatch(ctx context.Context, songs []string) *model.BatchResult
}

// AnalyzeResponse is the body returned for a single analysis request.
type AnalyzeResponse struct {
	Success     bool                  `json:"success"`
	Data        *model.AnalysisResult `json:"data,omitempty"`
	Error       string                `json:"error,omitempty"`
	Input       string                `json:"input"`
	AnalysisID  int64                 `json:"analysis_id,omitempty"`
	AnalysisIDs []int64               `json:"analysis_ids,omitempty"`
	Message     string                `json:"message,omitempty"`
}

// AnalysisService wires the orchestrator to the history store and the
// optional analytics export.
type AnalysisService struct {
	Analyzer Analyzer
	Store    commands.ResultSaver
	Exporter *ParameterExporter
}

// AnalyzeAndSave analyzes input, saves the result (failed results too) and
// exports parameter rows of the successful items.
//
// Inputs:
//   - ctx: The request context.
//   - input: The raw text the user submitted; may hold several songs.
//
// Outputs:
//   - *AnalyzeResponse: Success mirrors the result shape. Error variants have
//     Success false and carry the error message.
//   - error: Only a storage failure is returned as an error.
func (s *AnalysisService) AnalyzeAndSave(ctx context.Context, input string) (*AnalyzeResponse, error) {
	result := s.Analyzer.Analyze(ctx, input)

	ids, err := s.Store.SaveResult(ctx, input, result)
	if err != nil {
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	s.export(ctx, ids, result)

	out := &AnalyzeResponse{Input: input, AnalysisIDs: ids}
	if len(ids) > 0 {
		out.AnalysisID = ids[0]
	}
	if result.IsError() {
		out.Error = result.Error
		return out, nil
	}
	out.Success = true
	out.Data = result
	return out, nil
}

// MoreRecommendations re-runs the analysis for fresh recommendations without
// saving.
func (s *AnalysisService) MoreRecommendations(ctx context.Context, input string) *AnalyzeResponse {
	result := s.Analyzer.Analyze(ctx, input)
	if result.IsError() {
		return &AnalyzeResponse{Input: input, Error: result.Error}
	}
	return &AnalyzeResponse{Success: true, Data: result, Input: input, Message: "Generated new recommendations"}
}

// AnalyzeBatch analyzes every entry independently. Batch results are not
// saved.
func (s *AnalysisService) AnalyzeBatch(ctx context.Context, songs []string) *model.BatchResult {
	return s.Analyzer.AnalyzeBatch(ctx, songs)
}

func (s *AnalysisService) export(ctx context.Context, ids []int64, result *model.AnalysisResult) {
	if s.Exporter == nil {
		return
	}
	items := []*model.AnalysisResult{result}
	if result.IsMultiple() {
		items = result.Results
	}
	now := time.Now().UTC()
	for i, item := range items {
		if i >= len(ids) || !item.Succeeded() {
			continue
		}
		n, err := s.Exporter.Export(ctx, ids[i], item.Analysis, now)
		if err != nil {
			slog.WarnContext(ctx, "parameter export failed", "analysis_id", ids[i], "error", err)
			continue
		}
		slog.DebugContext(ctx, "exported parameters", "analysis_id", ids[i], "rows", n)
	}
}
