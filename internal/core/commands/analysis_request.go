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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// first and last steps of the Pub/Sub analysis request pipeline.
//
// Logic Flow:
//  1. AnalysisRequestReader decodes the message body. A JSON object with an
//     "input" field and a plain text body are both accepted.
//  2. The analysis workflow runs on the decoded song reference.
//  3. AnalysisResultPersister saves the result to the history store.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/cor"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// ErrEmptyRequest is recorded for a message without a song reference.
var ErrEmptyRequest = errors.New("analysis request has no input")

// AnalysisRequest is the JSON form of a queued analysis request.
type AnalysisRequest struct {
	Input string `json:"input"`
}

// DecodeAnalysisRequest returns the song reference carried by body.
func DecodeAnalysisRequest(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		var req AnalysisRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return "", fmt.Errorf("failed to unmarshal analysis request: %w", err)
		}
		trimmed = strings.TrimSpace(req.Input)
	}
	if trimmed == "" {
		return "", ErrEmptyRequest
	}
	return trimmed, nil
}

// AnalysisRequestReader decodes a Pub/Sub message into a song reference.
type AnalysisRequestReader struct {
	cor.BaseCommand
}

func NewAnalysisRequestReader(name string) *AnalysisRequestReader {
	return &AnalysisRequestReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *AnalysisRequestReader) Execute(context cor.Context) {
	in := context.Get(c.GetInputParam()).(string)

	input, err := DecodeAnalysisRequest(in)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(KeySongInput, input)
	context.Add(c.GetOutputParam(), input)
}

// ResultSaver persists an analysis result and returns the history ids.
type ResultSaver interface {
	SaveResult(ctx context.Context, input string, result *model.AnalysisResult) ([]int64, error)
}

// AnalysisResultPersister saves the workflow output.
type AnalysisResultPersister struct {
	cor.BaseCommand
	saver ResultSaver
}

func NewAnalysisResultPersister(name string, saver ResultSaver) *AnalysisResultPersister {
	return &AnalysisResultPersister{BaseCommand: *cor.NewBaseCommand(name), saver: saver}
}

func (p *AnalysisResultPersister) Execute(context cor.Context) {
	result := context.Get(p.GetInputParam()).(*model.AnalysisResult)
	input, _ := context.Get(KeySongInput).(string)

	ids, err := p.saver.SaveResult(context.GetContext(), input, result)
	if err != nil {
		p.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(p.GetName(), fmt.Errorf("failed to save analysis for %q: %w", input, err))
		return
	}

	slog.InfoContext(context.GetContext(), "saved queued analysis", "input", input, "ids", ids, "success", result.Succeeded())
	p.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(KeyAnalysisID, ids)
	context.Add(p.GetOutputParam(), result)
}
