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
// command that sends the analysis prompt to the generative model.
//
// Logic Flow:
//  1. It receives the rendered prompt from the context.
//  2. It sends it to the model through cloud.GenerateTextResponse, which
//     applies the configured retries and records token usage.
//  3. The raw reply is stored under KeyRawResponse, for diagnosis when
//     extraction fails, and as the command output.
package commands

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/gcp-go-tune-trace/internal/cloud"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/cor"
)

// AnalysisGenerator calls the generative model with a prompt.
type AnalysisGenerator struct {
	cor.BaseCommand
	generativeAIModel        cloud.ContentGenerator
	maxRetries               int
	geminiInputTokenCounter  metric.Int64Counter
	geminiOutputTokenCounter metric.Int64Counter
	geminiRetryCounter       metric.Int64Counter
}

// NewAnalysisGenerator builds the command. maxRetries is the number of extra
// attempts after a failed call; zero means a single call.
func NewAnalysisGenerator(name string, generativeAIModel cloud.ContentGenerator, maxRetries int) *AnalysisGenerator {
	out := &AnalysisGenerator{
		BaseCommand:       *cor.NewBaseCommand(name),
		generativeAIModel: generativeAIModel,
		maxRetries:        maxRetries,
	}
	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.geminiRetryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.retry", out.GetName()))
	return out
}

func (t *AnalysisGenerator) Execute(context cor.Context) {
	prompt := context.Get(t.GetInputParam()).(string)

	out, err := cloud.GenerateTextResponse(
		context.GetContext(),
		t.geminiInputTokenCounter,
		t.geminiOutputTokenCounter,
		t.geminiRetryCounter,
		t.maxRetries,
		t.generativeAIModel,
		cloud.NewTextContent(prompt))
	if err != nil {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), fmt.Errorf("gemini request failed: %w", err))
		return
	}

	t.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(KeyRawResponse, out)
	context.Add(t.GetOutputParam(), out)
}
