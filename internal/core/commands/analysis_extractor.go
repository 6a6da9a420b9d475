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

package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/analysis"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/cor"
)

// AnalysisExtractor turns the raw model reply into a model.Analysis. An empty
// reply still runs, so that it is reported as an extraction failure.
type AnalysisExtractor struct {
	cor.BaseCommand
}

func NewAnalysisExtractor(name string) *AnalysisExtractor {
	return &AnalysisExtractor{BaseCommand: *cor.NewBaseCommand(name)}
}

func (s *AnalysisExtractor) IsExecutable(context cor.Context) bool {
	if context == nil || context.GetContext() == nil {
		return false
	}
	_, ok := context.Get(s.GetInputParam()).(string)
	return ok
}

func (s *AnalysisExtractor) Execute(context cor.Context) {
	raw := context.Get(s.GetInputParam()).(string)

	doc, err := analysis.ExtractAnalysis(raw)
	if err != nil {
		s.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(s.GetName(), fmt.Errorf("failed to extract analysis: %w", err))
		return
	}

	s.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(s.GetOutputParam(), doc)
}
