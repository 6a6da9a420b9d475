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
	"errors"
	"fmt"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/analysis"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/cor"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// ErrInvalidAnalysis wraps a structural validation failure.
var ErrInvalidAnalysis = errors.New("analysis failed validation")

// AnalysisValidator is the optional structural check between extraction and
// enrichment. The analysis passes through unchanged when valid.
type AnalysisValidator struct {
	cor.BaseCommand
	recommendations int
}

// NewAnalysisValidator checks for exactly recommendations entries.
func NewAnalysisValidator(name string, recommendations int) *AnalysisValidator {
	return &AnalysisValidator{BaseCommand: *cor.NewBaseCommand(name), recommendations: recommendations}
}

func (v *AnalysisValidator) Execute(context cor.Context) {
	doc := context.Get(v.GetInputParam()).(model.Analysis)

	if res := analysis.ValidateCount(doc, v.recommendations); !res.Valid {
		v.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(v.GetName(), fmt.Errorf("%w: %s", ErrInvalidAnalysis, res.Error))
		return
	}

	v.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(v.GetOutputParam(), doc)
}
