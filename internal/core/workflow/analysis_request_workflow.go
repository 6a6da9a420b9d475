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

package workflow

import (
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/commands"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/cor"
)

// AnalysisRequestWorkflow handles one queued analysis request. The message
// body is decoded, analyzed by the orchestrator and saved to history.
type AnalysisRequestWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

func NewAnalysisRequestWorkflow(analyzer *SongAnalysisWorkflow, saver commands.ResultSaver) *AnalysisRequestWorkflow {
	out := cor.NewBaseChain("analysis-request")
	out.AddCommand(commands.NewAnalysisRequestReader("read-analysis-request"))
	out.AddCommand(analyzer)
	out.AddCommand(commands.NewAnalysisResultPersister("save-analysis", saver))

	return &AnalysisRequestWorkflow{
		BaseCommand: *cor.NewBaseCommand("analysis-request-workflow"),
		chain:       out,
	}
}

func (w *AnalysisRequestWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}
