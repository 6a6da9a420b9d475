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

// Package commands holds the concrete pipeline steps the song analysis
// workflows are built from. Each step embeds cor.BaseCommand, reads its input
// from the chain context and records failures with AddError.
package commands

// Context keys shared between commands and the workflows that read them.
const (
	// KeySongInput holds the single song reference being analysed.
	KeySongInput = "__SONG_INPUT__"
	// KeyRawResponse holds the unparsed model reply.
	KeyRawResponse = "__RAW_RESPONSE__"
	// KeyAnalysisResult holds the *model.AnalysisResult of a request pipeline.
	KeyAnalysisResult = "__ANALYSIS_RESULT__"
	// KeyAnalysisID holds the history id of a saved analysis.
	KeyAnalysisID = "__ANALYSIS_ID__"
)
