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
// command that builds the analysis prompt.
//
// Logic Flow:
//  1. It receives the song reference from the context.
//  2. It renders the prompt template with the rubric table, the priority
//     checklist, a complete few-shot example reply and the number of
//     recommendations to ask for.
//  3. It places the prompt in the context for AnalysisGenerator.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/cor"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// DefaultAnalysisPrompt is used when the configuration does not supply one.
const DefaultAnalysisPrompt = `You are an expert musicologist and data analyst. As a core component of TuneTrace.AI, a music discovery engine, your task is to receive information about a single song (by URL, song name or artist), analyze it against the detailed {{.PARAMETER_COUNT}}-parameter rubric, and then recommend {{.RECOMMENDATION_COUNT}} new songs that are strong matches.

## Core Instructions

1.  **Analyze the Input Song:**
    *   Use your knowledge to analyze the song the user describes.
    *   For each parameter in the rubric below, provide a specific 'value' annotation.
    *   For each parameter, also include a 'confidence_score' from 0.0 (uncertain) to 1.0 (highly confident).

2.  **Generate Recommendations:**
    *   Identify {{.RECOMMENDATION_COUNT}} new songs. **Do not recommend other songs by the same primary artist** as the input song.
    *   Recommendations 1-4 should be strong, direct matches with similar characteristics.
    *   Recommendation 5 should be a "creative match": slightly different but still compatible.
    *   Recommendation 6 **must** be a "wildcard": a song that differs from the input song in at least two HIGH-weightage categories but shares a key 'Intangible Vibe' or 'Mood / Tone'. Start its rationale with {{.WILDCARD_MARKER}}.
    *   For each recommendation analyze ALL parameters with confidence scores and give a concise 'rationale' (2-3 sentences) explaining why it is a good match, written for a casual music lover.

3.  **Adhere to Output Format:**
    *   Output a single JSON object with three top-level keys: 'disclaimer', 'input_song_analysis' and 'recommendations'.
    *   'input_song_analysis' MUST have 'song_name', 'artist' and 'parameters'.
    *   Each recommendation MUST have 'song_name', 'artist', 'rationale' and 'parameters'.
    *   'parameters' MUST be a JSON object keyed by parameter name, NOT an array.
    *   For "{{.GENRE_PARAMETER}}" always use {"genre": "GenreName", "subgenre": "SubgenreName"} as the value.
    *   Video URLs are added after analysis; do not invent them.

4.  **Handle Uncertainty & Bias:**
    *   If you cannot identify the song or a parameter, reflect this in the 'confidence_score' and say so in the 'value'.
    *   If a title is ambiguous, default to the most famous version and note this in 'song_name'.
    *   Strive for diversity in artists and subgenres, especially for the wildcard.

## Music Analysis Rubric

{{.RUBRIC_TABLE}}
## Key Parameters to Always Include:
{{.RUBRIC_CHECKLIST}}
## Output Example

{{.EXAMPLE_JSON}}

---

Now analyze this song:

{{.SONG_INPUT}}

Remember to output ONLY valid JSON in the exact format specified, with all {{.PARAMETER_COUNT}} parameters and {{.RECOMMENDATION_COUNT}} recommendations.
`

// ParseAnalysisPrompt parses text, or DefaultAnalysisPrompt when text is empty.
func ParseAnalysisPrompt(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultAnalysisPrompt
	}
	return template.New("analysis-prompt").Parse(text)
}

// SongPromptCreator renders the analysis prompt for one song reference.
type SongPromptCreator struct {
	cor.BaseCommand
	template        *template.Template
	recommendations int
	exampleJSON     string
}

// NewSongPromptCreator builds the command. recommendations is the count the
// prompt asks the model for.
func NewSongPromptCreator(name string, template *template.Template, recommendations int) *SongPromptCreator {
	example, _ := json.MarshalIndent(model.GetExampleAnalysis(), "", "  ")
	return &SongPromptCreator{
		BaseCommand:     *cor.NewBaseCommand(name),
		template:        template,
		recommendations: recommendations,
		exampleJSON:     string(example),
	}
}

// GenerateParams returns the template data for songInput.
func (t *SongPromptCreator) GenerateParams(songInput string) map[string]interface{} {
	return map[string]interface{}{
		"PARAMETER_COUNT":      len(model.Rubric),
		"RECOMMENDATION_COUNT": t.recommendations,
		"WILDCARD_MARKER":      model.WildcardMarker,
		"GENRE_PARAMETER":      model.GenreParameterName,
		"RUBRIC_TABLE":         model.RubricTable(),
		"RUBRIC_CHECKLIST":     model.RubricChecklist(),
		"EXAMPLE_JSON":         t.exampleJSON,
		"SONG_INPUT":           songInput,
	}
}

func (t *SongPromptCreator) Execute(context cor.Context) {
	songInput, _ := context.Get(t.GetInputParam()).(string)

	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, t.GenerateParams(songInput)); err != nil {
		t.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(t.GetName(), fmt.Errorf("failed to execute prompt template: %w", err))
		return
	}

	t.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(t.GetOutputParam(), buffer.String())
}
