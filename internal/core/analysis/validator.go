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

package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// LegacyRecommendationCount is the recommendation count the structural
// validator has always enforced. It differs from
// model.RequestedRecommendationCount, which is what the prompt asks for; use
// ValidateCount to check against either.
const LegacyRecommendationCount = 3

var requiredKeys = []string{model.KeyDisclaimer, model.KeyInputSongAnalysis, model.KeyRecommendations}

var requiredRecommendationKeys = []string{model.KeySongName, model.KeyArtist, model.KeyRationale}

// ValidationResult reports the first structural problem found, if any.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func invalid(format string, args ...interface{}) ValidationResult {
	return ValidationResult{Error: fmt.Sprintf(format, args...)}
}

// Validate checks doc against LegacyRecommendationCount.
func Validate(doc model.Analysis) ValidationResult {
	return ValidateCount(doc, LegacyRecommendationCount)
}

// ValidateCount checks the structure of a decoded analysis, stopping at the
// first failure. Rubric completeness is not checked here.
func ValidateCount(doc model.Analysis, recommendations int) ValidationResult {
	missing := make([]string, 0)
	for _, key := range requiredKeys {
		if _, ok := doc[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return invalid("Missing required keys: %v", missing)
	}

	input, _ := doc.InputSongObject()
	params, ok := input[model.KeyParameters]
	if !ok {
		return invalid("Missing 'parameters' in input_song_analysis")
	}
	if _, ok := params.(map[string]interface{}); !ok {
		return invalid("'parameters' in input_song_analysis must be an object")
	}

	recs, ok := doc[model.KeyRecommendations].([]interface{})
	if !ok || len(recs) != recommendations {
		return invalid("Recommendations must be a list of exactly %d items", recommendations)
	}
	for _, item := range recs {
		rec, _ := item.(map[string]interface{})
		for _, key := range requiredRecommendationKeys {
			if _, ok := rec[key]; !ok {
				return invalid("Each recommendation must have song_name, artist, and rationale")
			}
		}
	}
	return ValidationResult{Valid: true}
}

// ValidateJSON decodes raw JSON and validates it against
// LegacyRecommendationCount.
func ValidateJSON(raw string) ValidationResult {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return invalid("Invalid JSON: %v", err)
	}
	return Validate(model.Analysis(doc))
}
