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

package analysis_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/analysis"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
	"github.com/zeebo/assert"
)

func exampleJSON(t *testing.T) string {
	b, err := json.Marshal(model.GetExampleAnalysis())
	assert.NoError(t, err)
	return string(b)
}

func decoded(t *testing.T, s string) model.Analysis {
	var doc map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(s), &doc))
	return model.Analysis(doc)
}

func TestExtractRoundTrip(t *testing.T) {
	raw := exampleJSON(t)
	want := decoded(t, raw)

	cases := map[string]string{
		"bare":     raw,
		"fenced":   "```json\n" + raw + "\n```",
		"prose":    "Here is the analysis you asked for:\n" + raw + "\nLet me know if you need more.",
		"fenced+":  "Sure!\n```json\n" + raw + "\n```\nDone.",
		"unclosed": "```json\n" + raw,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			assert.DeepEqual(t, analysis.Extract(text), want)
		})
	}
}

func TestExtractGarbage(t *testing.T) {
	for _, text := range []string{"", "   ", "this is not json", "{ not: json }", "[1,2,3]", "}{", "{}", "```json\n{}\n```", "null"} {
		assert.That(t, analysis.Extract(text) == nil)
	}

	_, err := analysis.ExtractAnalysis("this is not json")
	assert.That(t, errors.Is(err, analysis.ErrExtractionFailed))

	_, err = analysis.ExtractAnalysis("{}")
	assert.That(t, errors.Is(err, analysis.ErrExtractionFailed))
}

func TestExtractBraceFallbackAfterBadFence(t *testing.T) {
	text := "```json\nnot json\n``` but later {\"disclaimer\": \"x\"}"
	doc := analysis.Extract(text)
	assert.NotNil(t, doc)
	assert.Equal(t, doc.Disclaimer(), "x")
}

func TestSplit(t *testing.T) {
	assert.DeepEqual(t, analysis.Split("Song 1\nSong 2\nSong 3"), []string{"Song 1", "Song 2", "Song 3"})
	assert.DeepEqual(t, analysis.Split("Song 1\n\n  \n Song 2 "), []string{"Song 1", "Song 2"})
	assert.DeepEqual(t, analysis.Split("https://a.com/1, https://b.com/2"), []string{"https://a.com/1", "https://b.com/2"})
	assert.DeepEqual(t, analysis.Split("www.a.com/1,www.b.com/2,"), []string{"www.a.com/1", "www.b.com/2"})
	assert.DeepEqual(t, analysis.Split("Bohemian Rhapsody by Queen"), []string{"Bohemian Rhapsody by Queen"})
	assert.DeepEqual(t, analysis.Split("Shook Ones, Pt. II"), []string{"Shook Ones, Pt. II"})
	assert.DeepEqual(t, analysis.Split("  \n  "), []string{""})
}

func validDoc(recommendations int) model.Analysis {
	recs := make([]interface{}, recommendations)
	for i := range recs {
		recs[i] = map[string]interface{}{"song_name": "s", "artist": "a", "rationale": "r"}
	}
	return model.Analysis{
		"disclaimer":          "d",
		"input_song_analysis": map[string]interface{}{"parameters": map[string]interface{}{}},
		"recommendations":     recs,
	}
}

func TestValidate(t *testing.T) {
	assert.That(t, analysis.Validate(validDoc(analysis.LegacyRecommendationCount)).Valid)
	assert.That(t, analysis.ValidateCount(validDoc(model.RequestedRecommendationCount), model.RequestedRecommendationCount).Valid)

	doc := validDoc(3)
	delete(doc, "recommendations")
	res := analysis.Validate(doc)
	assert.That(t, !res.Valid)
	assert.Equal(t, res.Error, "Missing required keys: [recommendations]")

	doc = validDoc(3)
	doc["input_song_analysis"] = map[string]interface{}{}
	assert.Equal(t, analysis.Validate(doc).Error, "Missing 'parameters' in input_song_analysis")

	doc = validDoc(3)
	doc["input_song_analysis"] = map[string]interface{}{"parameters": []interface{}{}}
	assert.Equal(t, analysis.Validate(doc).Error, "'parameters' in input_song_analysis must be an object")

	assert.Equal(t, analysis.Validate(validDoc(6)).Error, "Recommendations must be a list of exactly 3 items")

	doc = validDoc(3)
	delete(doc["recommendations"].([]interface{})[1].(map[string]interface{}), "artist")
	assert.Equal(t, analysis.Validate(doc).Error, "Each recommendation must have song_name, artist, and rationale")
}

func TestValidateExampleAgainstRequestedCount(t *testing.T) {
	doc := decoded(t, exampleJSON(t))
	assert.That(t, analysis.ValidateCount(doc, model.RequestedRecommendationCount).Valid)
	assert.That(t, !analysis.Validate(doc).Valid)
}

func TestValidateJSON(t *testing.T) {
	res := analysis.ValidateJSON("{")
	assert.That(t, !res.Valid)
	assert.That(t, len(res.Error) > len("Invalid JSON: "))
}
