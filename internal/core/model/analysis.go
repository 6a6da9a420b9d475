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

// Package model defines the data structures shared by the analysis pipeline,
// the download manager and the history store.
//
// An analysis reply from the generative model is kept as a loosely typed JSON
// document (Analysis) so that a malformed but parseable reply survives intact
// until a validator or a caller decides what to do with it. Typed read-only
// views (SongAnalysis, ParameterValue) are derived from it on demand.
package model

import (
	"encoding/json"
	"strings"
)

// Document keys produced by the model and consumed by enrichment, validation
// and persistence.
const (
	KeyDisclaimer        = "disclaimer"
	KeyInputSongAnalysis = "input_song_analysis"
	KeyRecommendations   = "recommendations"
	KeyParameters        = "parameters"
	KeySongName          = "song_name"
	KeyArtist            = "artist"
	KeyRationale         = "rationale"
	KeyYouTubeURL        = "youtube_url"
	KeyValue             = "value"
	KeyConfidenceScore   = "confidence_score"
)

// WildcardMarker tags the wildcard recommendation inside its rationale.
const WildcardMarker = "[WILDCARD]"

// RequestedRecommendationCount is how many recommendations the prompt asks
// for: four direct matches, one creative match and one wildcard.
const RequestedRecommendationCount = 6

// Analysis is a decoded model reply. Successful replies carry disclaimer,
// input_song_analysis and recommendations at the top level.
type Analysis map[string]interface{}

// Clone returns a deep copy. Nested objects and arrays are copied, scalars
// are shared.
func (a Analysis) Clone() Analysis {
	if a == nil {
		return nil
	}
	return Analysis(cloneObject(a))
}

func cloneObject(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneObject(t)
	case Analysis:
		return Analysis(cloneObject(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// InputSongObject returns the raw input_song_analysis object when present.
func (a Analysis) InputSongObject() (map[string]interface{}, bool) {
	obj, ok := a[KeyInputSongAnalysis].(map[string]interface{})
	return obj, ok
}

// RecommendationObjects returns the raw recommendation entries that are
// objects, skipping anything else the model may have put in the array.
func (a Analysis) RecommendationObjects() []map[string]interface{} {
	items, ok := a[KeyRecommendations].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]interface{}); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Disclaimer returns the disclaimer text, or "".
func (a Analysis) Disclaimer() string {
	return StringField(a, KeyDisclaimer)
}

// InputSong is the typed view of input_song_analysis.
func (a Analysis) InputSong() SongAnalysis {
	obj, _ := a.InputSongObject()
	return SongFromObject(obj)
}

// Recommendations is the typed view of the recommendation list, in order.
func (a Analysis) Recommendations() []SongAnalysis {
	objs := a.RecommendationObjects()
	out := make([]SongAnalysis, 0, len(objs))
	for _, obj := range objs {
		out = append(out, SongFromObject(obj))
	}
	return out
}

// StringField reads a string field from a JSON object, returning "" for a
// missing or non-string value.
func StringField(obj map[string]interface{}, key string) string {
	if obj == nil {
		return ""
	}
	s, _ := obj[key].(string)
	return s
}

// ParameterValue is one rubric judgement.
type ParameterValue struct {
	Value           interface{} `json:"value"`
	ConfidenceScore *float64    `json:"confidence_score,omitempty"`
}

// GenreValue is the object shape of the "Genre / Subgenre" parameter.
type GenreValue struct {
	Genre    string `json:"genre"`
	Subgenre string `json:"subgenre"`
}

// Genre decodes the value as a GenreValue. It reports false for the scalar
// shape some replies use instead.
func (p ParameterValue) Genre() (GenreValue, bool) {
	obj, ok := p.Value.(map[string]interface{})
	if !ok {
		return GenreValue{}, false
	}
	return GenreValue{Genre: StringField(obj, "genre"), Subgenre: StringField(obj, "subgenre")}, true
}

// SongAnalysis is the typed view of the input song or of one recommendation.
type SongAnalysis struct {
	SongName   string                    `json:"song_name"`
	Artist     string                    `json:"artist"`
	YouTubeURL string                    `json:"youtube_url,omitempty"`
	Rationale  string                    `json:"rationale,omitempty"`
	Parameters map[string]ParameterValue `json:"parameters,omitempty"`

	// ParametersIsObject is false when the reply carried parameters in some
	// other shape (typically an array). Such parameters are not indexed.
	ParametersIsObject bool `json:"-"`
}

// IsWildcard reports whether the rationale carries the wildcard marker.
func (s SongAnalysis) IsWildcard() bool {
	return strings.Contains(s.Rationale, WildcardMarker)
}

// SongFromObject builds the typed view from a raw object. Fields of the wrong
// type read as empty.
func SongFromObject(obj map[string]interface{}) SongAnalysis {
	out := SongAnalysis{
		SongName:   StringField(obj, KeySongName),
		Artist:     StringField(obj, KeyArtist),
		YouTubeURL: StringField(obj, KeyYouTubeURL),
		Rationale:  StringField(obj, KeyRationale),
		Parameters: make(map[string]ParameterValue),
	}
	params, ok := obj[KeyParameters].(map[string]interface{})
	if !ok {
		return out
	}
	out.ParametersIsObject = true
	for name, raw := range params {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		pv := ParameterValue{Value: entry[KeyValue]}
		if score, ok := entry[KeyConfidenceScore].(float64); ok {
			pv.ConfidenceScore = &score
		}
		out.Parameters[name] = pv
	}
	return out
}

// AnalysisResult is what one analysis call returns. Exactly one shape is set:
//   - success: Analysis holds the decoded, enriched reply;
//   - error: Error is set, with RawResponse and/or Input for diagnosis;
//   - multi-song: Results holds one result per song reference.
type AnalysisResult struct {
	Analysis    Analysis
	Error       string
	RawResponse string
	Input       string
	Results     []*AnalysisResult

	// Source is the song reference the result was produced for. It is not
	// part of the JSON shape.
	Source string
}

// NewSuccessResult wraps a decoded reply.
func NewSuccessResult(analysis Analysis) *AnalysisResult {
	return &AnalysisResult{Analysis: analysis}
}

// NewErrorResult builds the error variant.
func NewErrorResult(message string, rawResponse string, input string) *AnalysisResult {
	return &AnalysisResult{Error: message, RawResponse: rawResponse, Input: input}
}

// NewMultiSongResult wraps independent per-song results.
func NewMultiSongResult(results []*AnalysisResult) *AnalysisResult {
	if results == nil {
		results = make([]*AnalysisResult, 0)
	}
	return &AnalysisResult{Results: results}
}

// IsMultiple reports the multi-song wrapper shape.
func (r *AnalysisResult) IsMultiple() bool {
	return r.Results != nil
}

// IsError reports the error variant.
func (r *AnalysisResult) IsError() bool {
	return !r.IsMultiple() && r.Analysis == nil
}

// Succeeded is true for a success result and for a multi-song wrapper whose
// items all succeeded.
func (r *AnalysisResult) Succeeded() bool {
	if r.IsMultiple() {
		for _, item := range r.Results {
			if !item.Succeeded() {
				return false
			}
		}
		return len(r.Results) > 0
	}
	return !r.IsError()
}

// MarshalJSON renders the shape that is set.
func (r *AnalysisResult) MarshalJSON() ([]byte, error) {
	switch {
	case r.IsMultiple():
		return json.Marshal(struct {
			MultipleSongs bool              `json:"multiple_songs"`
			Count         int               `json:"count"`
			Results       []*AnalysisResult `json:"results"`
		}{MultipleSongs: true, Count: len(r.Results), Results: r.Results})
	case r.IsError():
		return json.Marshal(struct {
			Error       string `json:"error"`
			RawResponse string `json:"raw_response,omitempty"`
			Input       string `json:"input,omitempty"`
		}{Error: r.Error, RawResponse: r.RawResponse, Input: r.Input})
	default:
		return json.Marshal(map[string]interface{}(r.Analysis))
	}
}

// BatchItem pairs one batch input with its result.
type BatchItem struct {
	Input    string          `json:"input"`
	Analysis *AnalysisResult `json:"analysis"`
}

// BatchResult is returned by a batch analysis.
type BatchResult struct {
	BatchAnalysis bool        `json:"batch_analysis"`
	Count         int         `json:"count"`
	Results       []BatchItem `json:"results"`
}
