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

// Package analysis holds the pure text and document handling of the song
// analysis pipeline: pulling a JSON object out of a model reply, checking its
// structure and splitting raw user input into song references.
package analysis

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// ErrExtractionFailed is returned when no strategy finds a JSON object in a
// model reply.
var ErrExtractionFailed = errors.New("no JSON object found in model reply")

const jsonFence = "```json"
const fence = "```"

// Extract pulls a JSON object out of free text. It tries, in order, the whole
// text, the interior of a json-tagged code fence and the span from the first
// '{' to the last '}'. It returns nil when the text is empty or every attempt
// fails. An empty object counts as a failed attempt. No repair is attempted on malformed JSON.
func Extract(text string) model.Analysis {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if doc, ok := decodeObject(text); ok {
		return doc
	}
	if start := strings.Index(text, jsonFence); start >= 0 {
		body := text[start+len(jsonFence):]
		if end := strings.Index(body, fence); end >= 0 {
			body = body[:end]
		}
		if doc, ok := decodeObject(strings.TrimSpace(body)); ok {
			return doc
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if doc, ok := decodeObject(text[start : end+1]); ok {
			return doc
		}
	}
	return nil
}

// ExtractAnalysis is Extract with an error return for callers that branch on
// failure.
func ExtractAnalysis(text string) (model.Analysis, error) {
	doc := Extract(text)
	if doc == nil {
		return nil, ErrExtractionFailed
	}
	return doc, nil
}

func decodeObject(s string) (model.Analysis, bool) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(s), &doc); err != nil || len(doc) == 0 {
		return nil, false
	}
	return model.Analysis(doc), true
}
