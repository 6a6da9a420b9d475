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

import "strings"

// Split turns raw user input into one or more song references. Newlines
// always separate references; commas only do when the input looks like a URL
// list, so titles containing commas stay whole. The result is never empty.
func Split(raw string) []string {
	var parts []string
	switch {
	case strings.Contains(raw, "\n"):
		parts = splitTrim(raw, "\n")
	case strings.Contains(raw, ",") && (strings.Contains(raw, "http") || strings.Contains(raw, "www")):
		parts = splitTrim(raw, ",")
	}
	if len(parts) == 0 {
		return []string{strings.TrimSpace(raw)}
	}
	return parts
}

func splitTrim(raw string, sep string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
