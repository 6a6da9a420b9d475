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
// command that attaches a playable video URL to every song of an analysis.
//
// Logic Flow:
//  1. It receives the extracted analysis from the context.
//  2. It deep copies it, so the extractor's output is never mutated.
//  3. For the input song and each recommendation that has both a song name
//     and an artist, it asks the resolver for a URL and stores it under
//     youtube_url. The resolver always answers, with a search sentinel when
//     no video is found.
//  4. If enrichment panics, the un-enriched copy is passed on; enrichment
//     never fails the analysis.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/cor"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

// URLResolver finds a playable URL, or a search sentinel, for a song.
type URLResolver interface {
	Resolve(ctx context.Context, songName string, artist string) string
}

// URLEnricher adds youtube_url fields to an analysis.
type URLEnricher struct {
	cor.BaseCommand
	resolver URLResolver
}

func NewURLEnricher(name string, resolver URLResolver) *URLEnricher {
	return &URLEnricher{BaseCommand: *cor.NewBaseCommand(name), resolver: resolver}
}

func (e *URLEnricher) Execute(context cor.Context) {
	doc := context.Get(e.GetInputParam()).(model.Analysis)

	enriched, err := Enrich(context.GetContext(), doc, e.resolver)
	if err != nil {
		slog.WarnContext(context.GetContext(), "failed to add video urls", "error", err)
		e.GetErrorCounter().Add(context.GetContext(), 1)
		context.Add(e.GetOutputParam(), doc.Clone())
		return
	}

	e.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(e.GetOutputParam(), enriched)
}

// Enrich returns a copy of doc with youtube_url set on every song that names
// both a title and an artist. doc is left untouched.
func Enrich(ctx context.Context, doc model.Analysis, resolver URLResolver) (out model.Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("enrichment panicked: %v", r)
		}
	}()

	out = doc.Clone()
	if input, ok := out.InputSongObject(); ok {
		enrichSong(ctx, input, resolver)
	}
	recs := out.RecommendationObjects()
	for i, rec := range recs {
		slog.DebugContext(ctx, "resolving recommendation url", "index", i+1, "total", len(recs))
		enrichSong(ctx, rec, resolver)
	}
	return out, nil
}

func enrichSong(ctx context.Context, song map[string]interface{}, resolver URLResolver) {
	name := model.StringField(song, model.KeySongName)
	artist := model.StringField(song, model.KeyArtist)
	if name == "" || artist == "" {
		return
	}
	song[model.KeyYouTubeURL] = resolver.Resolve(ctx, name, artist)
}
