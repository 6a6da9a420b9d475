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

package services_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/services"
)

var (
	mp3Bytes = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
)

// scriptedFetcher writes a file (or fails) per source.
type scriptedFetcher struct {
	mu      sync.Mutex
	files   map[string][]byte
	sources []string
	block   chan struct{}
	started chan struct{}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, source string, dir string, kind model.MediaKind, onProgress func(model.Progress)) error {
	f.mu.Lock()
	f.sources = append(f.sources, source)
	f.mu.Unlock()

	if f.block != nil {
		if f.started != nil {
			close(f.started)
			f.started = nil
		}
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	content, ok := f.files[source]
	if !ok {
		return errors.New("ERROR: Video unavailable")
	}
	onProgress(model.Progress{Percent: 50, Speed: "1MiB/s", ETA: "00:01"})
	name := strings.NewReplacer("/", "_", ":", "_").Replace(source) + "." + kind.Extension()
	return os.WriteFile(filepath.Join(dir, name), content, 0o644)
}

func (f *scriptedFetcher) Sources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

type eventLog struct {
	mu     sync.Mutex
	events []model.DownloadEvent
}

func (l *eventLog) Add(e model.DownloadEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func TestDownloadMixedBatch(t *testing.T) {
	fetcher := &scriptedFetcher{files: map[string][]byte{
		"https://youtu.be/aaaaaaaaaaa":             mp3Bytes,
		model.SearchSentinel("Song B", "Artist B"): mp3Bytes,
		"https://youtu.be/ddddddddddd":             pngBytes,
	}}
	mgr := services.NewDownloadManager(fetcher, t.TempDir(), 0)
	items := []model.DownloadItem{
		{Title: "Song A", Artist: "Artist A", URL: "https://youtu.be/aaaaaaaaaaa"},
		{Title: "Song B", Artist: "Artist B", URL: "https://youtu.be/bbbbbbbbbbb"},
		{Title: "Song C", Artist: "Artist C"},
		{Title: "Song D", Artist: "Artist D", URL: "https://youtu.be/ddddddddddd"},
	}
	rec := &eventLog{}

	session, err := mgr.Download(context.Background(), "mixed", "Road Trip", items, model.MediaAudio, rec.Add)
	assert.NoError(t, err)

	assert.Equal(t, session.Status, model.SessionCompleted)
	assert.Equal(t, session.Total, 4)
	assert.DeepEqual(t, session.Completed, []string{"Artist A - Song A", "Artist B - Song B"})
	assert.DeepEqual(t, session.Failed, []string{"Artist C - Song C", "Artist D - Song D"})
	assert.NotNil(t, session.CompletedAt)
	assert.Equal(t, session.PlaylistPath, mgr.PlaylistDir("Road Trip"))

	assert.DeepEqual(t, fetcher.Sources(), []string{
		"https://youtu.be/aaaaaaaaaaa",
		"https://youtu.be/bbbbbbbbbbb",
		model.SearchSentinel("Song B", "Artist B"),
		model.SearchSentinel("Song C", "Artist C"),
		"https://youtu.be/ddddddddddd",
		model.SearchSentinel("Song D", "Artist D"),
	})

	types := rec.Types()
	assert.Equal(t, types[0], model.EventStarted)
	assert.Equal(t, types[len(types)-1], model.EventComplete)
	var starts, completes int
	for _, typ := range types {
		switch typ {
		case model.EventSongStart:
			starts++
		case model.EventSongComplete:
			completes++
		}
	}
	assert.Equal(t, starts, 4)
	assert.Equal(t, completes, 4)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, last.Data["successful"], 2)
	assert.Equal(t, last.Data["failed"], 2)
	assert.Equal(t, last.DownloadID, "mixed")

	status, ok := mgr.GetStatus("mixed")
	assert.That(t, ok)
	assert.That(t, status.IsDone())
}

func TestDownloadEventsReachSinks(t *testing.T) {
	hub := services.NewEventHub(64)
	events, unsubscribe := hub.Subscribe("hub")
	defer unsubscribe()

	fetcher := &scriptedFetcher{files: map[string][]byte{"https://youtu.be/aaaaaaaaaaa": mp3Bytes}}
	mgr := services.NewDownloadManager(fetcher, t.TempDir(), 0, hub)
	_, err := mgr.Download(context.Background(), "hub", "p", []model.DownloadItem{
		{Title: "Song A", Artist: "Artist A", URL: "https://youtu.be/aaaaaaaaaaa"},
	}, model.MediaVideo, nil)
	assert.NoError(t, err)

	var got []string
	for e := range events {
		got = append(got, e.Type)
		if e.Type == model.EventComplete {
			break
		}
	}
	assert.DeepEqual(t, got, []string{
		model.EventStarted,
		model.EventSongStart,
		model.EventSongProgress,
		model.EventSongComplete,
		model.EventComplete,
	})
}

func TestDownloadCancel(t *testing.T) {
	started := make(chan struct{})
	fetcher := &scriptedFetcher{block: make(chan struct{}), started: started}
	mgr := services.NewDownloadManager(fetcher, t.TempDir(), 0)

	items := []model.DownloadItem{
		{Title: "A", Artist: "X", URL: "https://youtu.be/aaaaaaaaaaa"},
		{Title: "B", Artist: "X"},
		{Title: "C", Artist: "X"},
	}
	task, err := mgr.Start("", "p", items, model.MediaAudio, nil)
	assert.NoError(t, err)
	assert.That(t, task.ID != "")

	status, ok := mgr.GetStatus(task.ID)
	assert.That(t, ok)
	assert.Equal(t, status.Total, 3)

	<-started
	task.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := task.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, session.Status, model.SessionCompleted)
	assert.Equal(t, len(session.Completed), 0)
	assert.Equal(t, len(session.Failed), 3)
	assert.Equal(t, len(fetcher.Sources()), 1)
}

func TestDownloadRejectsDuplicateAndShutdown(t *testing.T) {
	mgr := services.NewDownloadManager(&scriptedFetcher{}, t.TempDir(), 0)

	task, err := mgr.Start("same", "p", nil, model.MediaAudio, nil)
	assert.NoError(t, err)
	<-task.Done()

	_, err = mgr.Start("same", "p", nil, model.MediaAudio, nil)
	assert.That(t, errors.Is(err, services.ErrSessionExists))

	assert.NoError(t, mgr.Shutdown(context.Background()))
	_, err = mgr.Start("other", "p", nil, model.MediaAudio, nil)
	assert.That(t, errors.Is(err, services.ErrManagerShutdown))

	_, ok := mgr.GetStatus("missing")
	assert.That(t, !ok)
}

func TestNewMediaFiles(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "old.mp3"), mp3Bytes, 0o644))
	before := map[string]bool{"old.mp3": true}

	assert.NoError(t, os.WriteFile(filepath.Join(dir, "new.mp3"), mp3Bytes, 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "empty.mp3"), nil, 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "image.mp3"), pngBytes, 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "other.mp4"), mp3Bytes, 0o644))

	got, err := services.NewMediaFiles(dir, "mp3", before)
	assert.NoError(t, err)
	assert.DeepEqual(t, got, []string{filepath.Join(dir, "new.mp3")})
}

func TestEventHubSubscriptions(t *testing.T) {
	hub := services.NewEventHub(1)
	ctx := context.Background()

	events, unsubscribe := hub.Subscribe("a")
	assert.Equal(t, hub.Subscribers("a"), 1)

	assert.NoError(t, hub.Publish(ctx, model.DownloadEvent{Type: model.EventStarted, DownloadID: "a"}))
	assert.NoError(t, hub.Publish(ctx, model.DownloadEvent{Type: model.EventSongStart, DownloadID: "a"}))
	assert.NoError(t, hub.Publish(ctx, model.DownloadEvent{Type: model.EventStarted, DownloadID: "b"}))

	e := <-events
	assert.Equal(t, e.Type, model.EventStarted)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, hub.Subscribers("a"), 0)
	_, open := <-events
	assert.That(t, !open)
}

func TestDownloadEventsFollowItemOrder(t *testing.T) {
	fetcher := &scriptedFetcher{files: map[string][]byte{
		"https://youtu.be/aaaaaaaaaaa": mp3Bytes,
		"https://youtu.be/ccccccccccc": mp3Bytes,
	}}
	mgr := services.NewDownloadManager(fetcher, t.TempDir(), 0)
	items := []model.DownloadItem{
		{Title: "Song A", Artist: "X", URL: "https://youtu.be/aaaaaaaaaaa"},
		{Title: "Song B", Artist: "X", URL: "https://youtu.be/bbbbbbbbbbb"},
		{Title: "Song C", Artist: "X", URL: "https://youtu.be/ccccccccccc"},
	}
	rec := &eventLog{}

	_, err := mgr.Download(context.Background(), "ordered", "p", items, model.MediaAudio, rec.Add)
	assert.NoError(t, err)

	// Each item moves from start through progress to its terminal event
	// before the next item starts.
	current, finished := 0, 0
	var last time.Time
	for _, e := range rec.events {
		assert.That(t, !e.Timestamp.Before(last))
		last = e.Timestamp

		switch e.Type {
		case model.EventSongStart:
			assert.Equal(t, current, finished)
			current = e.Data["song_index"].(int)
			assert.Equal(t, current, finished+1)
		case model.EventSongProgress:
			assert.Equal(t, e.Data["song_index"], current)
			assert.Equal(t, finished, current-1)
		case model.EventSongComplete, model.EventSongError:
			assert.Equal(t, e.Data["song_index"], current)
			finished = current
		}
	}
	assert.Equal(t, finished, 3)
}

// stalledSink never acknowledges a publish until its deadline passes.
type stalledSink struct {
	mu    sync.Mutex
	calls int
}

func (s *stalledSink) Publish(ctx context.Context, event model.DownloadEvent) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestDownloadStalledSinkDoesNotBlockSession(t *testing.T) {
	sink := &stalledSink{}
	fetcher := &scriptedFetcher{files: map[string][]byte{"https://youtu.be/aaaaaaaaaaa": mp3Bytes}}
	mgr := services.NewDownloadManager(fetcher, t.TempDir(), 0, sink)
	mgr.SetSinkTimeout(10 * time.Millisecond)

	task, err := mgr.Start("stalled", "p", []model.DownloadItem{
		{Title: "Song A", Artist: "X", URL: "https://youtu.be/aaaaaaaaaaa"},
	}, model.MediaAudio, nil)
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := task.Wait(ctx)
	assert.NoError(t, err)
	assert.DeepEqual(t, session.Completed, []string{"X - Song A"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, sink.calls, 5)
}
