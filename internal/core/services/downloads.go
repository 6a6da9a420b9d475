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

// This file implements the download manager.
//
// Logic Flow:
// Start registers a session in the "starting" state and launches one
// goroutine per session. That goroutine walks the items strictly in order:
//
//  1. Mark the item current ("downloading") and emit song_start.
//  2. Snapshot the media files already in the playlist directory.
//  3. If the item has a URL, fetch it and look for a new media file.
//  4. Otherwise, or when step 3 found nothing, fetch the search sentinel for
//     the item and look again.
//  5. Record the label as completed or failed and emit song_complete, or
//     song_error when the attempt failed unexpectedly.
//
// The session ends "completed" with completed + failed == total, whatever
// happened to individual items. Session state is guarded by the manager's
// lock; readers always get a copy.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/downloader"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

const defaultSinkTimeout = 5 * time.Second

var (
	ErrSessionExists   = errors.New("download session already exists")
	ErrManagerShutdown = errors.New("download manager is shut down")
	errNoNewFile       = errors.New("no new media file created")
)

// DownloadTask is the handle of a running session.
type DownloadTask struct {
	ID     string
	done   chan struct{}
	cancel context.CancelFunc
	result *model.DownloadSession
}

// Done is closed when the session reaches its terminal state.
func (t *DownloadTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the session completes or ctx ends.
func (t *DownloadTask) Wait(ctx context.Context) (*model.DownloadSession, error) {
	select {
	case <-t.done:
		return t.result.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the session after the item in flight. Items not attempted are
// recorded as failed.
func (t *DownloadTask) Cancel() {
	t.cancel()
}

// DownloadManager runs playlist download sessions.
type DownloadManager struct {
	fetcher downloader.Fetcher
	baseDir string
	settle  time.Duration
	sinks   []EventSink

	// sinkTimeout bounds each sink publish so a slow remote sink cannot
	// stall the item loop.
	sinkTimeout time.Duration

	root     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	sessions map[string]*model.DownloadSession
	tasks    map[string]*DownloadTask
}

// NewDownloadManager builds a manager.
//
// Inputs:
//   - fetcher: The download tool.
//   - baseDir: Parent of the per-playlist directories.
//   - settle: Pause after each fetch before the directory is rescanned.
//   - sinks: Receive every event of every session, in addition to the
//     per-session callback given to Start.
func NewDownloadManager(fetcher downloader.Fetcher, baseDir string, settle time.Duration, sinks ...EventSink) *DownloadManager {
	root, stop := context.WithCancel(context.Background())
	return &DownloadManager{
		fetcher:     fetcher,
		baseDir:     baseDir,
		settle:      settle,
		sinks:       sinks,
		sinkTimeout: defaultSinkTimeout,
		root:        root,
		stop:        stop,
		sessions:    make(map[string]*model.DownloadSession),
		tasks:       make(map[string]*DownloadTask),
	}
}

// SetSinkTimeout changes the per-event publish deadline of the sinks. Call
// it before the first Start.
func (m *DownloadManager) SetSinkTimeout(d time.Duration) {
	if d > 0 {
		m.sinkTimeout = d
	}
}

// PlaylistDir is the directory a playlist downloads into.
func (m *DownloadManager) PlaylistDir(playlistName string) string {
	return filepath.Join(m.baseDir, sanitizeDirName(playlistName))
}

// Start registers the session and downloads in the background. An empty id
// gets a generated one. onEvent may be nil.
func (m *DownloadManager) Start(id string, playlistName string, items []model.DownloadItem, kind model.MediaKind, onEvent func(model.DownloadEvent)) (*DownloadTask, error) {
	if id == "" {
		id = uuid.NewString()
	}
	dir := m.PlaylistDir(playlistName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create playlist directory: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerShutdown
	}
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	session := &model.DownloadSession{
		ID:           id,
		PlaylistName: playlistName,
		PlaylistPath: dir,
		Kind:         kind,
		Status:       model.SessionStarting,
		Total:        len(items),
		Completed:    make([]string, 0),
		Failed:       make([]string, 0),
		StartedAt:    time.Now().UTC(),
	}
	ctx, cancel := context.WithCancel(m.root)
	task := &DownloadTask{ID: id, done: make(chan struct{}), cancel: cancel}
	m.sessions[id] = session
	m.tasks[id] = task
	m.wg.Add(1)
	m.mu.Unlock()

	items = append([]model.DownloadItem(nil), items...)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, task, session, items, onEvent)
	}()
	return task, nil
}

// Download runs a session and waits for it.
func (m *DownloadManager) Download(ctx context.Context, id string, playlistName string, items []model.DownloadItem, kind model.MediaKind, onEvent func(model.DownloadEvent)) (*model.DownloadSession, error) {
	task, err := m.Start(id, playlistName, items, kind, onEvent)
	if err != nil {
		return nil, err
	}
	return task.Wait(ctx)
}

// GetStatus returns a copy of the session state.
func (m *DownloadManager) GetStatus(id string) (*model.DownloadSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Task returns the handle of a session.
func (m *DownloadManager) Task(id string) (*DownloadTask, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// Shutdown refuses new sessions, cancels running ones and waits for them to
// finish or for ctx to end.
func (m *DownloadManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *DownloadManager) run(ctx context.Context, task *DownloadTask, session *model.DownloadSession, items []model.DownloadItem, onEvent func(model.DownloadEvent)) {
	emit := func(eventType string, data map[string]interface{}) {
		m.emit(ctx, onEvent, model.DownloadEvent{Type: eventType, DownloadID: session.ID, Data: data, Timestamp: time.Now().UTC()})
	}
	total := len(items)

	slog.InfoContext(ctx, "starting playlist download", "download_id", session.ID, "playlist", session.PlaylistName, "songs", total, "kind", session.Kind)
	emit(model.EventStarted, map[string]interface{}{"total_songs": total, "playlist_name": session.PlaylistName})

	for i, item := range items {
		index := i + 1
		label := item.Label()

		if err := ctx.Err(); err != nil {
			m.update(session, func(s *model.DownloadSession) { s.Failed = append(s.Failed, label) })
			emit(model.EventSongError, map[string]interface{}{"song_index": index, "song_title": label, "error": "download cancelled"})
			continue
		}

		m.update(session, func(s *model.DownloadSession) {
			s.Status = model.SessionDownloading
			s.Current = index
			s.CurrentSong = label
		})
		emit(model.EventSongStart, map[string]interface{}{"song_index": index, "song_title": label, "total_songs": total})

		onProgress := func(p model.Progress) {
			emit(model.EventSongProgress, map[string]interface{}{"song_index": index, "song_title": label, "progress": p.Percent, "speed": p.Speed, "eta": p.ETA})
		}
		ok, err := m.downloadItem(ctx, session.PlaylistPath, session.Kind, item, onProgress)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "song download errored", "download_id", session.ID, "song", label, "error", err)
			m.update(session, func(s *model.DownloadSession) { s.Failed = append(s.Failed, label) })
			emit(model.EventSongError, map[string]interface{}{"song_index": index, "song_title": label, "error": err.Error()})
		case ok:
			m.update(session, func(s *model.DownloadSession) { s.Completed = append(s.Completed, label) })
			emit(model.EventSongComplete, map[string]interface{}{"song_index": index, "song_title": label, "status": model.ItemSuccess})
		default:
			m.update(session, func(s *model.DownloadSession) { s.Failed = append(s.Failed, label) })
			emit(model.EventSongComplete, map[string]interface{}{"song_index": index, "song_title": label, "status": model.ItemFailed})
		}
	}

	var final *model.DownloadSession
	m.update(session, func(s *model.DownloadSession) {
		now := time.Now().UTC()
		s.Status = model.SessionCompleted
		s.CompletedAt = &now
		final = s.Clone()
	})
	task.result = final
	slog.InfoContext(ctx, "playlist download finished", "download_id", session.ID, "successful", len(final.Completed), "failed", len(final.Failed))
	emit(model.EventComplete, map[string]interface{}{
		"total_songs":   total,
		"successful":    len(final.Completed),
		"failed":        len(final.Failed),
		"playlist_path": final.PlaylistPath,
	})
	close(task.done)
}

// downloadItem tries the item's URL, then its search sentinel. A false result
// with a nil error is an ordinary failure; an error means the attempt itself
// broke (cancellation, panic).
func (m *DownloadManager) downloadItem(ctx context.Context, dir string, kind model.MediaKind, item model.DownloadItem, onProgress func(model.Progress)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("download panicked: %v", r)
		}
	}()

	before, err := mediaFiles(dir, kind.Extension())
	if err != nil {
		return false, err
	}

	if source := strings.TrimSpace(item.URL); source != "" {
		err := m.attempt(ctx, source, dir, kind, before, onProgress)
		if err == nil {
			return true, nil
		}
		slog.WarnContext(ctx, "direct download failed, trying search", "song", item.Label(), "source", source, "error", err, "hint", failureHint(err))
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	query := model.SearchSentinel(item.Title, item.Artist)
	if err := m.attempt(ctx, query, dir, kind, before, onProgress); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		slog.WarnContext(ctx, "search download failed", "song", item.Label(), "query", query, "error", err)
		return false, nil
	}
	return true, nil
}

func (m *DownloadManager) attempt(ctx context.Context, source string, dir string, kind model.MediaKind, before map[string]bool, onProgress func(model.Progress)) error {
	if err := m.fetcher.Fetch(ctx, source, dir, kind, onProgress); err != nil {
		return err
	}
	if m.settle > 0 {
		select {
		case <-time.After(m.settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ext := kind.Extension()
	created, err := NewMediaFiles(dir, ext, before)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		return fmt.Errorf("%w (.%s)", errNoNewFile, ext)
	}
	slog.DebugContext(ctx, "downloaded", "source", source, "file", filepath.Base(created[0]))
	return nil
}

// NewMediaFiles lists files with extension ext in dir that are not in before
// and look like media: non-empty and not recognised as some other file type.
func NewMediaFiles(dir string, ext string, before map[string]bool) ([]string, error) {
	after, err := mediaFiles(dir, ext)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for name := range after {
		if before[name] {
			continue
		}
		path := filepath.Join(dir, name)
		if !looksLikeMedia(path) {
			slog.Warn("ignoring new file that is not media", "file", path)
			continue
		}
		out = append(out, path)
	}
	return out, nil
}

func looksLikeMedia(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 262)
	n, _ := f.Read(head)
	if n == 0 {
		return false
	}
	kind, _ := filetype.Match(head[:n])
	return kind == filetype.Unknown || filetype.IsAudio(head[:n]) || filetype.IsVideo(head[:n])
}

func mediaFiles(dir string, ext string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	out := make(map[string]bool)
	suffix := "." + ext
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			out[e.Name()] = true
		}
	}
	return out, nil
}

func (m *DownloadManager) update(session *model.DownloadSession, fn func(s *model.DownloadSession)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(session)
}

func (m *DownloadManager) emit(ctx context.Context, onEvent func(model.DownloadEvent), event model.DownloadEvent) {
	if onEvent != nil {
		onEvent(event)
	}
	for _, sink := range m.sinks {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.sinkTimeout)
		err := sink.Publish(sinkCtx, event)
		cancel()
		if err != nil {
			slog.WarnContext(ctx, "failed to publish download event", "type", event.Type, "error", err)
		}
	}
}

// failureHint names the usual causes of yt-dlp failures for the logs.
func failureHint(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Video unavailable"):
		return "video is unavailable (removed, private, or region-locked)"
	case strings.Contains(msg, "Signature extraction failed"):
		return "signature extraction issue; update yt-dlp"
	case strings.Contains(msg, "Requested format is not available"):
		return "requested format is not available"
	case strings.Contains(msg, "HTTP Error 403"), strings.Contains(msg, "Forbidden"):
		return "access forbidden (region lock or bot detection)"
	}
	return ""
}

func sanitizeDirName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "playlist"
	}
	return cleaned
}
