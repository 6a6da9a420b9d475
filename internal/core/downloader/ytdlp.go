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

// Package downloader wraps the yt-dlp command line tool.
//
// Logic Flow:
// A fetch builds the yt-dlp argument list for the requested media kind, runs
// the tool with exec.CommandContext and reads its stdout line by line. Lines
// produced by the progress template are parsed into model.Progress values and
// handed to the caller's callback on the calling goroutine, so every progress
// report for a fetch is delivered before Fetch returns. The tool's exit status
// is the completion signal: yt-dlp runs its post-processors (audio extraction,
// remuxing) before it exits.
package downloader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

const (
	progressMarker   = "[tunetrace]"
	progressTemplate = "download:" + progressMarker + " %(progress._percent_str)s|%(progress._speed_str)s|%(progress._eta_str)s"
	outputTemplate   = "%(title)s.%(ext)s"
	stderrTailLines  = 5
)

// Fetcher downloads one source into dir. Source is a URL or a search
// sentinel such as "ytsearch1:artist song official audio".
type Fetcher interface {
	Fetch(ctx context.Context, source string, dir string, kind model.MediaKind, onProgress func(model.Progress)) error
}

// YtDlp runs the yt-dlp executable.
type YtDlp struct {
	Path         string // Executable name or path.
	AudioQuality string // --audio-quality value for audio downloads.
}

func NewYtDlp(path string, audioQuality string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	if audioQuality == "" {
		audioQuality = "320"
	}
	return &YtDlp{Path: path, AudioQuality: audioQuality}
}

// Args returns the command line for one fetch.
func (y *YtDlp) Args(source string, dir string, kind model.MediaKind) []string {
	var args []string
	if kind == model.MediaVideo {
		args = []string{
			"-f", "bestvideo+bestaudio/best",
			"--merge-output-format", "mp4",
			"--recode-video", "mp4",
		}
	} else {
		args = []string{
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", y.AudioQuality,
		}
	}
	return append(args,
		"--no-playlist",
		"--newline",
		"--progress-template", progressTemplate,
		"-o", filepath.Join(dir, outputTemplate),
		source,
	)
}

// Fetch runs yt-dlp and blocks until it exits.
//
// Inputs:
//   - ctx: Cancelling it kills the process.
//   - source: URL or search sentinel.
//   - dir: Output directory; must exist.
//   - kind: Audio (mp3) or video (mp4).
//   - onProgress: Optional; called for every progress line.
//
// Outputs:
//   - error: The process could not start or exited non-zero. The message
//     carries the last lines the tool wrote to stderr.
func (y *YtDlp) Fetch(ctx context.Context, source string, dir string, kind model.MediaKind, onProgress func(model.Progress)) error {
	cmd := exec.CommandContext(ctx, y.Path, y.Args(source, dir, kind)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open yt-dlp stdout: %w", err)
	}
	stderr := &tailBuffer{max: stderrTailLines}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start yt-dlp: %w", err)
	}
	ScanProgress(stdout, onProgress)

	if err := cmd.Wait(); err != nil {
		if tail := stderr.String(); tail != "" {
			return fmt.Errorf("yt-dlp failed: %w: %s", err, tail)
		}
		return fmt.Errorf("yt-dlp failed: %w", err)
	}
	return nil
}

// ScanProgress reads r to EOF, reporting every progress line.
func ScanProgress(r io.Reader, onProgress func(model.Progress)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if onProgress == nil {
			continue
		}
		if p, ok := ParseProgressLine(scanner.Text()); ok {
			onProgress(p)
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// ParseProgressLine parses a line written by the progress template, e.g.
// "[tunetrace]  42.7%|1.21MiB/s|00:07".
func ParseProgressLine(line string) (model.Progress, bool) {
	idx := strings.Index(line, progressMarker)
	if idx < 0 {
		return model.Progress{}, false
	}
	fields := strings.Split(line[idx+len(progressMarker):], "|")
	if len(fields) != 3 {
		return model.Progress{}, false
	}
	percent, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(fields[0]), "%"), 64)
	if err != nil {
		percent = 0
	}
	return model.Progress{
		Percent: math.Round(percent*10) / 10,
		Speed:   strings.TrimSpace(fields[1]),
		ETA:     strings.TrimSpace(fields[2]),
	}, true
}

// tailBuffer keeps the last max lines written to it.
type tailBuffer struct {
	mu      sync.Mutex
	max     int
	partial string
	lines   []string
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	parts := strings.Split(t.partial+string(p), "\n")
	t.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		t.lines = append(t.lines, line)
		if len(t.lines) > t.max {
			t.lines = t.lines[1:]
		}
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines
	if p := strings.TrimSpace(t.partial); p != "" {
		lines = append(append([]string{}, lines...), p)
	}
	return strings.Join(lines, " | ")
}
