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

package downloader_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-tune-trace/internal/core/downloader"
	"github.com/jaycherian/gcp-go-tune-trace/internal/core/model"
)

func TestParseProgressLine(t *testing.T) {
	p, ok := downloader.ParseProgressLine("[tunetrace]  42.66%|1.21MiB/s|00:07")
	assert.That(t, ok)
	assert.Equal(t, 42.7, p.Percent)
	assert.Equal(t, "1.21MiB/s", p.Speed)
	assert.Equal(t, "00:07", p.ETA)

	p, ok = downloader.ParseProgressLine("[tunetrace]    N/A%|Unknown B/s|Unknown")
	assert.That(t, ok)
	assert.Equal(t, 0.0, p.Percent)

	_, ok = downloader.ParseProgressLine("[youtube] abc: Downloading webpage")
	assert.That(t, !ok)
}

func TestScanProgressReportsInOrder(t *testing.T) {
	input := strings.Join([]string{
		"[youtube] Extracting URL",
		"[tunetrace]   10.0%|1MiB/s|00:09",
		"[tunetrace]  100.0%|1MiB/s|00:00",
		"[ExtractAudio] Destination: song.mp3",
	}, "\n")

	var got []float64
	downloader.ScanProgress(strings.NewReader(input), func(p model.Progress) {
		got = append(got, p.Percent)
	})
	assert.DeepEqual(t, []float64{10, 100}, got)
}

func TestArgsByKind(t *testing.T) {
	y := downloader.NewYtDlp("", "")
	assert.Equal(t, "yt-dlp", y.Path)

	audio := strings.Join(y.Args("ytsearch1:x", "/tmp/p", model.MediaAudio), " ")
	assert.That(t, strings.Contains(audio, "-f bestaudio/best -x --audio-format mp3 --audio-quality 320"))
	assert.That(t, strings.HasSuffix(audio, "-o "+filepath.Join("/tmp/p", "%(title)s.%(ext)s")+" ytsearch1:x"))

	video := strings.Join(y.Args("https://youtu.be/abc", "/tmp/p", model.MediaVideo), " ")
	assert.That(t, strings.Contains(video, "--merge-output-format mp4 --recode-video mp4"))
	assert.That(t, !strings.Contains(video, "--audio-format"))
}

func writeScript(t *testing.T, body string) string {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available")
	}
	path := filepath.Join(t.TempDir(), "fake-yt-dlp")
	assert.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestFetchStreamsProgress(t *testing.T) {
	script := writeScript(t, "echo '[tunetrace]  50.0%|2MiB/s|00:01'\necho '[tunetrace] 100.0%|2MiB/s|00:00'\nexit 0\n")
	y := downloader.NewYtDlp(script, "320")

	var got []model.Progress
	err := y.Fetch(context.Background(), "ytsearch1:x", t.TempDir(), model.MediaAudio, func(p model.Progress) {
		got = append(got, p)
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(got))
	assert.Equal(t, 100.0, got[1].Percent)
}

func TestFetchReportsStderrTail(t *testing.T) {
	script := writeScript(t, "echo 'ERROR: Video unavailable' >&2\nexit 1\n")
	y := downloader.NewYtDlp(script, "320")

	err := y.Fetch(context.Background(), "https://www.youtube.com/watch?v=xxxxxxxxxxx", t.TempDir(), model.MediaVideo, nil)
	assert.Error(t, err)
	assert.That(t, strings.Contains(err.Error(), "Video unavailable"))
}
