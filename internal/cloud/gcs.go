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

// Package cloud provides components for interacting with Google Cloud services.
// This file uploads a finished playlist download to Cloud Storage and hands
// back V4 signed URLs. Signing goes through the IAM credentials API so the
// server does not need a private key on disk.
package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// ArchivedFile is one uploaded media file.
type ArchivedFile struct {
	Name        string `json:"name"`
	Object      string `json:"object"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// PlaylistArchiver copies playlist directories into a bucket.
type PlaylistArchiver struct {
	client      *storage.Client
	iam         *credentials.IamCredentialsClient
	bucket      string
	signerEmail string
	ttl         time.Duration
}

// NewPlaylistArchiver returns an archiver for bucket. URLs expire after ttl.
func NewPlaylistArchiver(client *storage.Client, iam *credentials.IamCredentialsClient, bucket string, signerEmail string, ttl time.Duration) *PlaylistArchiver {
	return &PlaylistArchiver{client: client, iam: iam, bucket: bucket, signerEmail: signerEmail, ttl: ttl}
}

// ArchiveObjectPrefix is the object prefix for one archive run of a playlist.
// The random component keeps repeated archives of the same playlist apart.
func ArchiveObjectPrefix(playlistName string, runID string) string {
	return path.Join("playlists", playlistName, runID) + "/"
}

// MediaFiles lists the files in dir with the given extension, sorted by name.
func MediaFiles(dir string, ext string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*."+strings.TrimPrefix(ext, ".")))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Archive uploads every ext file in dir and signs a URL for each.
func (a *PlaylistArchiver) Archive(ctx context.Context, playlistName string, dir string, ext string) ([]ArchivedFile, error) {
	files, err := MediaFiles(dir, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	prefix := ArchiveObjectPrefix(playlistName, uuid.NewString())
	out := make([]ArchivedFile, 0, len(files))
	for _, file := range files {
		archived, err := a.upload(ctx, file, prefix+filepath.Base(file))
		if err != nil {
			return out, err
		}
		if archived.URL, err = a.SignedURL(ctx, archived.Object); err != nil {
			return out, err
		}
		out = append(out, archived)
	}
	slog.InfoContext(ctx, "archived playlist", "playlist", playlistName, "bucket", a.bucket, "files", len(out))
	return out, nil
}

func (a *PlaylistArchiver) upload(ctx context.Context, file string, object string) (ArchivedFile, error) {
	contentType := "application/octet-stream"
	if kind, err := filetype.MatchFile(file); err == nil && kind != filetype.Unknown {
		contentType = kind.MIME.Value
	}

	f, err := os.Open(file)
	if err != nil {
		return ArchivedFile{}, err
	}
	defer f.Close()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	size, err := io.Copy(w, f)
	if err != nil {
		_ = w.Close()
		return ArchivedFile{}, fmt.Errorf("failed to upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return ArchivedFile{}, fmt.Errorf("failed to finalize %s: %w", object, err)
	}
	return ArchivedFile{Name: filepath.Base(file), Object: object, ContentType: contentType, Size: size}, nil
}

// SignedURL returns a V4 GET URL for object, signed by the configured
// service account through IAM.
func (a *PlaylistArchiver) SignedURL(ctx context.Context, object string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		GoogleAccessID: a.signerEmail,
		Expires:        time.Now().Add(a.ttl),
		SignBytes: func(b []byte) ([]byte, error) {
			resp, err := a.iam.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", a.signerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		},
	}
	url, err := a.client.Bucket(a.bucket).SignedURL(object, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", object, err)
	}
	return url, nil
}
