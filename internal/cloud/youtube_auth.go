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

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ErrNotAuthenticated is returned when no saved YouTube token exists.
var ErrNotAuthenticated = errors.New("youtube authentication required")

// AuthStatus is reported by the auth status endpoint.
type AuthStatus struct {
	Authenticated         bool   `json:"authenticated"`
	CredentialsConfigured bool   `json:"credentials_configured"`
	Message               string `json:"message"`
}

// YouTubeAuth runs the OAuth 2.0 web flow for the YouTube Data API and keeps
// the resulting token in a JSON file.
type YouTubeAuth struct {
	secretsPath string
	tokenPath   string
	redirectURL string
}

func NewYouTubeAuth(secretsPath string, tokenPath string, redirectURL string) *YouTubeAuth {
	return &YouTubeAuth{secretsPath: secretsPath, tokenPath: tokenPath, redirectURL: redirectURL}
}

// CredentialsConfigured reports whether the client secrets file exists.
func (a *YouTubeAuth) CredentialsConfigured() bool {
	return fileExists(a.secretsPath)
}

// OAuthConfig reads the client secrets file.
func (a *YouTubeAuth) OAuthConfig() (*oauth2.Config, error) {
	b, err := os.ReadFile(a.secretsPath)
	if err != nil {
		return nil, fmt.Errorf("youtube client secrets not found at %s: %w", a.secretsPath, err)
	}
	config, err := google.ConfigFromJSON(b, youtube.YoutubeForceSslScope)
	if err != nil {
		return nil, fmt.Errorf("invalid youtube client secrets: %w", err)
	}
	if a.redirectURL != "" {
		config.RedirectURL = a.redirectURL
	}
	return config, nil
}

// AuthURL is where the user grants access. Offline access is requested so a
// refresh token is issued.
func (a *YouTubeAuth) AuthURL(state string) (string, error) {
	config, err := a.OAuthConfig()
	if err != nil {
		return "", err
	}
	return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades the callback code for a token and saves it.
func (a *YouTubeAuth) Exchange(ctx context.Context, code string) error {
	config, err := a.OAuthConfig()
	if err != nil {
		return err
	}
	token, err := config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("oauth code exchange failed: %w", err)
	}
	return a.SaveToken(token)
}

// SaveToken writes token to the token file with owner-only permissions.
func (a *YouTubeAuth) SaveToken(token *oauth2.Token) error {
	if dir := filepath.Dir(a.tokenPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.tokenPath, b, 0o600); err != nil {
		return fmt.Errorf("failed to save youtube token: %w", err)
	}
	return nil
}

// Token loads the saved token.
func (a *YouTubeAuth) Token() (*oauth2.Token, error) {
	b, err := os.ReadFile(a.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(b, token); err != nil {
		return nil, fmt.Errorf("corrupt youtube token file: %w", err)
	}
	return token, nil
}

// Status summarises the auth state.
func (a *YouTubeAuth) Status() AuthStatus {
	status := AuthStatus{
		Authenticated:         fileExists(a.tokenPath),
		CredentialsConfigured: a.CredentialsConfigured(),
		Message:               "Authentication required",
	}
	if status.Authenticated {
		status.Message = "YouTube API is ready"
	}
	return status
}

// Service returns a YouTube client authorised with the saved token. The
// token source refreshes expired access tokens on demand.
func (a *YouTubeAuth) Service(ctx context.Context) (*youtube.Service, error) {
	token, err := a.Token()
	if err != nil {
		return nil, err
	}
	config, err := a.OAuthConfig()
	if err != nil {
		return nil, err
	}
	svc, err := youtube.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return svc, nil
}
