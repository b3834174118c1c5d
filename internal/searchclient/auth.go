package searchclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// credentialPerms restricts the saved credential file to owner-only access.
const credentialPerms = 0o600

// credentialDirPerms restricts a freshly created credential directory to
// owner-only access.
const credentialDirPerms = 0o700

// credentialFile is the on-disk shape of a saved credential, wrapping the
// oauth2.Token the way the teacher's tokenfile package wraps its own
// persisted tokens, plus a client-supplied label for multi-library setups.
type credentialFile struct {
	Token *oauth2.Token `json:"token"`
	Label string        `json:"label,omitempty"`
}

// LoadCredential reads and parses a saved credential from path.
func LoadCredential(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("searchclient: reading credential file: %w", err)
	}

	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("searchclient: parsing credential file: %w", err)
	}

	if cf.Token == nil {
		return nil, fmt.Errorf("searchclient: credential file %s has no token", path)
	}

	return cf.Token, nil
}

// SaveCredential writes tok to path, creating parent directories as needed.
func SaveCredential(path string, tok *oauth2.Token, label string) error {
	if err := os.MkdirAll(filepath.Dir(path), credentialDirPerms); err != nil {
		return fmt.Errorf("searchclient: creating credential directory: %w", err)
	}

	data, err := json.MarshalIndent(credentialFile{Token: tok, Label: label}, "", "  ")
	if err != nil {
		return fmt.Errorf("searchclient: encoding credential file: %w", err)
	}

	if err := os.WriteFile(path, data, credentialPerms); err != nil {
		return fmt.Errorf("searchclient: writing credential file: %w", err)
	}

	return nil
}

// OAuth2TokenSource adapts a golang.org/x/oauth2.TokenSource (which already
// handles refresh) to the narrow TokenSource interface this package's
// Client consumes.
type OAuth2TokenSource struct {
	inner oauth2.TokenSource
}

// NewOAuth2TokenSource wraps cfg.TokenSource(ctx, tok), which returns a
// oauth2.TokenSource that transparently refreshes an expired access token
// using tok's refresh token.
func NewOAuth2TokenSource(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) *OAuth2TokenSource {
	return &OAuth2TokenSource{inner: cfg.TokenSource(ctx, tok)}
}

// Token satisfies searchclient.TokenSource.
func (s *OAuth2TokenSource) Token() (string, error) {
	tok, err := s.inner.Token()
	if err != nil {
		return "", fmt.Errorf("searchclient: refreshing token: %w", err)
	}

	return tok.AccessToken, nil
}

// StaticTokenSource is a TokenSource that always returns the same token —
// used for service-account API keys that never expire and in tests.
type StaticTokenSource string

// Token satisfies searchclient.TokenSource.
func (s StaticTokenSource) Token() (string, error) {
	return string(s), nil
}
