// Package auth stores and resolves the bearer token used by dealstream.
//
// Tokens come from the DEALSTREAM_TOKEN environment variable (for CI) or from
// ~/.dealstream/credentials.json, written by `dealstream auth login`.
package auth

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
)

// EnvToken is the environment variable that overrides stored credentials.
const EnvToken = "DEALSTREAM_TOKEN"

// Credentials represents stored authentication credentials.
type Credentials struct {
	// Token is the bearer token for the API and job streams.
	Token string `json:"token"`

	// Email is the user's email address (optional, for display).
	Email string `json:"email,omitempty"`

	// OrgID is the user's organization ID (optional).
	OrgID string `json:"org_id,omitempty"`

	// UserID is the user's ID (optional).
	UserID string `json:"user_id,omitempty"`

	// SavedAt records when the token was stored.
	SavedAt time.Time `json:"saved_at,omitempty"`

	// FromEnv is set when the token came from DEALSTREAM_TOKEN.
	FromEnv bool `json:"-"`
}

// Manager handles credential storage and retrieval.
type Manager struct {
	// configDir is the directory where credentials are stored.
	configDir string
}

// NewManager creates a new credential manager.
//
// Returns:
//   - *Manager: A new manager instance using ~/.dealstream as the config directory
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return &Manager{
		configDir: filepath.Join(homeDir, ".dealstream"),
	}
}

// NewManagerWithDir creates a new credential manager with a custom directory.
//
// Parameters:
//   - configDir: The directory to store credentials in
//
// Returns:
//   - *Manager: A new manager instance
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir: configDir,
	}
}

// credentialsPath returns the path to the credentials file.
func (m *Manager) credentialsPath() string {
	return filepath.Join(m.configDir, "credentials.json")
}

// GetCredentials retrieves stored credentials.
//
// First checks for DEALSTREAM_TOKEN, then falls back to the credentials file.
//
// Returns:
//   - *Credentials: The stored credentials, or nil if not found
//   - error: Any error that occurred during retrieval
func (m *Manager) GetCredentials() (*Credentials, error) {
	if token := os.Getenv(EnvToken); token != "" {
		return &Credentials{Token: token, FromEnv: true}, nil
	}

	data, err := os.ReadFile(m.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read credentials")
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, errors.Wrap(err, "failed to parse credentials")
	}

	return &creds, nil
}

// SaveCredentials stores credentials to disk with owner-only permissions.
//
// Parameters:
//   - creds: The credentials to store
//
// Returns:
//   - error: Any error that occurred during storage
func (m *Manager) SaveCredentials(creds *Credentials) error {
	if creds == nil || creds.Token == "" {
		return errors.New("refusing to save empty credentials")
	}
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal credentials")
	}

	if err := os.WriteFile(m.credentialsPath(), data, 0600); err != nil {
		return errors.Wrap(err, "failed to write credentials")
	}

	return nil
}

// ClearCredentials removes stored credentials.
//
// Returns:
//   - error: Any error that occurred during removal
func (m *Manager) ClearCredentials() error {
	err := os.Remove(m.credentialsPath())
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove credentials")
	}
	return nil
}

// IsAuthenticated checks if a token is available.
func (m *Manager) IsAuthenticated() bool {
	creds, err := m.GetCredentials()
	if err != nil {
		return false
	}
	return creds != nil && creds.Token != ""
}

// TokenProvider returns a jobstream.TokenProvider that re-reads credentials on
// every call, so a token saved by a concurrent `auth login` is picked up on
// the next reconnect.
func (m *Manager) TokenProvider() jobstream.TokenProvider {
	return func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		creds, err := m.GetCredentials()
		if err != nil {
			return "", err
		}
		if creds == nil || creds.Token == "" {
			return "", errors.WithHint(
				errors.WithStack(errors.ErrNotAuthenticated),
				"run 'dealstream auth login --token <token>' or set "+EnvToken,
			)
		}
		return creds.Token, nil
	}
}
