package google

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// Default file locations, relative to the working directory.
const (
	DefaultCredentialsFile = "credentials.json"
	DefaultTokenFile       = "token.json"
)

// Environment variables overriding the file locations.
const (
	EnvCredentialsFile = "GMAIL_CREDENTIALS_FILE"
	EnvTokenFile       = "GMAIL_TOKEN_FILE"
)

// Scopes requested during authorization. Reading the mailbox and modifying
// labels (archive, trash) is all the server ever does, so nothing broader is
// requested.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailModifyScope,
}

// LoadConfig reads a client-secrets JSON descriptor and builds the OAuth2
// configuration with the Gmail scopes.
func LoadConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client credentials file %s: %w", credentialsFile, err)
	}

	config, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client credentials file %s: %w", credentialsFile, err)
	}

	return config, nil
}

// ResolveCredentialsPath returns the credentials file path, preferring the
// flag value, then the environment variable, then the default.
func ResolveCredentialsPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvCredentialsFile); env != "" {
		return env
	}
	return DefaultCredentialsFile
}

// ResolveTokenPath returns the token file path, preferring the flag value,
// then the environment variable, then the default.
func ResolveTokenPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvTokenFile); env != "" {
		return env
	}
	return DefaultTokenFile
}

// TokenPathForAccount derives an account's token file from the default
// account's path: token.json becomes token-work.json for account "work".
func TokenPathForAccount(base, account string) string {
	if account == "" || account == "default" {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + account + ext
}
