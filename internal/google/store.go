package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/inboxtriage/inboxtriage/internal/logging"
)

// ErrNoToken is returned when no token is stored and the server cannot
// complete an interactive authorization flow. The user must run the auth
// subcommand once to authorize.
var ErrNoToken = errors.New("no stored OAuth token; run 'inboxtriage auth' to authorize")

// expiryMargin is the safety window before the recorded expiry at which a
// token is treated as stale. Refreshing early avoids handing out a token that
// expires mid-request.
const expiryMargin = 60 * time.Second

// RefreshHook is called after every refresh attempt with the result
// ("success", "failure" or "expired"). Used to wire refresh metrics without
// this package depending on the instrumentation layer.
type RefreshHook func(result string)

// Store persists an OAuth2 token on disk and implements oauth2.TokenSource
// with automatic refresh.
//
// All token access goes through a mutex so that concurrent sessions sharing
// one Store trigger at most one refresh; late arrivals reuse the token the
// first caller obtained.
type Store struct {
	config *oauth2.Config
	path   string
	logger *slog.Logger

	onRefresh RefreshHook

	mu    sync.Mutex
	token *oauth2.Token
	// force requests a refresh on the next Token call regardless of the
	// recorded expiry. Set by Invalidate after the provider rejected the
	// current access token.
	force bool
}

// NewStore creates a Store persisting tokens at path.
func NewStore(config *oauth2.Config, path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		config: config,
		path:   path,
		logger: logger,
	}
}

// SetRefreshHook registers a callback invoked after each refresh attempt.
func (s *Store) SetRefreshHook(hook RefreshHook) {
	s.onRefresh = hook
}

// Path returns the token file location.
func (s *Store) Path() string {
	return s.path
}

// HasToken reports whether a token file exists on disk.
func (s *Store) HasToken() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Token returns a valid access token, refreshing and persisting it first when
// the cached one is stale. Implements oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		tok, err := s.loadLocked()
		if err != nil {
			return nil, err
		}
		s.token = tok
	}

	if !s.force && !stale(s.token, time.Now()) {
		return cloneToken(s.token), nil
	}

	return s.refreshLocked()
}

// Invalidate forces a refresh on the next Token call. Called after the
// provider rejected the current access token even though it had not expired
// locally.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.force = true
}

// refreshLocked refreshes the cached token using its refresh token, persists
// the result and returns it. Callers must hold s.mu.
func (s *Store) refreshLocked() (*oauth2.Token, error) {
	if s.token.RefreshToken == "" {
		s.notifyRefresh("expired")
		return nil, fmt.Errorf("stored token has no refresh token: %w", ErrNoToken)
	}

	// Force the oauth2 transport down the refresh path by presenting an
	// expired token carrying only the refresh token.
	seed := &oauth2.Token{
		RefreshToken: s.token.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}

	fresh, err := s.config.TokenSource(context.Background(), seed).Token()
	if err != nil {
		s.notifyRefresh("failure")
		return nil, fmt.Errorf("failed to refresh OAuth token: %w", err)
	}

	// Providers may omit the refresh token on refresh responses; keep the
	// one we already have.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = s.token.RefreshToken
	}

	if err := s.saveLocked(fresh); err != nil {
		// The refreshed token is still usable for this process even if
		// persisting it failed.
		s.logger.Warn("failed to persist refreshed token",
			logging.Operation("token.refresh"),
			logging.Err(err))
	}

	s.token = fresh
	s.force = false
	s.notifyRefresh("success")

	s.logger.Debug("OAuth token refreshed",
		logging.Operation("token.refresh"),
		slog.Time("expiry", fresh.Expiry))

	return cloneToken(fresh), nil
}

// Exchange trades an authorization code for a token and persists it.
// Used by the interactive auth subcommand.
func (s *Store) Exchange(ctx context.Context, authCode string) error {
	tok, err := s.config.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(tok); err != nil {
		return err
	}
	s.token = tok
	s.force = false
	return nil
}

// AuthCodeURL returns the URL the user must visit to authorize access.
func (s *Store) AuthCodeURL() string {
	return s.config.AuthCodeURL("state", oauth2.AccessTypeOffline)
}

// loadLocked reads the persisted token. Callers must hold s.mu.
func (s *Store) loadLocked() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}

	return &tok, nil
}

// saveLocked persists the token atomically: write to a temp file in the same
// directory, then rename over the destination. A crash mid-write never leaves
// a truncated token file behind. Callers must hold s.mu.
func (s *Store) saveLocked(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := tmp.Chmod(0600); err != nil {
		cleanup()
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	return nil
}

func (s *Store) notifyRefresh(result string) {
	if s.onRefresh != nil {
		s.onRefresh(result)
	}
}

// stale reports whether the token should be refreshed at the given time.
// Tokens without a recorded expiry are treated as non-expiring.
func stale(tok *oauth2.Token, now time.Time) bool {
	if tok.AccessToken == "" {
		return true
	}
	if tok.Expiry.IsZero() {
		return false
	}
	return now.After(tok.Expiry.Add(-expiryMargin))
}

func cloneToken(tok *oauth2.Token) *oauth2.Token {
	clone := *tok
	return &clone
}
