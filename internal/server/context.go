package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/inboxtriage/inboxtriage/internal/gmail"
	"github.com/inboxtriage/inboxtriage/internal/google"
	"github.com/inboxtriage/inboxtriage/internal/instrumentation"
	"github.com/inboxtriage/inboxtriage/internal/logging"
)

// DefaultAccount is the account name used when a tool call names none.
const DefaultAccount = "default"

// Config holds the settings a ServerContext needs.
type Config struct {
	// CredentialsFile is the OAuth client secrets file. Empty resolves
	// through GMAIL_CREDENTIALS_FILE and the default location.
	CredentialsFile string

	// TokenFile is the token file for the default account. Additional
	// accounts store their tokens next to it with the account name in
	// the file name. Empty resolves through GMAIL_TOKEN_FILE and the
	// default location.
	TokenFile string

	// ReadOnly disables the tools that modify the mailbox.
	ReadOnly bool

	Logger *slog.Logger
}

// ServerContext holds the shared state of the MCP server: the OAuth client
// configuration, per-account token stores and Gmail clients, and the
// instrumentation wiring. Clients are created lazily on first use and cached.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	oauthConfig *oauth2.Config
	tokenFile   string
	readOnly    bool
	logger      *slog.Logger

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger

	mu       sync.RWMutex
	stores   map[string]*google.Store
	clients  map[string]*gmail.Client
	shutdown bool
}

// NewServerContext creates a server context from the given configuration.
// The credentials file must exist; token files may be missing until the
// first tool call needs them.
func NewServerContext(ctx context.Context, config Config) (*ServerContext, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	credentialsPath := google.ResolveCredentialsPath(config.CredentialsFile)
	oauthConfig, err := google.LoadConfig(credentialsPath)
	if err != nil {
		return nil, err
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		oauthConfig: oauthConfig,
		tokenFile:   google.ResolveTokenPath(config.TokenFile),
		readOnly:    config.ReadOnly,
		logger:      logger,
		stores:      make(map[string]*google.Store),
		clients:     make(map[string]*gmail.Client),
	}, nil
}

// Context returns the server lifetime context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// ReadOnly reports whether mailbox-modifying tools are disabled.
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// SetInstrumentation wires the metrics recorder and audit logger into the
// context. Clients created afterwards record provider metrics; both values
// may be nil when instrumentation is disabled.
func (sc *ServerContext) SetInstrumentation(metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = metrics
	sc.audit = audit
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil when instrumentation is off.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.audit
}

// StoreForAccount returns the token store for an account, creating it on
// first use. Stores exist even before their token file does; the store
// itself fails with google.ErrNoToken when asked for a token it lacks.
func (sc *ServerContext) StoreForAccount(account string) *google.Store {
	if account == "" {
		account = DefaultAccount
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.storeForAccountLocked(account)
}

func (sc *ServerContext) storeForAccountLocked(account string) *google.Store {
	if store, ok := sc.stores[account]; ok {
		return store
	}

	store := google.NewStore(sc.oauthConfig, google.TokenPathForAccount(sc.tokenFile, account),
		logging.WithAccount(sc.logger, account))

	if sc.metrics != nil {
		metrics := sc.metrics
		store.SetRefreshHook(func(result string) {
			metrics.RecordOAuthTokenRefresh(context.Background(), result)
		})
	}

	sc.stores[account] = store
	return store
}

// ClientForAccount returns the Gmail client for an account, creating and
// caching it on first use.
func (sc *ServerContext) ClientForAccount(account string) (*gmail.Client, error) {
	if account == "" {
		account = DefaultAccount
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil, fmt.Errorf("server is shutting down")
	}

	if client, ok := sc.clients[account]; ok {
		return client, nil
	}

	store := sc.storeForAccountLocked(account)

	client, err := gmail.NewClient(sc.ctx, store, account, sc.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client for account %s: %w", account, err)
	}
	if sc.metrics != nil {
		client.SetMetrics(sc.metrics)
	}

	sc.clients[account] = client
	return client, nil
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and drops the cached clients.
// Idempotent.
func (sc *ServerContext) Shutdown() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return
	}
	sc.shutdown = true
	sc.cancel()
	sc.clients = make(map[string]*gmail.Client)
	sc.logger.Info("server context shut down")
}
