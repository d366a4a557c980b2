package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/voyagehq/voyage-cli/internal/credential"
	"github.com/voyagehq/voyage-cli/internal/tokenstore"
)

// EnvToken overrides stored credentials when set, for CI and scripting.
const EnvToken = "VOYAGE_TOKEN"

// LoginConfig describes the OAuth client for one environment. It is
// ephemeral and never persisted.
type LoginConfig struct {
	IssuerURL string
	ClientID  string
	Scopes    []string
	Audience  string

	// AuthorizationURL and TokenURL skip endpoint discovery when both
	// are set.
	AuthorizationURL string
	TokenURL         string
}

// LoginSession carries the state of one interactive login attempt. The
// PKCE code verifier is generated fresh per attempt and never persisted
// or logged.
type LoginSession struct {
	// AuthURL is the provider's authorization URL for display when the
	// browser did not open.
	AuthURL string

	state    string
	verifier string
	config   *oauth2.Config
}

// VerifyState checks the state parameter echoed by the provider against
// this attempt's value. An empty echoed state is accepted for providers
// that omit it on manual code entry.
func (s *LoginSession) VerifyState(state string) error {
	if state != "" && state != s.state {
		return fmt.Errorf("authorization state mismatch")
	}
	return nil
}

// AuthState is the read-only authentication status of an environment.
type AuthState struct {
	Authenticated bool
	TokenType     string
	Scope         string
	ExpiresAt     *time.Time
	StoredAt      time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for discovery and token
// endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithBrowserOpener overrides how authorization URLs are opened.
func WithBrowserOpener(open func(url string) error) Option {
	return func(m *Manager) {
		m.openBrowser = open
	}
}

// Manager arbitrates access tokens for named environments. Construct one
// per process and pass it to command handlers; there is no package-level
// instance.
type Manager struct {
	store       tokenstore.Store
	client      *http.Client
	now         func() time.Time
	openBrowser func(url string) error

	mu         sync.Mutex
	discovered map[string]oauth2.Endpoint
}

// NewManager creates a Manager backed by the given credential store.
func NewManager(store tokenstore.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	m := &Manager{
		store:       store,
		client:      &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
		openBrowser: openBrowser,
		discovered:  make(map[string]oauth2.Endpoint),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// ValidAccessToken returns a usable access token for environment, or ""
// when there is none. It never fails beyond context cancellation: storage
// errors, invalid records, and refresh failures all degrade to "" with a
// logged warning, and the caller re-authenticates interactively.
//
// At most one network round trip is performed (the refresh grant);
// everything else completes from local storage.
func (m *Manager) ValidAccessToken(ctx context.Context, environment string, cfg *LoginConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}

	rec := m.loadRecord(ctx, environment)
	if rec == nil {
		return "", nil
	}

	if rec.Valid(m.now()) {
		return rec.AccessToken, nil
	}

	// Expired: without a refresh token or a client config there is
	// nothing to do silently.
	if rec.RefreshToken == "" || cfg == nil {
		return "", nil
	}

	refreshed, err := m.refresh(ctx, environment, rec, cfg)
	if err != nil {
		slog.WarnContext(ctx, "token refresh failed, re-authentication required",
			"environment", environment, "error", err)
		return "", nil
	}

	return refreshed.AccessToken, nil
}

// TokenProvider adapts ValidAccessToken to the token-provider callback
// the platform client consumes. The returned function reports "" for "no
// usable token" instead of failing.
func (m *Manager) TokenProvider(environment string, cfg *LoginConfig) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return m.ValidAccessToken(ctx, environment, cfg)
	}
}

// BeginLogin starts an interactive login attempt: it resolves the
// provider's endpoints, builds a PKCE (S256) authorization URL bound to a
// fresh code verifier, and opens it in the default browser. Browser
// failures are non-fatal; the URL is returned for manual use. Discovery
// failures are hard errors.
func (m *Manager) BeginLogin(ctx context.Context, cfg *LoginConfig, redirectURI string) (*LoginSession, error) {
	endpoint, err := m.endpoints(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolving provider endpoints: %w", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    endpoint,
		RedirectURL: redirectURI,
		Scopes:      cfg.Scopes,
	}

	session := &LoginSession{
		state:    uuid.NewString(),
		verifier: oauth2.GenerateVerifier(),
		config:   oauthConfig,
	}

	authOpts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(session.verifier),
	}
	if cfg.Audience != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("audience", cfg.Audience))
	}

	session.AuthURL = oauthConfig.AuthCodeURL(session.state, authOpts...)

	if err := m.openBrowser(session.AuthURL); err != nil {
		slog.WarnContext(ctx, "could not open browser, use the printed URL", "error", err)
	}

	return session, nil
}

// CompleteLogin exchanges the authorization code for a token set using
// the attempt's PKCE verifier, validates the response, and persists the
// credential record. Failures are hard login failures and are not
// retried.
func (m *Manager) CompleteLogin(ctx context.Context, environment string, session *LoginSession, code string) error {
	token, err := session.config.Exchange(m.oauthContext(ctx), code,
		oauth2.VerifierOption(session.verifier),
	)
	if err != nil {
		return fmt.Errorf("authorization code exchange failed: %w", describeExchangeError(err))
	}

	rec, err := recordFromToken(token, "")
	if err != nil {
		return fmt.Errorf("token response validation failed: %w", err)
	}
	// Login responses carry the full shape; refresh responses may omit
	// scope and reuse the previous one.
	if rec.ExpiresAt == nil {
		return fmt.Errorf("token response validation failed: missing expires_in")
	}
	if rec.Scope == "" {
		return fmt.Errorf("token response validation failed: missing scope")
	}

	if err := m.saveRecord(ctx, environment, rec); err != nil {
		return err
	}

	slog.InfoContext(ctx, "login completed", "environment", environment, "scope", rec.Scope)
	return nil
}

// State reports authentication status without attempting a refresh or
// mutating storage. It never fails: storage and validation problems
// degrade to unauthenticated.
func (m *Manager) State(ctx context.Context, environment string) AuthState {
	if token := os.Getenv(EnvToken); token != "" {
		return AuthState{
			Authenticated: true,
			TokenType:     credential.DefaultTokenType,
		}
	}

	rec := m.loadRecord(ctx, environment)
	if rec == nil || !rec.Valid(m.now()) {
		return AuthState{}
	}

	return AuthState{
		Authenticated: true,
		TokenType:     rec.TokenType,
		Scope:         rec.Scope,
		ExpiresAt:     rec.ExpiresAt,
		StoredAt:      rec.StoredAt,
	}
}

// Logout removes the environment's credential record. Removal failures
// propagate: a silently failed logout would leave a credential behind
// that the user believes is gone.
func (m *Manager) Logout(ctx context.Context, environment string) error {
	if err := m.store.Remove(ctx, environment); err != nil {
		return fmt.Errorf("removing credential for %q: %w", environment, err)
	}
	return nil
}

// refresh performs the refresh grant and persists the resulting record,
// carrying over the previous refresh token and scope when the provider
// omits them.
func (m *Manager) refresh(ctx context.Context, environment string, old *credential.Record, cfg *LoginConfig) (*credential.Record, error) {
	endpoint, err := m.endpoints(ctx, cfg)
	if err != nil {
		return nil, err
	}

	oauthConfig := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: endpoint,
		Scopes:   cfg.Scopes,
	}

	source := oauthConfig.TokenSource(m.oauthContext(ctx), &oauth2.Token{
		RefreshToken: old.RefreshToken,
	})

	token, err := source.Token()
	if err != nil {
		return nil, describeExchangeError(err)
	}

	rec, err := recordFromToken(token, old.RefreshToken)
	if err != nil {
		return nil, err
	}
	if rec.Scope == "" {
		rec.Scope = old.Scope
	}

	// The new access token is usable even if persistence fails; warn and
	// let the next process-start retry the write.
	if err := m.saveRecord(ctx, environment, rec); err != nil {
		slog.WarnContext(ctx, "failed to persist refreshed credential",
			"environment", environment, "error", err)
	}

	return rec, nil
}

// loadRecord reads and validates the stored record, degrading every
// failure to nil with a logged warning.
func (m *Manager) loadRecord(ctx context.Context, environment string) *credential.Record {
	data, err := m.store.Load(ctx, environment)
	if err != nil {
		slog.WarnContext(ctx, "credential lookup failed", "environment", environment, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}

	rec, err := credential.Decode(data)
	if err != nil {
		slog.WarnContext(ctx, "stored credential is invalid, treating as absent",
			"environment", environment, "error", err)
		return nil
	}
	return rec
}

// saveRecord stamps and persists a record.
func (m *Manager) saveRecord(ctx context.Context, environment string, rec *credential.Record) error {
	data, err := rec.Encode(m.now())
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, environment, data); err != nil {
		return fmt.Errorf("persisting credential for %q: %w", environment, err)
	}
	return nil
}

// oauthContext injects the Manager's HTTP client into the oauth2 package
// via its documented context key.
func (m *Manager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

// recordFromToken validates a provider token response and converts it to
// a credential record. fallbackRefreshToken fills in when the response
// omits a refresh token.
func recordFromToken(token *oauth2.Token, fallbackRefreshToken string) (*credential.Record, error) {
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	if !strings.EqualFold(token.TokenType, credential.DefaultTokenType) {
		return nil, fmt.Errorf("unexpected token_type %q", token.TokenType)
	}

	rec := &credential.Record{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    credential.DefaultTokenType,
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = fallbackRefreshToken
	}
	if !token.Expiry.IsZero() {
		expiresAt := token.Expiry
		rec.ExpiresAt = &expiresAt
	}
	if scope, ok := token.Extra("scope").(string); ok {
		rec.Scope = scope
	}

	return rec, nil
}

// describeExchangeError surfaces the provider's error code and
// description from token endpoint failures for CLI display.
func describeExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
		if retrieveErr.ErrorDescription != "" {
			return fmt.Errorf("%s: %s", retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		}
		return fmt.Errorf("%s", retrieveErr.ErrorCode)
	}
	return err
}
