package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/voyagehq/voyage-cli/internal/credential"
	"github.com/voyagehq/voyage-cli/internal/tokenstore"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

// newTestManager builds a Manager over a temp-dir file store with a
// fixed clock and a no-op browser opener.
func newTestManager(t *testing.T, opts ...Option) (*Manager, tokenstore.Store) {
	t.Helper()

	store, err := tokenstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() unexpected error: %v", err)
	}

	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithBrowserOpener(func(string) error { return nil }),
	}, opts...)

	m, err := NewManager(store, opts...)
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	return m, store
}

// seedRecord persists a record for environment directly through the store.
func seedRecord(t *testing.T, store tokenstore.Store, environment string, rec *credential.Record) {
	t.Helper()

	data, err := rec.Encode(testNow)
	if err != nil {
		t.Fatalf("Encode() unexpected error: %v", err)
	}
	if err := store.Save(context.Background(), environment, data); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestValidAccessTokenLocalPaths(t *testing.T) {
	expired := timePtr(testNow.Add(-time.Second))
	future := timePtr(testNow.Add(time.Hour))

	tests := []struct {
		name   string
		record *credential.Record
		config *LoginConfig
		want   string
	}{
		{
			name:   "no record",
			record: nil,
			want:   "",
		},
		{
			name:   "non-expiring record is always valid",
			record: &credential.Record{AccessToken: "t1"},
			want:   "t1",
		},
		{
			name:   "future expiry",
			record: &credential.Record{AccessToken: "t1", ExpiresAt: future},
			want:   "t1",
		},
		{
			name:   "expired without refresh token",
			record: &credential.Record{AccessToken: "t1", ExpiresAt: expired},
			config: &LoginConfig{IssuerURL: "https://auth.example.com", ClientID: "cli"},
			want:   "",
		},
		{
			name:   "expired without login config",
			record: &credential.Record{AccessToken: "t1", RefreshToken: "r1", ExpiresAt: expired},
			config: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newTestManager(t)
			if tt.record != nil {
				seedRecord(t, store, "staging", tt.record)
			}

			got, err := m.ValidAccessToken(context.Background(), "staging", tt.config)
			if err != nil {
				t.Fatalf("ValidAccessToken() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidAccessToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidAccessTokenInvalidRecordTreatedAsAbsent(t *testing.T) {
	m, store := newTestManager(t)

	// Stored blob missing access_token fails schema validation.
	if err := store.Save(context.Background(), "staging", []byte(`{"refresh_token":"r1"}`)); err != nil {
		t.Fatalf("Save() unexpected error: %v", err)
	}

	got, err := m.ValidAccessToken(context.Background(), "staging", nil)
	if err != nil {
		t.Fatalf("ValidAccessToken() unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("ValidAccessToken() = %q, want empty for invalid record", got)
	}
}

func TestValidAccessTokenRefreshPreservesRefreshToken(t *testing.T) {
	var gotGrant, gotRefreshToken string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() unexpected error: %v", err)
		}
		gotGrant = r.PostForm.Get("grant_type")
		gotRefreshToken = r.PostForm.Get("refresh_token")

		w.Header().Set("Content-Type", "application/json")
		// No refresh_token in the response: the old one must survive.
		_, _ = w.Write([]byte(`{"access_token":"t2","token_type":"Bearer","expires_in":3600,"scope":"s"}`))
	}))
	defer provider.Close()

	m, store := newTestManager(t)
	seedRecord(t, store, "production", &credential.Record{
		AccessToken:  "t1",
		RefreshToken: "r1",
		ExpiresAt:    timePtr(testNow.Add(-time.Second)),
	})

	cfg := &LoginConfig{
		IssuerURL:        "https://auth.example.com",
		ClientID:         "voyage-cli",
		AuthorizationURL: provider.URL + "/authorize",
		TokenURL:         provider.URL + "/token",
	}

	got, err := m.ValidAccessToken(context.Background(), "production", cfg)
	if err != nil {
		t.Fatalf("ValidAccessToken() unexpected error: %v", err)
	}
	if got != "t2" {
		t.Errorf("ValidAccessToken() = %q, want %q", got, "t2")
	}
	if gotGrant != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", gotGrant)
	}
	if gotRefreshToken != "r1" {
		t.Errorf("refresh_token sent = %q, want r1", gotRefreshToken)
	}

	data, err := store.Load(context.Background(), "production")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	rec, err := credential.Decode(data)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	if rec.AccessToken != "t2" {
		t.Errorf("persisted access_token = %q, want t2", rec.AccessToken)
	}
	if rec.RefreshToken != "r1" {
		t.Errorf("persisted refresh_token = %q, want preserved r1", rec.RefreshToken)
	}
	if rec.Scope != "s" {
		t.Errorf("persisted scope = %q, want s", rec.Scope)
	}
	if rec.ExpiresAt == nil {
		t.Error("persisted record missing expires_at")
	}
}

func TestValidAccessTokenRefreshFailureDegrades(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	}))
	defer provider.Close()

	m, store := newTestManager(t)
	seedRecord(t, store, "production", &credential.Record{
		AccessToken:  "t1",
		RefreshToken: "r1",
		ExpiresAt:    timePtr(testNow.Add(-time.Second)),
	})

	cfg := &LoginConfig{
		IssuerURL:        "https://auth.example.com",
		ClientID:         "voyage-cli",
		AuthorizationURL: provider.URL + "/authorize",
		TokenURL:         provider.URL + "/token",
	}

	got, err := m.ValidAccessToken(context.Background(), "production", cfg)
	if err != nil {
		t.Fatalf("ValidAccessToken() must not fail on refresh errors, got: %v", err)
	}
	if got != "" {
		t.Errorf("ValidAccessToken() = %q, want empty after failed refresh", got)
	}
}

func TestValidAccessTokenEnvOverride(t *testing.T) {
	t.Setenv(EnvToken, "env-token")

	m, _ := newTestManager(t)
	got, err := m.ValidAccessToken(context.Background(), "production", nil)
	if err != nil {
		t.Fatalf("ValidAccessToken() unexpected error: %v", err)
	}
	if got != "env-token" {
		t.Errorf("ValidAccessToken() = %q, want env override", got)
	}
}

func TestState(t *testing.T) {
	t.Run("absent environment", func(t *testing.T) {
		m, _ := newTestManager(t)
		state := m.State(context.Background(), "staging")
		if state.Authenticated {
			t.Error("State() Authenticated = true for absent record")
		}
		if state.TokenType != "" || state.Scope != "" || state.ExpiresAt != nil {
			t.Errorf("State() carries token metadata for absent record: %+v", state)
		}
	})

	t.Run("expired record", func(t *testing.T) {
		m, store := newTestManager(t)
		seedRecord(t, store, "staging", &credential.Record{
			AccessToken: "t1",
			ExpiresAt:   timePtr(testNow.Add(-time.Minute)),
		})

		if state := m.State(context.Background(), "staging"); state.Authenticated {
			t.Error("State() Authenticated = true for expired record")
		}
	})

	t.Run("valid record", func(t *testing.T) {
		m, store := newTestManager(t)
		expiry := testNow.Add(time.Hour)
		seedRecord(t, store, "staging", &credential.Record{
			AccessToken: "t1",
			TokenType:   "Bearer",
			Scope:       "openid",
			ExpiresAt:   &expiry,
		})

		state := m.State(context.Background(), "staging")
		if !state.Authenticated {
			t.Fatal("State() Authenticated = false for valid record")
		}
		if state.TokenType != "Bearer" || state.Scope != "openid" {
			t.Errorf("State() metadata = %+v", state)
		}
		if state.ExpiresAt == nil || !state.ExpiresAt.Equal(expiry) {
			t.Errorf("State() ExpiresAt = %v, want %v", state.ExpiresAt, expiry)
		}
	})
}

func TestBeginLogin(t *testing.T) {
	var discoveryHits int
	var provider *httptest.Server
	provider = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		discoveryHits++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"issuer": "` + provider.URL + `",
			"authorization_endpoint": "` + provider.URL + `/authorize",
			"token_endpoint": "` + provider.URL + `/token"
		}`))
	}))
	defer provider.Close()

	var opened string
	m, _ := newTestManager(t, WithBrowserOpener(func(u string) error {
		opened = u
		return nil
	}))

	cfg := &LoginConfig{
		IssuerURL: provider.URL,
		ClientID:  "voyage-cli",
		Scopes:    []string{"openid", "offline_access"},
		Audience:  "https://api.example.com",
	}

	session, err := m.BeginLogin(context.Background(), cfg, "http://localhost:8989/")
	if err != nil {
		t.Fatalf("BeginLogin() unexpected error: %v", err)
	}

	if opened != session.AuthURL {
		t.Errorf("browser opened %q, want the authorization URL", opened)
	}

	parsed, err := url.Parse(session.AuthURL)
	if err != nil {
		t.Fatalf("authorization URL does not parse: %v", err)
	}
	query := parsed.Query()
	if !strings.HasPrefix(session.AuthURL, provider.URL+"/authorize") {
		t.Errorf("authorization URL %q not rooted at discovered endpoint", session.AuthURL)
	}
	if query.Get("code_challenge") == "" || query.Get("code_challenge_method") != "S256" {
		t.Errorf("authorization URL missing PKCE S256 challenge: %q", session.AuthURL)
	}
	if query.Get("state") == "" {
		t.Error("authorization URL missing state parameter")
	}
	if query.Get("audience") != cfg.Audience {
		t.Errorf("audience = %q, want %q", query.Get("audience"), cfg.Audience)
	}
	if strings.Contains(session.AuthURL, session.verifier) {
		t.Error("authorization URL leaks the code verifier")
	}

	// Second attempt reuses the cached discovery document.
	if _, err := m.BeginLogin(context.Background(), cfg, "http://localhost:8989/"); err != nil {
		t.Fatalf("second BeginLogin() unexpected error: %v", err)
	}
	if discoveryHits != 1 {
		t.Errorf("discovery fetched %d times, want 1", discoveryHits)
	}
}

func TestBeginLoginDiscoveryFailure(t *testing.T) {
	provider := httptest.NewServer(http.NotFoundHandler())
	defer provider.Close()

	m, _ := newTestManager(t)
	_, err := m.BeginLogin(context.Background(), &LoginConfig{
		IssuerURL: provider.URL,
		ClientID:  "voyage-cli",
	}, "http://localhost:8989/")
	if err == nil {
		t.Fatal("BeginLogin() expected error on discovery failure")
	}
}

func TestCompleteLogin(t *testing.T) {
	var gotCode, gotVerifier string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() unexpected error: %v", err)
		}
		gotCode = r.PostForm.Get("code")
		gotVerifier = r.PostForm.Get("code_verifier")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"t1","refresh_token":"r1","token_type":"Bearer","expires_in":3600,"scope":"openid"}`))
	}))
	defer provider.Close()

	m, store := newTestManager(t)
	session := &LoginSession{
		state:    "st",
		verifier: oauth2.GenerateVerifier(),
		config: &oauth2.Config{
			ClientID:    "voyage-cli",
			Endpoint:    oauth2.Endpoint{AuthURL: provider.URL + "/authorize", TokenURL: provider.URL + "/token"},
			RedirectURL: "http://localhost:8989/",
		},
	}

	if err := m.CompleteLogin(context.Background(), "production", session, "abc123"); err != nil {
		t.Fatalf("CompleteLogin() unexpected error: %v", err)
	}

	if gotCode != "abc123" {
		t.Errorf("code sent = %q, want abc123", gotCode)
	}
	if gotVerifier != session.verifier {
		t.Errorf("code_verifier sent = %q, want the session verifier", gotVerifier)
	}

	data, err := store.Load(context.Background(), "production")
	if err != nil || data == nil {
		t.Fatalf("Load() after login = (%s, %v), want persisted record", data, err)
	}
	rec, err := credential.Decode(data)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	if rec.AccessToken != "t1" || rec.RefreshToken != "r1" || rec.Scope != "openid" {
		t.Errorf("persisted record = %+v", rec)
	}
	if !rec.StoredAt.Equal(testNow) {
		t.Errorf("StoredAt = %v, want manager clock %v", rec.StoredAt, testNow)
	}
}

func TestCompleteLoginValidation(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{
			name:     "missing scope",
			response: `{"access_token":"t1","token_type":"Bearer","expires_in":3600}`,
		},
		{
			name:     "missing expiry",
			response: `{"access_token":"t1","token_type":"Bearer","scope":"openid"}`,
		},
		{
			name:     "wrong token type",
			response: `{"access_token":"t1","token_type":"MAC","expires_in":3600,"scope":"openid"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.response))
			}))
			defer provider.Close()

			m, store := newTestManager(t)
			session := &LoginSession{
				state:    "st",
				verifier: oauth2.GenerateVerifier(),
				config: &oauth2.Config{
					ClientID: "voyage-cli",
					Endpoint: oauth2.Endpoint{AuthURL: provider.URL + "/authorize", TokenURL: provider.URL + "/token"},
				},
			}

			if err := m.CompleteLogin(context.Background(), "production", session, "abc123"); err == nil {
				t.Fatal("CompleteLogin() expected validation error")
			}
			if tokenstore.Exists(context.Background(), store, "production") {
				t.Error("CompleteLogin() persisted a record despite failing validation")
			}
		})
	}
}

func TestVerifyState(t *testing.T) {
	session := &LoginSession{state: "st"}

	if err := session.VerifyState("st"); err != nil {
		t.Errorf("VerifyState() unexpected error for matching state: %v", err)
	}
	if err := session.VerifyState(""); err != nil {
		t.Errorf("VerifyState() unexpected error for omitted state: %v", err)
	}
	if err := session.VerifyState("other"); err == nil {
		t.Error("VerifyState() expected error for mismatched state")
	}
}

// failingStore errors on every operation, for logout failure tests.
type failingStore struct{}

func (f *failingStore) Save(context.Context, string, []byte) error { return errors.New("boom") }
func (f *failingStore) Load(context.Context, string) ([]byte, error) {
	return nil, errors.New("boom")
}
func (f *failingStore) Remove(context.Context, string) error { return errors.New("boom") }

func TestLogout(t *testing.T) {
	t.Run("removes the record", func(t *testing.T) {
		m, store := newTestManager(t)
		seedRecord(t, store, "production", &credential.Record{AccessToken: "t1"})

		if err := m.Logout(context.Background(), "production"); err != nil {
			t.Fatalf("Logout() unexpected error: %v", err)
		}
		if tokenstore.Exists(context.Background(), store, "production") {
			t.Error("Logout() left the credential behind")
		}
	})

	t.Run("propagates removal failures", func(t *testing.T) {
		m, err := NewManager(&failingStore{})
		if err != nil {
			t.Fatalf("NewManager() unexpected error: %v", err)
		}
		if err := m.Logout(context.Background(), "production"); err == nil {
			t.Error("Logout() expected error from failing store")
		}
	})
}
