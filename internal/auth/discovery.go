package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// discoveryDocument is the subset of the OIDC provider metadata
// (RFC 8414) this package consumes.
type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// endpoints resolves the provider's authorization and token endpoints for
// cfg. Explicit config overrides skip discovery entirely; otherwise the
// issuer's well-known document is fetched once per issuer and cached for
// the lifetime of the Manager, keeping the passive refresh path at a
// single network round trip in the steady state.
func (m *Manager) endpoints(ctx context.Context, cfg *LoginConfig) (oauth2.Endpoint, error) {
	if cfg.AuthorizationURL != "" && cfg.TokenURL != "" {
		return oauth2.Endpoint{
			AuthURL:  cfg.AuthorizationURL,
			TokenURL: cfg.TokenURL,
		}, nil
	}

	m.mu.Lock()
	cached, ok := m.discovered[cfg.IssuerURL]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	doc, err := m.discover(ctx, cfg.IssuerURL)
	if err != nil {
		return oauth2.Endpoint{}, err
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  doc.AuthorizationEndpoint,
		TokenURL: doc.TokenEndpoint,
	}

	m.mu.Lock()
	m.discovered[cfg.IssuerURL] = endpoint
	m.mu.Unlock()

	return endpoint, nil
}

// discover fetches and validates the issuer's well-known configuration.
func (m *Manager) discover(ctx context.Context, issuerURL string) (*discoveryDocument, error) {
	wellKnown := strings.TrimSuffix(issuerURL, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("building discovery request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching provider configuration from %s: %w", wellKnown, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching provider configuration from %s: unexpected status %s", wellKnown, resp.Status)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding provider configuration: %w", err)
	}

	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return nil, fmt.Errorf("provider configuration from %s is missing authorization or token endpoint", wellKnown)
	}

	return &doc, nil
}
