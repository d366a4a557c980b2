// Package auth owns the session-token lifecycle: it decides whether a
// caller gets a usable access token and is the only package that talks to
// the OAuth provider.
//
// Passive reads (ValidAccessToken, State) never fail: storage and refresh
// problems degrade to "unauthenticated" with a logged warning, because
// they run implicitly before every API request. Explicit user actions
// (BeginLogin, CompleteLogin, Logout) surface errors.
//
// The per-environment credential moves through a small state machine:
// no credential → valid → expired, where expired resolves on the next
// access attempt either back to valid (refresh grant) or to no credential
// (failed refresh, logout).
package auth
