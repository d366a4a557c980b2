// Package tokenstore persists one opaque JSON credential blob per named
// environment.
//
// Two backends with different security and deployment tradeoffs:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows
//     Credential Manager, Secret Service on Linux)
//   - File: local filesystem storage with atomic writes and secure
//     permissions, for headless/CI/container environments without a
//     secret service
//
// FallbackStore chains them keyring-first so tokens stay out of plaintext
// files wherever the platform allows, while the CLI keeps working where it
// does not.
package tokenstore
