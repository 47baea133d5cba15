// Package credstore provides persistent storage for the small set of named
// string values that make up Zotero credentials.
//
// Supports four backends with different security and deployment tradeoffs:
//   - File: JSON object on the local filesystem with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Env: Read-only environment variable access (requires external secret management)
//   - Memory: Process-local map, used by tests and one-shot invocations
//
// Set writes every value of one call together, so a reader never observes a
// partially written credential set. OAuth authorization requires writable
// storage (file, keyring or memory).
package credstore
