// Package prefs provides a minimal persisted key-value store for client
// preferences, such as the last purchased plan or a sandbox-mode flag.
//
// Three backends are included:
//
//   - NewMemoryStore: volatile, for tests and throwaway demo runs.
//   - NewFileStore: a single JSON file rewritten atomically on mutation,
//     suitable for a single-device client.
//   - NewRedisStore: shared storage for deployments where preferences must
//     survive the process, connected via URL with bounded retries.
//
// All backends implement the same Store interface and return ErrKeyNotFound
// for absent keys, so callers can switch backends through configuration.
package prefs
