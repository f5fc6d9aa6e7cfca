package prefs

import "context"

// Store is a small persisted key-value store for client preferences.
// Values are plain strings; callers own their key naming and encoding.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the value for a key.
	// Returns ErrKeyNotFound if the key has never been set or was deleted.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value under a key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}

// GetBool reads a key as a boolean. Absent keys return the fallback value;
// any stored value other than "true" reads as false.
func GetBool(ctx context.Context, s Store, key string, fallback bool) bool {
	v, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return v == "true"
}

// SetBool stores a boolean under a key.
func SetBool(ctx context.Context, s Store, key string, value bool) error {
	if value {
		return s.Set(ctx, key, "true")
	}
	return s.Set(ctx, key, "false")
}
