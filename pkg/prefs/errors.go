package prefs

import "errors"

var (
	// ErrKeyNotFound is returned by Get when no value is stored under the key.
	ErrKeyNotFound = errors.New("preference key not found")

	// ErrFailedToPersist is returned when a backend cannot durably write a value.
	ErrFailedToPersist = errors.New("failed to persist preference")

	// ErrFailedToParseRedisConnString is returned for malformed Redis connection URLs.
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")

	// ErrRedisNotReady is returned when the Redis server cannot be reached
	// within the configured retry budget.
	ErrRedisNotReady = errors.New("redis server is not ready")
)
