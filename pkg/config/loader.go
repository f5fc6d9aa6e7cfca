package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]any)

	defaultEnvLoaded sync.Once
)

// Load populates the given configuration struct from environment variables.
// The default .env file is loaded once per process before the first parse;
// a missing .env file is not an error. Each configuration type is parsed at
// most once and served from an in-process cache afterwards.
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	key := typeName[T]()

	cacheMu.RLock()
	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		cacheMu.RUnlock()
		return nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	// Re-check under the write lock: another goroutine may have parsed
	// the same type while we were waiting.
	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	cache[key] = *v // store a copy so callers cannot mutate the cache
	return nil
}

// MustLoad works like Load but panics on failure. Intended for configuration
// the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: failed to load required configuration: %v", err))
	}
}

// ResetCache clears all cached configurations. Intended for tests that
// mutate the process environment between loads.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	clear(cache)
}

func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
