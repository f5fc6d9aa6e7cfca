package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storekit/pkg/config"
)

type testConfig struct {
	Name    string `env:"TEST_APP_NAME" envDefault:"storekit"`
	Port    int    `env:"TEST_APP_PORT" envDefault:"8080"`
	Debug   bool   `env:"TEST_APP_DEBUG" envDefault:"false"`
	Require string `env:"TEST_APP_REQUIRED,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults applied when env unset", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("TEST_APP_REQUIRED", "set")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "storekit", cfg.Name)
		assert.Equal(t, 8080, cfg.Port)
		assert.False(t, cfg.Debug)
	})

	t.Run("env values override defaults", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("TEST_APP_NAME", "billing")
		t.Setenv("TEST_APP_PORT", "9090")
		t.Setenv("TEST_APP_DEBUG", "true")
		t.Setenv("TEST_APP_REQUIRED", "set")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "billing", cfg.Name)
		assert.Equal(t, 9090, cfg.Port)
		assert.True(t, cfg.Debug)
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		config.ResetCache()

		var cfg testConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("second load served from cache", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("TEST_APP_REQUIRED", "first")

		var first testConfig
		require.NoError(t, config.Load(&first))

		// Env change is invisible until the cache is reset.
		t.Setenv("TEST_APP_REQUIRED", "second")
		var second testConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, "first", second.Require)
	})

	t.Run("nil pointer rejected", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}

func TestMustLoadPanics(t *testing.T) {
	config.ResetCache()

	type strictConfig struct {
		Value string `env:"TEST_STRICT_VALUE,required"`
	}

	assert.Panics(t, func() {
		var cfg strictConfig
		config.MustLoad(&cfg)
	})
}
