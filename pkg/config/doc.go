// Package config loads application configuration from environment variables
// into annotated Go structs.
//
// It combines github.com/joho/godotenv (optional .env file loading) with
// github.com/caarlos0/env/v11 (struct tag parsing) and caches each parsed
// configuration type for the lifetime of the process.
//
// Usage:
//
//	type BillingConfig struct {
//	    APIKey      string `env:"BILLING_API_KEY,required"`
//	    Environment string `env:"BILLING_ENVIRONMENT" envDefault:"production"`
//	}
//
//	var cfg BillingConfig
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Subsequent Load calls for the same type are served from the cache. Tests
// that change the environment can call ResetCache between loads.
package config
