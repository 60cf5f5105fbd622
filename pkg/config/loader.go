package config

import (
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// Load populates a configuration struct from environment variables based on
// its `env:` field tags. A local .env file, if present, is loaded once per
// process before the first parse; a missing file is not an error so the same
// binary works in containers and on developer machines.
//
// Example:
//
//	type StoreConfig struct {
//		Driver string `env:"STORE_DRIVER" envDefault:"postgres"`
//	}
//
//	var cfg StoreConfig
//	if err := config.Load(&cfg); err != nil {
//		// handle error
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	if err := env.Parse(v); err != nil {
		return fmt.Errorf("%w: %w", ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Intended for configuration
// without which the process cannot meaningfully start.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: failed to load required configuration: %v", err))
	}
}
