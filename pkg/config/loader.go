// Package config loads environment-driven configuration structs.
//
// Fields are populated from `env` struct tags by caarlos0/env. A .env file in
// the working directory is applied once, before the first Load, without
// overriding variables already set in the process environment. Successfully
// parsed structs are cached per type.
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
	ErrParsingConfig = errors.New("config: failed to parse environment variables")
	ErrNilPointer    = errors.New("config: nil pointer passed to Load")
)

var (
	mu     sync.Mutex
	dotenv sync.Once
	cache  = make(map[reflect.Type]any)
)

// Load fills v from the environment. The first successful result for a type is
// cached and returned to later callers; failures are not cached.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenv.Do(func() {
		// A missing .env file is normal outside development.
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	cache[key] = parsed
	*v = parsed
	return nil
}

// MustLoad is Load for required configuration. It panics on failure.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// LoadEnv applies the given env files, later files overriding earlier ones.
// Variables set in the process environment are overridden too, and the cache is reset.
func LoadEnv(paths ...string) error {
	if err := godotenv.Overload(paths...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	ResetCache()
	return nil
}

// ResetCache drops every cached struct.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cache = make(map[reflect.Type]any)
}
