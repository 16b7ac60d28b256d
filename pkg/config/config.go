// Package config loads operational settings (log level/format, KV
// store driver) from environment variables or a .env file,
// the way the system-design-library's config package does. The broker's
// required identity flags (--host, --port) are parsed separately with
// the standard flag package, per spec.md §6 — this package only fills
// in the ambient, optional knobs.
package config

import (
	"github.com/chris-alexander-pop/lamport-broker/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads cfg from a .env file if present, falling back to the
// process environment, then validates the result.
func Load[T any](cfg *T) error {
	if err := cleanenv.ReadConfig(".env", cfg); err != nil {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return errors.Wrap(err, "failed to read env config")
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "config validation failed")
	}
	return nil
}
