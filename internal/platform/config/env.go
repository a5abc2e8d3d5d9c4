// Package config loads configuration from the process environment.
//
// Configuration is parsed explicitly at startup and handed down as plain
// structs; packages never read the environment as an import side effect.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
