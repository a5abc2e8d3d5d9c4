package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultRPDisplayName is the relying party name shown in authenticator prompts.
const DefaultRPDisplayName = "Taskboard"

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"TASKBOARD_WEBAUTHN_RP_DISPLAY_NAME"`
	RPID          string        `env:"TASKBOARD_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"TASKBOARD_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	ChallengeTTL  time.Duration `env:"TASKBOARD_WEBAUTHN_CHALLENGE_TTL"   envDefault:"5m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	// env.Parse aggregates field errors; fields that parsed fine keep
	// their values, so only repair the ones left unset.
	_ = env.Parse(&cfg)
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = DefaultRPDisplayName
	}
	if cfg.RPID == "" {
		cfg.RPID = "localhost"
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8080"}
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return cfg
}
