package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	APIPort                     int    `env:"API_PORT,default=8080"`
	LogLevel                    string `env:"LOG_LEVEL,default=info"`
	WorkDir                     string `env:"WORK_DIR"`
	SessionTimeoutSeconds       int    `env:"SESSION_TIMEOUT_SECONDS,default=3600"`
	SessionSweepIntervalSeconds int    `env:"SESSION_SWEEP_INTERVAL_SECONDS,default=300"`
	MaxUploadBytes              int64  `env:"MAX_UPLOAD_BYTES,default=104857600"`
	RegistryURL                 string `env:"REGISTRY_URL,required=true"`
	RegistryToken               string `env:"REGISTRY_TOKEN,required=true"`
	VerificationBaseURL         string `env:"VERIFICATION_BASE_URL,default=http://localhost:8080"`
	LookupRateLimitPerSec       int    `env:"LOOKUP_RATE_LIMIT_PER_SEC,default=10"`
	RedisURL                    string `env:"REDIS_URL"`
	DatabaseDSN                 string `env:"DATABASE_DSN"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepIntervalSeconds) * time.Second
}
