package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr           string        `envconfig:"ADDR" default:":8080"`
	DatabaseDSN    string        `envconfig:"DB_DSN" required:"true"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	PushGatewayURL string        `envconfig:"PUSH_GATEWAY_URL"`
	PushTimeout    time.Duration `envconfig:"PUSH_TIMEOUT" default:"10s"`
	UploadDir      string        `envconfig:"UPLOAD_DIR" default:"./uploads"`
	UploadMaxBytes int64         `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`
	PresenceTTL    time.Duration `envconfig:"PRESENCE_TTL" default:"5m"`
	Dev            bool          `envconfig:"DEV" default:"false"`
}

// Load reads the environment, with an optional .env file for local runs.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
