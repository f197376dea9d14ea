package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process-level configuration. Everything operators can edit
// at runtime lives in the settings store instead; this holds deployment
// concerns only (paths, credentials, feature flags).
type Config struct {
	ListenAddr string `envconfig:"VINSCAN_LISTEN_ADDR" default:":8080"`
	DBPath     string `envconfig:"VINSCAN_DB_PATH" default:"/data/vinscan.db"`
	PhotoPath  string `envconfig:"VINSCAN_PHOTO_PATH" default:"/data/photos"`

	// SavePhotos enables persisting captured images to the blob store at
	// commit time. Off by default: photos are discarded after validation.
	SavePhotos bool `envconfig:"VINSCAN_SAVE_PHOTOS" default:"false"`

	AnthropicAPIKey string `envconfig:"VINSCAN_ANTHROPIC_API_KEY"`
	ClaudeModel     string `envconfig:"VINSCAN_CLAUDE_MODEL" default:"claude-sonnet-4-5"`

	JWTSecret  string        `envconfig:"VINSCAN_JWT_SECRET"`
	SessionTTL time.Duration `envconfig:"VINSCAN_SESSION_TTL" default:"12h"`

	LogLevel string `envconfig:"VINSCAN_LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"VINSCAN_LOG_FILE" default:""`
}

// Load reads the environment, after overlaying a .env file when one exists
// in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("VINSCAN_ANTHROPIC_API_KEY is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("VINSCAN_JWT_SECRET is required")
	}
	return &cfg, nil
}
