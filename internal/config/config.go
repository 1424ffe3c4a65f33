package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config carries every recognized environment option. Optional settings fall
// back gracefully: missing storage credentials disable persistence, a missing
// transformation key selects the mock backend.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Transformation backend.
	ImagenBackend string `env:"IMAGEN_BACKEND" envDefault:"openai"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	Prompt        string `env:"TOTEM_PROMPT"`

	// Durable object storage.
	AWSRegion          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Bucket           string `env:"AWS_S3_BUCKET_NAME"`

	// Legacy blob-store write token. Recognized so older deployments surface
	// a clear warning instead of silently losing persistence; delivery now
	// goes through S3.
	BlobReadWriteToken string `env:"BLOB_READ_WRITE_TOKEN"`

	// Optional session archive.
	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"totem"`

	// Display clients.
	JWTSecret     string `env:"JWT_SECRET" envDefault:"totem-dev-secret"`
	DisplaySecret string `env:"DISPLAY_SECRET" envDefault:"totem-display"`

	// Download endpoint allow-list, comma separated.
	AllowedDownloadDomains []string `env:"DOWNLOAD_ALLOWED_DOMAINS" envDefault:"amazonaws.com,blob.vercel-storage.com"`

	// Kiosk loop. CameraSource points at an image file used as the frame
	// source; empty selects a synthetic test pattern.
	KioskEnabled bool   `env:"KIOSK_ENABLED" envDefault:"true"`
	CameraSource string `env:"CAMERA_SOURCE"`
}

// Load reads .env when present and parses the environment.
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if !cfg.StorageConfigured() {
		if cfg.BlobReadWriteToken != "" {
			logger.Warn("BLOB_READ_WRITE_TOKEN is set but blob delivery moved to S3, configure the AWS_* settings to enable persistence")
		} else {
			logger.Warn("Object storage not fully configured, results will be delivered inline only")
		}
	}
	if cfg.MongoURI == "" {
		logger.Info("MONGODB_URI not set, session archive disabled")
	}

	return cfg, nil
}

// StorageConfigured reports whether every setting needed for S3 persistence is
// present.
func (c *Config) StorageConfigured() bool {
	return c.S3Bucket != "" && c.AWSRegion != "" &&
		c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}
