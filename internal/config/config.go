// Package config loads the application settings from an optional YAML file
// and the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fotacos/internal/imageproc"
	"fotacos/internal/utils"
)

// Config represents the application configuration. It is a plain value:
// components receive the fields they need when they are constructed.
type Config struct {
	DatabaseURL  string   `yaml:"database_url"`
	UploadDir    string   `yaml:"upload_dir"`
	PublicPrefix string   `yaml:"public_prefix"`
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	CORSOrigins  []string `yaml:"cors_origins"`

	OriginalQuality  int   `yaml:"original_quality"`
	ThumbnailSize    int   `yaml:"thumbnail_size"`
	ThumbnailQuality int   `yaml:"thumbnail_quality"`
	MaxUploadBytes   int64 `yaml:"max_upload_bytes"`
	MaxImagePixels   int64 `yaml:"max_image_pixels"`

	InboxDir   string `yaml:"inbox_dir"`
	WebDistDir string `yaml:"web_dist_dir"`
	LogDir     string `yaml:"log_dir"`
	Debug      bool   `yaml:"debug"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DatabaseURL:      "sqlite://fotacos.db",
		UploadDir:        "public/picts",
		PublicPrefix:     "/public/picts",
		Host:             "0.0.0.0",
		Port:             8000,
		CORSOrigins:      []string{"*"},
		OriginalQuality:  imageproc.DefaultOriginalQuality,
		ThumbnailSize:    imageproc.DefaultThumbnailSize,
		ThumbnailQuality: imageproc.DefaultThumbnailQuality,
		MaxUploadBytes:   50 << 20,
		MaxImagePixels:   imageproc.DefaultMaxPixels,
		WebDistDir:       "web/dist",
		LogDir:           "logs",
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg = cfg.withEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) withEnv() Config {
	c.DatabaseURL = utils.GetEnv("DATABASE_URL", c.DatabaseURL)
	c.UploadDir = utils.GetEnv("UPLOAD_DIR", c.UploadDir)
	c.PublicPrefix = utils.GetEnv("PUBLIC_PREFIX", c.PublicPrefix)
	c.Host = utils.GetEnv("API_HOST", c.Host)
	c.Port = utils.GetEnvInt("API_PORT", c.Port)
	c.CORSOrigins = utils.GetEnvList("CORS_ORIGINS", c.CORSOrigins)
	c.OriginalQuality = utils.GetEnvInt("ORIGINAL_QUALITY", c.OriginalQuality)
	c.ThumbnailSize = utils.GetEnvInt("THUMBNAIL_SIZE", c.ThumbnailSize)
	c.ThumbnailQuality = utils.GetEnvInt("THUMBNAIL_QUALITY", c.ThumbnailQuality)
	c.MaxUploadBytes = utils.GetEnvInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.MaxImagePixels = utils.GetEnvInt64("MAX_IMAGE_PIXELS", c.MaxImagePixels)
	c.InboxDir = utils.GetEnv("INBOX_DIR", c.InboxDir)
	c.WebDistDir = utils.GetEnv("WEB_DIST_DIR", c.WebDistDir)
	c.LogDir = utils.GetEnv("LOG_DIR", c.LogDir)
	c.Debug = utils.GetEnvBool("DEBUG", c.Debug)
	return c
}

// Validate checks the ranges of the numeric settings and the required paths.
func (c Config) Validate() error {
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir is required")
	}
	if !strings.HasPrefix(c.PublicPrefix, "/") {
		return fmt.Errorf("public_prefix must start with /")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.OriginalQuality < 0 || c.OriginalQuality > 100 {
		return fmt.Errorf("original_quality %d out of range 0-100", c.OriginalQuality)
	}
	if c.ThumbnailQuality < 0 || c.ThumbnailQuality > 100 {
		return fmt.Errorf("thumbnail_quality %d out of range 0-100", c.ThumbnailQuality)
	}
	if c.ThumbnailSize <= 0 {
		return fmt.Errorf("thumbnail_size must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("max_image_pixels must be positive")
	}
	return nil
}

// Address returns host:port for the HTTP listener.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ImageOptions returns the normalizer settings.
func (c Config) ImageOptions() imageproc.Options {
	return imageproc.Options{
		OriginalQuality:  c.OriginalQuality,
		ThumbnailSize:    c.ThumbnailSize,
		ThumbnailQuality: c.ThumbnailQuality,
		MaxPixels:        c.MaxImagePixels,
	}
}
