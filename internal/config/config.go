// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/photoquest.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	WebDir   string     `env:"WEB_DIR"`

	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"72h"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`

	AI       AI       `envPrefix:"OPENAI_"`
	POI      POI      `envPrefix:"POI_"`
	Geocoder Geocoder `envPrefix:"NOMINATIM_"`

	OverpassURL      string        `env:"OVERPASS_URL" envDefault:"https://overpass-api.de/api/interpreter"`
	UserAgent        string        `env:"USER_AGENT" envDefault:"photoquest/1.0 (+https://github.com/playperu/photoquest)"`
	PromptDir        string        `env:"PROMPT_DIR"`
	GenerationTemp   float32       `env:"GENERATION_TEMPERATURE" envDefault:"0.7"`
	AIRequestTimeout time.Duration `env:"AI_REQUEST_TIMEOUT" envDefault:"90s"`
	AIRatePerMinute  int           `env:"AI_RATE_PER_MINUTE" envDefault:"10"`
	AIRateBurst      int           `env:"AI_RATE_BURST" envDefault:"3"`
	MetricsEnabled   bool          `env:"METRICS_ENABLED" envDefault:"true"`
}

type AI struct {
	APIKey      string `env:"API_KEY"`
	BaseURL     string `env:"BASE_URL"`
	Model       string `env:"MODEL" envDefault:"gpt-4o-mini"`
	VisionModel string `env:"VISION_MODEL"`
}

type POI struct {
	Timeout time.Duration `env:"TIMEOUT" envDefault:"12s"`
	Radius  float64       `env:"RADIUS" envDefault:"800"`
	Limit   int           `env:"LIMIT" envDefault:"10"`
}

type Geocoder struct {
	URL string  `env:"URL" envDefault:"https://nominatim.openstreetmap.org/search"`
	RPS float64 `env:"RPS" envDefault:"1"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.POI.Timeout <= 0:
		return errors.New("POI_TIMEOUT must be positive")
	case c.POI.Radius <= 0:
		return errors.New("POI_RADIUS must be positive")
	case c.POI.Limit <= 0:
		return errors.New("POI_LIMIT must be positive")
	case c.Geocoder.RPS <= 0:
		return errors.New("NOMINATIM_RPS must be positive")
	case c.SessionTTL <= 0 || c.SessionSweepInterval <= 0:
		return errors.New("SESSION_TTL and SESSION_SWEEP_INTERVAL must be positive")
	case c.AIRatePerMinute <= 0 || c.AIRateBurst <= 0:
		return errors.New("AI_RATE_PER_MINUTE and AI_RATE_BURST must be positive")
	}
	return nil
}
