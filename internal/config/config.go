// Package config loads service configuration from the environment.
//
// Each concern has its own struct with env tags, a constructor and a
// normalize step that rejects unusable values. Load assembles all of them for
// the serve command; the CLI subcommands load only what they need.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Renderer names accepted by REPORT_RENDERER.
const (
	RendererPDF    = "pdf"
	RendererChrome = "chrome"
)

// ServerConfig controls the HTTP listener and database.
type ServerConfig struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// GeminiConfig selects the content-synthesis models.
type GeminiConfig struct {
	APIKey        string `env:"GEMINI_API_KEY"`
	ModelLite     string `env:"GEMINI_MODEL_LITE"`
	ModelStandard string `env:"GEMINI_MODEL_STANDARD"`
	ModelAdvanced string `env:"GEMINI_MODEL_ADVANCED"`
}

// EmailConfig holds the SMTP settings used to deliver reports. An empty Host
// disables delivery.
type EmailConfig struct {
	Host     string `env:"EMAIL_HOST"`
	Port     int    `env:"EMAIL_PORT" envDefault:"587"`
	Secure   bool   `env:"EMAIL_SECURE"`
	User     string `env:"EMAIL_USER"`
	Password string `env:"EMAIL_PASSWORD"`
	From     string `env:"EMAIL_FROM"`
	FromName string `env:"EMAIL_FROM_NAME" envDefault:"Values Report"`
}

// Enabled reports whether an SMTP host is configured.
func (c *EmailConfig) Enabled() bool {
	return c.Host != ""
}

// ReportConfig controls document rendering.
type ReportConfig struct {
	Renderer      string        `env:"REPORT_RENDERER" envDefault:"pdf"`
	LogoPath      string        `env:"REPORT_LOGO_PATH"`
	ChromeTimeout time.Duration `env:"REPORT_CHROME_TIMEOUT" envDefault:"60s"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT"`
}

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig
	Gemini     GeminiConfig
	Email      EmailConfig
	Report     ReportConfig
	Log        LogConfig
	JWT        *JWTConfig
	AccessCode *AccessCodeConfig
}

// Load reads every section from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	jwtCfg, err := NewJWTConfig()
	if err != nil {
		return nil, err
	}
	cfg.JWT = jwtCfg

	codeCfg, err := NewAccessCodeConfig()
	if err != nil {
		return nil, err
	}
	cfg.AccessCode = codeCfg

	return cfg, nil
}

// NewLogConfig reads only the logging section, for commands that do not
// need the rest.
func NewLogConfig() (*LogConfig, error) {
	cfg := &LogConfig{}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewGeminiConfig reads only the model section. The API key is required.
func NewGeminiConfig() (*GeminiConfig, error) {
	cfg := &GeminiConfig{}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required but not set")
	}
	return cfg, nil
}

// NewEmailConfig reads only the SMTP section.
func NewEmailConfig() (*EmailConfig, error) {
	cfg := &EmailConfig{}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewReportConfig reads only the rendering section.
func NewReportConfig() (*ReportConfig, error) {
	cfg := &ReportConfig{}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// normalize validates the configuration.
func (c *Config) normalize() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Server.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required but not set")
	}
	if err := c.Email.normalize(); err != nil {
		return err
	}
	return c.Report.normalize()
}

func (c *EmailConfig) normalize() error {
	if !c.Enabled() {
		return nil
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("EMAIL_PORT must be between 1 and 65535, got: %d", c.Port)
	}
	if c.From == "" {
		c.From = c.User
	}
	if c.From == "" {
		return fmt.Errorf("EMAIL_FROM is required when EMAIL_HOST is set")
	}
	return nil
}

func (c *ReportConfig) normalize() error {
	c.Renderer = strings.ToLower(strings.TrimSpace(c.Renderer))
	switch c.Renderer {
	case "":
		c.Renderer = RendererPDF
	case RendererPDF, RendererChrome:
	default:
		return fmt.Errorf("REPORT_RENDERER must be %q or %q, got: %q", RendererPDF, RendererChrome, c.Renderer)
	}
	if c.ChromeTimeout <= 0 {
		return fmt.Errorf("REPORT_CHROME_TIMEOUT must be positive, got: %s", c.ChromeTimeout)
	}
	return nil
}
