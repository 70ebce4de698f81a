// Package config loads the relay configuration from the environment.
//
// Values are resolved in order: built-in defaults, a `.env` file in the working
// directory (if present), then the process environment. The result is validated
// before the server starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	BackendLocal    = "local"
	BackendRembg    = "rembg"
	BackendBiRefNet = "birefnet"

	WebhookModeJSON        = "json"
	WebhookModeCloudEvents = "cloudevents"

	// MaxImageURLs 单次请求最多处理的图片数
	MaxImageURLs = 50
)

type Config struct {
	Primary Primary       `koanf:"primary" validate:"required"`
	Server  ServerConfig  `koanf:"server" validate:"required"`
	Log     LogConfig     `koanf:"log" validate:"required"`
	Webhook WebhookConfig `koanf:"webhook" validate:"required"`
	Fetch   FetchConfig   `koanf:"fetch" validate:"required"`
	Remover RemoverConfig `koanf:"remover" validate:"required"`
	Health  HealthConfig  `koanf:"health" validate:"required"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig WriteTimeout 为 0 时按 BatchBudget 推导
type ServerConfig struct {
	Port         string          `koanf:"port" validate:"required,numeric"`
	ReadTimeout  time.Duration   `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout time.Duration   `koanf:"write_timeout" validate:"omitempty,min=1s"`
	IdleTimeout  time.Duration   `koanf:"idle_timeout" validate:"min=1s"`
	RateLimit    RateLimitConfig `koanf:"rate_limit"`
}

// RateLimitConfig RPS 为 0 时不限流
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"required,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"required,oneof=json console"`
}

type WebhookConfig struct {
	URL         string        `koanf:"url" validate:"required,url"`
	Mode        string        `koanf:"mode" validate:"required,oneof=json cloudevents"`
	EventType   string        `koanf:"event_type" validate:"required"`
	EventSource string        `koanf:"event_source" validate:"required"`
	Timeout     time.Duration `koanf:"timeout" validate:"min=1s"`
}

type FetchConfig struct {
	Timeout       time.Duration `koanf:"timeout" validate:"min=1s"`
	MaxImageBytes int64         `koanf:"max_image_bytes" validate:"gt=0"`
}

type RemoverConfig struct {
	Backend string        `koanf:"backend" validate:"required,oneof=local rembg birefnet"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
	Local   LocalConfig   `koanf:"local"`
	Rembg   RembgConfig   `koanf:"rembg"`
	ComfyUI ComfyUIConfig `koanf:"comfyui"`
}

type LocalConfig struct {
	Tolerance float64 `koanf:"tolerance" validate:"gt=0,lt=1"`
	MaxSide   int     `koanf:"max_side" validate:"gte=16"`
	MaxPixels int     `koanf:"max_pixels" validate:"gt=0"`
	Trim      bool    `koanf:"trim"`
}

type RembgConfig struct {
	URL   string `koanf:"url" validate:"omitempty,url"`
	Model string `koanf:"model"`
}

type ComfyUIConfig struct {
	URL          string        `koanf:"url" validate:"omitempty,url"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"min=10ms"`
}

type HealthConfig struct {
	Schedule string `koanf:"schedule" validate:"required"`
}

// envKeys 环境变量到配置键的映射，未列出的变量忽略
var envKeys = map[string]string{
	"APP_ENV":               "primary.env",
	"PORT":                  "server.port",
	"SERVER_READ_TIMEOUT":   "server.read_timeout",
	"SERVER_WRITE_TIMEOUT":  "server.write_timeout",
	"SERVER_IDLE_TIMEOUT":   "server.idle_timeout",
	"RATE_LIMIT_RPS":        "server.rate_limit.rps",
	"RATE_LIMIT_BURST":      "server.rate_limit.burst",
	"LOG_LEVEL":             "log.level",
	"LOG_FORMAT":            "log.format",
	"WEBHOOK_URL":           "webhook.url",
	"WEBHOOK_MODE":          "webhook.mode",
	"WEBHOOK_EVENT_TYPE":    "webhook.event_type",
	"WEBHOOK_EVENT_SOURCE":  "webhook.event_source",
	"FORWARD_TIMEOUT":       "webhook.timeout",
	"FETCH_TIMEOUT":         "fetch.timeout",
	"MAX_IMAGE_BYTES":       "fetch.max_image_bytes",
	"REMOVER_BACKEND":       "remover.backend",
	"REMOVER_TIMEOUT":       "remover.timeout",
	"LOCAL_TOLERANCE":       "remover.local.tolerance",
	"LOCAL_MAX_SIDE":        "remover.local.max_side",
	"LOCAL_TRIM":            "remover.local.trim",
	"LOCAL_MAX_PIXELS":      "remover.local.max_pixels",
	"REMBG_URL":             "remover.rembg.url",
	"REMBG_MODEL":           "remover.rembg.model",
	"COMFYUI_URL":           "remover.comfyui.url",
	"COMFYUI_POLL_INTERVAL": "remover.comfyui.poll_interval",
	"HEALTH_SCHEDULE":       "health.schedule",
}

func Default() *Config {
	return &Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Port:        "8080",
			ReadTimeout: 10 * time.Second,
			IdleTimeout: 120 * time.Second,
			RateLimit:   RateLimitConfig{RPS: 0, Burst: 10},
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Webhook: WebhookConfig{
			Mode:        WebhookModeJSON,
			EventType:   "images.background.removed",
			EventSource: "rembg-relay",
			Timeout:     30 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:       30 * time.Second,
			MaxImageBytes: 20 << 20,
		},
		Remover: RemoverConfig{
			Backend: BackendLocal,
			Timeout: 2 * time.Minute,
			Local:   LocalConfig{Tolerance: 0.12, MaxSide: 512, MaxPixels: 40_000_000},
			Rembg:   RembgConfig{Model: "u2net"},
			ComfyUI: ComfyUIConfig{PollInterval: time.Second},
		},
		Health: HealthConfig{Schedule: "@every 30s"},
	}
}

// Load 读取环境变量并校验
func Load() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[strings.ToUpper(s)]
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = cfg.BatchBudget()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BatchBudget 一个满额批次在最慢情况下的耗时：每张图下载加去背景，再加一次转发
func (c *Config) BatchBudget() time.Duration {
	return MaxImageURLs*(c.Fetch.Timeout+c.Remover.Timeout) + c.Webhook.Timeout
}

// Validate 校验字段标签以及后端相关的必填项
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Remover.Backend {
	case BackendRembg:
		if c.Remover.Rembg.URL == "" {
			return fmt.Errorf("invalid config: REMBG_URL is required for backend %q", c.Remover.Backend)
		}
	case BackendBiRefNet:
		if c.Remover.ComfyUI.URL == "" {
			return fmt.Errorf("invalid config: COMFYUI_URL is required for backend %q", c.Remover.Backend)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Primary.Env == "production"
}
