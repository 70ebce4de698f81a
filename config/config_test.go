package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/images")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://hooks.example.com/images", cfg.Webhook.URL)
	assert.Equal(t, WebhookModeJSON, cfg.Webhook.Mode)
	assert.Equal(t, BackendLocal, cfg.Remover.Backend)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(20<<20), cfg.Fetch.MaxImageBytes)
	assert.Equal(t, "@every 30s", cfg.Health.Schedule)
	assert.Equal(t, 40_000_000, cfg.Remover.Local.MaxPixels)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_WriteTimeout(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want time.Duration
	}{
		{
			name: "默认按批次预算推导",
			env:  map[string]string{},
			want: 2*time.Hour + 5*time.Minute + 30*time.Second,
		},
		{
			name: "随各项超时变化",
			env: map[string]string{
				"FETCH_TIMEOUT":   "10s",
				"REMOVER_TIMEOUT": "1m",
				"FORWARD_TIMEOUT": "20s",
			},
			want: 50*70*time.Second + 20*time.Second,
		},
		{
			name: "显式配置优先",
			env: map[string]string{
				"SERVER_WRITE_TIMEOUT": "15m",
				"REMOVER_TIMEOUT":      "10m",
			},
			want: 15 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WEBHOOK_URL", "https://hooks.example.com/images")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Server.WriteTimeout)
			if _, explicit := tt.env["SERVER_WRITE_TIMEOUT"]; !explicit {
				assert.Equal(t, cfg.BatchBudget(), cfg.Server.WriteTimeout)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/images")
	t.Setenv("WEBHOOK_MODE", "cloudevents")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("LOCAL_TOLERANCE", "0.2")
	t.Setenv("LOCAL_TRIM", "true")
	t.Setenv("LOCAL_MAX_PIXELS", "1000000")
	t.Setenv("REMOVER_BACKEND", "rembg")
	t.Setenv("REMBG_URL", "http://rembg:7000")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, WebhookModeCloudEvents, cfg.Webhook.Mode)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.InDelta(t, 2.5, cfg.Server.RateLimit.RPS, 1e-9)
	assert.InDelta(t, 0.2, cfg.Remover.Local.Tolerance, 1e-9)
	assert.True(t, cfg.Remover.Local.Trim)
	assert.Equal(t, 1_000_000, cfg.Remover.Local.MaxPixels)
	assert.Equal(t, BackendRembg, cfg.Remover.Backend)
	assert.Equal(t, "http://rembg:7000", cfg.Remover.Rembg.URL)
	assert.Equal(t, "u2net", cfg.Remover.Rembg.Model)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "缺少webhook地址",
			env:     map[string]string{},
			wantErr: "URL",
		},
		{
			name: "未知的后端",
			env: map[string]string{
				"WEBHOOK_URL":     "https://hooks.example.com",
				"REMOVER_BACKEND": "magic",
			},
			wantErr: "Backend",
		},
		{
			name: "rembg后端缺少地址",
			env: map[string]string{
				"WEBHOOK_URL":     "https://hooks.example.com",
				"REMOVER_BACKEND": "rembg",
			},
			wantErr: "REMBG_URL is required",
		},
		{
			name: "birefnet后端缺少地址",
			env: map[string]string{
				"WEBHOOK_URL":     "https://hooks.example.com",
				"REMOVER_BACKEND": "birefnet",
			},
			wantErr: "COMFYUI_URL is required",
		},
		{
			name: "日志级别非法",
			env: map[string]string{
				"WEBHOOK_URL": "https://hooks.example.com",
				"LOG_LEVEL":   "verbose",
			},
			wantErr: "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WEBHOOK_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
