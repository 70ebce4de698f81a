package rembg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/rembg-relay/config"
)

func TestNew(t *testing.T) {
	t.Parallel()

	base := config.Default().Remover

	tests := []struct {
		name    string
		backend string
		want    interface{}
		pinger  bool
	}{
		{name: "local", backend: config.BackendLocal, want: &LocalRemBG{}},
		{name: "rembg", backend: config.BackendRembg, want: &ServerRemBG{}, pinger: true},
		{name: "birefnet", backend: config.BackendBiRefNet, want: &BiRefNetRemBG{}, pinger: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base
			cfg.Backend = tt.backend
			cfg.Rembg.URL = "http://rembg:7000"
			cfg.ComfyUI.URL = "http://comfyui:8188"

			r, err := New(cfg, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, r)

			_, ok := r.(Pinger)
			assert.Equal(t, tt.pinger, ok)
		})
	}

	_, err := New(config.RemoverConfig{Backend: "magic"}, nil)
	assert.EqualError(t, err, `unknown remover backend "magic"`)
}
