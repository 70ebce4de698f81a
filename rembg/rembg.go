package rembg

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaos-io/rembg-relay/config"
	nhttp "github.com/chaos-io/rembg-relay/util/http"
)

var (
	ErrNoForeground  = errors.New("no foreground detected")
	ErrImageTooLarge = errors.New("image too large")
)

// Remover 去除图片背景：输入原始图片字节，输出带透明通道的图片字节
type Remover interface {
	Remove(ctx context.Context, data []byte) ([]byte, error)
}

// Pinger 远程后端实现，用于健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// New 按配置构造背景去除后端
func New(cfg config.RemoverConfig, cli nhttp.IClient) (Remover, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		return NewLocalRemBG(cfg.Local.Tolerance, cfg.Local.MaxSide, cfg.Local.MaxPixels, cfg.Local.Trim), nil
	case config.BackendRembg:
		return NewServerRemBG(cfg.Rembg.URL, cfg.Rembg.Model, cli), nil
	case config.BackendBiRefNet:
		return NewBiRefNetRemBG(cfg.ComfyUI.URL, cfg.ComfyUI.PollInterval, cli), nil
	default:
		return nil, fmt.Errorf("unknown remover backend %q", cfg.Backend)
	}
}
