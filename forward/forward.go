// Package forward delivers a processed batch to the downstream webhook.
package forward

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaos-io/rembg-relay/batch"
	"github.com/chaos-io/rembg-relay/config"
	nhttp "github.com/chaos-io/rembg-relay/util/http"
)

// Payload 发送给 webhook 的请求体
type Payload struct {
	Images []batch.Result `json:"images"`
}

// StatusError webhook 返回了非 200 状态码
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded with HTTP status %d", e.StatusCode)
}

type Forwarder interface {
	Forward(ctx context.Context, results []batch.Result) error
}

// New 按 webhook 模式构造 Forwarder
func New(cfg config.WebhookConfig, cli nhttp.IClient) (Forwarder, error) {
	switch cfg.Mode {
	case config.WebhookModeJSON, "":
		return NewWebhookForwarder(cfg.URL, cfg.Timeout, cli), nil
	case config.WebhookModeCloudEvents:
		return NewCloudEventsForwarder(cfg.URL, cfg.EventSource, cfg.EventType, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown webhook mode %q", cfg.Mode)
	}
}

// WebhookForwarder 以 JSON POST 的方式转发
type WebhookForwarder struct {
	url     string
	timeout time.Duration
	cli     nhttp.IClient
}

func NewWebhookForwarder(url string, timeout time.Duration, cli nhttp.IClient) *WebhookForwarder {
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	return &WebhookForwarder{
		url:     url,
		timeout: timeout,
		cli:     cli,
	}
}

func (f *WebhookForwarder) Forward(ctx context.Context, results []batch.Result) error {
	if results == nil {
		results = []batch.Result{}
	}

	reqParam := &nhttp.RequestParam{
		RequestURI: f.url,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       Payload{Images: results},
		Timeout:    f.timeout,
	}

	err := f.cli.DoHTTPRequest(ctx, reqParam)
	var statusErr *nhttp.StatusError
	if errors.As(err, &statusErr) {
		return &StatusError{StatusCode: statusErr.StatusCode}
	}
	if err != nil {
		return err
	}
	if reqParam.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: reqParam.StatusCode}
	}

	zerolog.Ctx(ctx).Info().Int("images", len(results)).Msg("batch forwarded to webhook")
	return nil
}
