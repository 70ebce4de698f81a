package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	nhttp "github.com/chaos-io/rembg-relay/util/http"
)

// DownloadStatusError 图片地址返回了非 200 状态码
type DownloadStatusError struct {
	StatusCode int
}

func (e *DownloadStatusError) Error() string {
	return fmt.Sprintf("Failed to download image. HTTP Status: %d", e.StatusCode)
}

// Fetcher 下载图片
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type HTTPFetcher struct {
	cli     nhttp.IClient
	timeout time.Duration
	maxSize int64
}

func NewHTTPFetcher(cli nhttp.IClient, timeout time.Duration, maxSize int64) *HTTPFetcher {
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	return &HTTPFetcher{
		cli:     cli,
		timeout: timeout,
		maxSize: maxSize,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI:   url,
		Method:       http.MethodGet,
		Response:     &data,
		Timeout:      f.timeout,
		MaxBodyBytes: f.maxSize,
	}

	err := f.cli.DoHTTPRequest(ctx, reqParam)
	var statusErr *nhttp.StatusError
	if errors.As(err, &statusErr) {
		return nil, &DownloadStatusError{StatusCode: statusErr.StatusCode}
	}
	if err != nil {
		return nil, err
	}
	if reqParam.StatusCode != http.StatusOK {
		return nil, &DownloadStatusError{StatusCode: reqParam.StatusCode}
	}
	return data, nil
}
