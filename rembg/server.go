package rembg

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	nhttp "github.com/chaos-io/rembg-relay/util/http"
)

const removePath = "api/remove"

// ServerRemBG 调用 `rembg s` 启动的 HTTP 服务
type ServerRemBG struct {
	baseURL string
	model   string
	cli     nhttp.IClient
}

func NewServerRemBG(baseURL, model string, cli nhttp.IClient) *ServerRemBG {
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	return &ServerRemBG{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		model:   model,
		cli:     cli,
	}
}

/*
	curl -X POST "$BASE_URL/api/remove" \
	  -F "file=@my_image.png" \
	  -F "model=u2net" -o out.png
*/
func (s *ServerRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image"+mimetype.Detect(data).Extension())
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if s.model != "" {
		_ = writer.WriteField("model", s.model)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL + removePath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &out,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("rembg remove: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("rembg remove: empty response")
	}
	return out, nil
}

func (s *ServerRemBG) Ping(ctx context.Context) error {
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL,
		Method:     http.MethodGet,
		Timeout:    5 * time.Second,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return fmt.Errorf("rembg ping: %w", err)
	}
	return nil
}
