package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	nhttp "github.com/chaos-io/rembg-relay/util/http"
)

const (
	uploadPath  = "api/upload/image"
	promptPath  = "api/prompt"
	historyPath = "api/history/"
	viewPath    = "api/view"
	statsPath   = "api/system_stats"

	// workflow.json 中 LoadImage 节点的占位文件名
	workflowPlaceholder = "MyImage.png"
)

//go:embed workflow.json
var workflowData string

// BiRefNetRemBG 通过 ComfyUI 上运行的 BiRefNet 工作流去除背景
type BiRefNetRemBG struct {
	baseURL      string
	clientID     string
	pollInterval time.Duration
	cli          nhttp.IClient
}

func NewBiRefNetRemBG(baseURL string, pollInterval time.Duration, cli nhttp.IClient) *BiRefNetRemBG {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if cli == nil {
		cli = nhttp.NewHTTPClient()
	}
	return &BiRefNetRemBG{
		baseURL:      strings.TrimSuffix(baseURL, "/") + "/",
		clientID:     ksuid.New().String(),
		pollInterval: pollInterval,
		cli:          cli,
	}
}

func (b *BiRefNetRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	uploaded, err := b.uploadImage(ctx, data)
	if err != nil {
		return nil, err
	}

	promptID, err := b.prompt(ctx, uploaded.path())
	if err != nil {
		return nil, err
	}

	output, err := b.waitOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	return b.view(ctx, output)
}

func (b *BiRefNetRemBG) Ping(ctx context.Context) error {
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + statsPath,
		Method:     http.MethodGet,
		Timeout:    5 * time.Second,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return fmt.Errorf("comfyui system stats: %w", err)
	}
	return nil
}

type imageRef struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// path LoadImage 节点接受 "subfolder/name" 形式
func (r imageRef) path() string {
	if r.Subfolder == "" {
		return r.Name
	}
	return r.Subfolder + "/" + r.Name
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, data []byte) (*imageRef, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := ksuid.New().String() + mimetype.Detect(data).Extension()
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	resp := &imageRef{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + uploadPath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	if resp.Name == "" {
		return nil, errors.New("upload image: empty file name in response")
	}

	zerolog.Ctx(ctx).Debug().Str("name", resp.Name).Str("subfolder", resp.Subfolder).Msg("comfyui image uploaded")
	return resp, nil
}

type promptResp struct {
	PromptID   string                 `json:"prompt_id"`
	Number     int                    `json:"number"`
	NodeErrors map[string]interface{} `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, imageName string) (string, error) {
	nameJSON, err := json.Marshal(imageName)
	if err != nil {
		return "", fmt.Errorf("marshal image name: %w", err)
	}
	workflow := strings.Replace(workflowData, `"`+workflowPlaceholder+`"`, string(nameJSON), 1)

	wk := map[string]interface{}{}
	if err := json.Unmarshal([]byte(workflow), &wk); err != nil {
		return "", fmt.Errorf("unmarshal workflow data: %w", err)
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + promptPath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       map[string]interface{}{"prompt": wk, "client_id": b.clientID},
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("queue prompt: node errors %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("queue prompt: empty prompt id")
	}

	zerolog.Ctx(ctx).Debug().Str("prompt_id", resp.PromptID).Int("number", resp.Number).Msg("comfyui prompt queued")
	return resp.PromptID, nil
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []imageRef `json:"images"`
	} `json:"outputs"`
}

// waitOutput 轮询 history 直到工作流产出图片
func (b *BiRefNetRemBG) waitOutput(ctx context.Context, promptID string) (*imageRef, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		history := map[string]historyEntry{}
		reqParam := &nhttp.RequestParam{
			RequestURI: b.baseURL + historyPath + url.PathEscape(promptID),
			Method:     http.MethodGet,
			Response:   &history,
		}
		if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
			return nil, fmt.Errorf("get history: %w", err)
		}

		if entry, ok := history[promptID]; ok {
			if entry.Status.StatusStr == "error" {
				return nil, fmt.Errorf("prompt %s failed", promptID)
			}
			for _, out := range entry.Outputs {
				for _, img := range out.Images {
					if img.Type == "output" {
						img := img
						return &img, nil
					}
				}
			}
			if entry.Status.Completed {
				return nil, fmt.Errorf("prompt %s completed without output image", promptID)
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait prompt %s: %w", promptID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *BiRefNetRemBG) view(ctx context.Context, ref *imageRef) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + viewPath + "?" + q.Encode(),
		Method:     http.MethodGet,
		Response:   &data,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("download output image: %w", err)
	}
	return data, nil
}
