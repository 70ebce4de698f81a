package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chaos-io/rembg-relay/batch"
	"github.com/chaos-io/rembg-relay/errs"
	"github.com/chaos-io/rembg-relay/forward"
	"github.com/chaos-io/rembg-relay/health"
)

const (
	msgMissingImageURLs = "Please provide a list of image_urls in JSON."
	msgProcessed        = "Images processed and forwarded to webhook successfully."
)

var msgTooManyImages = fmt.Sprintf("A maximum of %d images is allowed.", batch.MaxImageURLs)

// ProcessRequest POST /process-images 的请求体
type ProcessRequest struct {
	ImageURLs []string `json:"image_urls" binding:"required"`
}

type ProcessResponse struct {
	Message string         `json:"message"`
	Results []batch.Result `json:"results"`
}

func (s *Server) Home(c *gin.Context) {
	c.String(http.StatusOK, "Hello from the root route!")
}

func (s *Server) TestRoute(c *gin.Context) {
	c.String(http.StatusOK, "Test route is working!")
}

func (s *Server) Health(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, health.Report{Status: health.StatusHealthy, Checks: map[string]health.CheckStatus{}})
		return
	}

	report := s.health.Report()
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// ProcessImages 下载、去背景、转发到 webhook，全部完成后才响应
func (s *Server) ProcessImages(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errs.NewBadRequestError(msgMissingImageURLs))
		return
	}
	if len(req.ImageURLs) > batch.MaxImageURLs {
		abortWithError(c, errs.NewBadRequestError(msgTooManyImages))
		return
	}

	// 客户端断开后继续处理，保留 logger 等 context 值
	ctx := context.WithoutCancel(c.Request.Context())
	zerolog.Ctx(ctx).Info().Int("images", len(req.ImageURLs)).Msg("processing batch")

	results := s.processor.Process(ctx, req.ImageURLs)

	if err := s.forwarder.Forward(ctx, results); err != nil {
		abortWithError(c, forwardError(err))
		return
	}

	c.JSON(http.StatusOK, ProcessResponse{
		Message: msgProcessed,
		Results: results,
	})
}

func forwardError(err error) *errs.HTTPError {
	var statusErr *forward.StatusError
	if errors.As(err, &statusErr) {
		return errs.NewInternalServerError(fmt.Sprintf("Failed to forward images to webhook. HTTP Status: %d", statusErr.StatusCode))
	}
	return errs.NewInternalServerError(fmt.Sprintf("Error forwarding to webhook: %v", err))
}
