// Package server exposes the relay over HTTP with gin.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chaos-io/rembg-relay/batch"
	"github.com/chaos-io/rembg-relay/config"
	"github.com/chaos-io/rembg-relay/forward"
	"github.com/chaos-io/rembg-relay/health"
)

// Processor 批量处理图片，见 batch.Processor
type Processor interface {
	Process(ctx context.Context, urls []string) []batch.Result
}

// HealthReporter 见 health.Monitor
type HealthReporter interface {
	Report() health.Report
}

type Server struct {
	cfg       config.ServerConfig
	logger    zerolog.Logger
	processor Processor
	forwarder forward.Forwarder
	health    HealthReporter
}

func New(cfg config.ServerConfig, logger zerolog.Logger, processor Processor, forwarder forward.Forwarder, reporter HealthReporter) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		processor: processor,
		forwarder: forwarder,
		health:    reporter,
	}
}

// Router 注册中间件和路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AccessLog(s.logger), Recovery())

	r.GET("/", s.Home)
	r.GET("/test-route", s.TestRoute)
	r.GET("/health", s.Health)

	process := r.Group("/process-images")
	if s.cfg.RateLimit.RPS > 0 {
		process.Use(RateLimit(s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst))
	}
	process.POST("", s.ProcessImages)

	return r
}

// HTTPServer 带超时配置的 http.Server
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
}
