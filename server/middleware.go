package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"

	"github.com/chaos-io/rembg-relay/errs"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestID 复用上游的 X-Request-ID，没有则生成 ksuid
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = ksuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// AccessLog 把带 request_id 的 logger 放进请求 context，并在结束时记录一行访问日志
func AccessLog(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		logger := base.With().Str(RequestIDKey, GetRequestID(c)).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		var e *zerolog.Event
		switch {
		case status >= 500:
			e = logger.Error()
			if last := c.Errors.Last(); last != nil {
				e = e.Err(last.Err)
			}
		case status >= 400:
			e = logger.Warn()
		default:
			e = logger.Info()
		}

		e.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("API")
	}
}

// Recovery handler panic 时返回 500
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		zerolog.Ctx(c.Request.Context()).Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Msg("handler panicked")
		abortWithError(c, errs.NewInternalServerError("Internal Server Error"))
	})
}

// RateLimit 全局令牌桶限流，超出直接返回 429
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			abortWithError(c, errs.NewTooManyRequestsError("Rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// abortWithError 以 {"error": message} 结束请求
func abortWithError(c *gin.Context, err error) {
	httpErr := errs.From(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(httpErr.Status, httpErr)
}
