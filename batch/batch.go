// Package batch downloads a list of images and strips their backgrounds one by one.
//
// Every URL is handled in isolation: a failed download or a backend error is recorded
// on that URL's Result and the loop moves on. Results keep the input order.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaos-io/rembg-relay/config"
	"github.com/chaos-io/rembg-relay/rembg"
)

// MaxImageURLs 单次请求最多处理的图片数
const MaxImageURLs = config.MaxImageURLs

type Processor struct {
	fetcher       Fetcher
	remover       rembg.Remover
	removeTimeout time.Duration
}

func NewProcessor(fetcher Fetcher, remover rembg.Remover, removeTimeout time.Duration) *Processor {
	return &Processor{
		fetcher:       fetcher,
		remover:       remover,
		removeTimeout: removeTimeout,
	}
}

// Process 顺序处理所有 URL，返回与输入等长、同序的结果
func (p *Processor) Process(ctx context.Context, urls []string) []Result {
	log := zerolog.Ctx(ctx)
	start := time.Now()

	results := make([]Result, 0, len(urls))
	failed := 0
	for i, url := range urls {
		res := p.ProcessOne(ctx, url)
		if res.Failed() {
			failed++
			log.Warn().Err(res.Err).Int("index", i).Str("url", truncateURL(url)).Msg("image processing failed")
		} else {
			log.Debug().Int("index", i).Str("url", truncateURL(url)).Int("bytes", len(res.Image)).Msg("image processed")
		}
		results = append(results, res)
	}

	log.Info().
		Int("total", len(urls)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("batch processed")
	return results
}

// ProcessOne 下载并去除单张图片的背景，任何错误都记录在 Result.Err 中
func (p *Processor) ProcessOne(ctx context.Context, url string) (res Result) {
	res.OriginalURL = url

	defer func() {
		if r := recover(); r != nil {
			res.Image = nil
			res.Err = fmt.Errorf("panic while processing image: %v", r)
		}
	}()

	data, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		res.Err = err
		return res
	}

	removeCtx := ctx
	if p.removeTimeout > 0 {
		var cancel context.CancelFunc
		removeCtx, cancel = context.WithTimeout(ctx, p.removeTimeout)
		defer cancel()
	}

	out, err := p.remover.Remove(removeCtx, data)
	if err != nil {
		res.Err = err
		return res
	}

	res.Image = out
	return res
}

// truncateURL 日志中只保留前 60 个字符
func truncateURL(url string) string {
	if len(url) > 60 {
		return url[:57] + "..."
	}
	return url
}
