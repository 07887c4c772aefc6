package writer

import (
	"GeoCMS/backend/go/pkg/logger"
	"context"
	"errors"
)

// FallbackWriter 先调用 primary，失败时退回 fallback。
// ctx 已经结束时不再退回，超时按失败处理。
type FallbackWriter struct {
	primary  Generator
	fallback Generator
	log      *logger.Logger
}

// NewFallbackWriter 创建 FallbackWriter。
func NewFallbackWriter(primary, fallback Generator) *FallbackWriter {
	return &FallbackWriter{
		primary:  primary,
		fallback: fallback,
		log:      logger.New("writer", "", ""),
	}
}

// Generate 实现 Generator。
func (w *FallbackWriter) Generate(ctx context.Context, req *Request) (*Content, error) {
	content, err := w.primary.Generate(ctx, req)
	if err == nil {
		return content, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, err
	}
	w.log.WithErr(err).WithField("page_type", req.PageType).Warn("Primary writer failed, using fallback")
	return w.fallback.Generate(ctx, req)
}
