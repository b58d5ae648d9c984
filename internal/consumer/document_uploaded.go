// Package consumer 定义了各事件主题的处理器，由分发表在启动时登记。
package consumer

import (
	"context"

	"ask-docs-go/internal/event"
	"ask-docs-go/internal/pipeline"
)

// 消费组名称。同组的多个实例分摊主题分区以水平扩展。
const (
	GroupDocumentProcessor = "document-processor"
	GroupCacheInvalidator  = "cache-invalidator"
)

// DocumentUploadedHandler 将 document_uploaded 事件交给摄取管线处理。
type DocumentUploadedHandler struct {
	processor *pipeline.Processor
}

// NewDocumentUploadedHandler 创建一个新的 DocumentUploadedHandler。
func NewDocumentUploadedHandler(processor *pipeline.Processor) *DocumentUploadedHandler {
	return &DocumentUploadedHandler{processor: processor}
}

// Handle 实现 kafka.Handler。
func (h *DocumentUploadedHandler) Handle(ctx context.Context, evt event.Event) error {
	return h.processor.Process(ctx, evt)
}
