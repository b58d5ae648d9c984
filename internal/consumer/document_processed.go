package consumer

import (
	"context"

	"ask-docs-go/internal/event"
	"ask-docs-go/internal/repository"
	"ask-docs-go/pkg/log"
)

// DocumentProcessedHandler 响应 document_processed 事件，清空该用户的
// 全部问答缓存：用户的任一文档完成索引后，下一次提问保证是缓存未命中，
// 代价是与新文档无关的答案也一并失效。
type DocumentProcessedHandler struct {
	cacheRepo repository.AnswerCacheRepository
}

// NewDocumentProcessedHandler 创建一个新的 DocumentProcessedHandler。
func NewDocumentProcessedHandler(cacheRepo repository.AnswerCacheRepository) *DocumentProcessedHandler {
	return &DocumentProcessedHandler{cacheRepo: cacheRepo}
}

// Handle 实现 kafka.Handler。
func (h *DocumentProcessedHandler) Handle(ctx context.Context, evt event.Event) error {
	log.Infof("[CacheInvalidator] 文档 %s (doc_id=%s) 已处理完成, user_id: %s, 分块数: %d",
		evt.Filename, evt.DocID, evt.UserID, evt.ChunksCount)

	deleted, err := h.cacheRepo.DeleteByUser(ctx, evt.UserID)
	if err != nil {
		return err
	}
	log.Infof("[CacheInvalidator] 已清除用户 %s 的 %d 条缓存答案", evt.UserID, deleted)
	return nil
}
