// Package pipeline 定义了文档摄取的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"ask-docs-go/internal/event"
	"ask-docs-go/internal/model"
	"ask-docs-go/internal/repository"
	"ask-docs-go/pkg/embedding"
	"ask-docs-go/pkg/kafka"
	"ask-docs-go/pkg/log"
)

// ObjectFetcher 按对象路径取回上传的原始文件。
type ObjectFetcher interface {
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
}

// TextExtractor 从文件内容中提取纯文本。
type TextExtractor interface {
	ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error)
}

// VectorIndex 接收一批 (向量, 元数据) 对的追加写入。
type VectorIndex interface {
	Add(vectors [][]float32, metadata []model.ChunkMeta) error
}

// Processor 封装了文档摄取的所有依赖和逻辑。
// 每个文档的状态机为 queued → processing → {processed | failed}，
// 两个终态均不再迁移。
type Processor struct {
	objects         ObjectFetcher
	extractor       TextExtractor
	embeddingClient embedding.Client
	index           VectorIndex
	docRepo         repository.DocumentRepository
	producer        kafka.Publisher
	processedTopic  string
	chunkWords      int
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	objects ObjectFetcher,
	extractor TextExtractor,
	embeddingClient embedding.Client,
	index VectorIndex,
	docRepo repository.DocumentRepository,
	producer kafka.Publisher,
	processedTopic string,
) *Processor {
	return &Processor{
		objects:         objects,
		extractor:       extractor,
		embeddingClient: embeddingClient,
		index:           index,
		docRepo:         docRepo,
		producer:        producer,
		processedTopic:  processedTopic,
		chunkWords:      defaultChunkWords,
	}
}

// Process 处理一个 document_uploaded 事件。
// 单个分块向量化失败只跳过该分块；分块循环之外的任何错误都会使
// 整个文档进入 failed 终态并记录错误信息，且不发布 document_processed。
func (p *Processor) Process(ctx context.Context, evt event.Event) error {
	log.Infof("[Processor] 开始处理文档, doc_id: %s, filename: %s, user_id: %s",
		evt.DocID, evt.Filename, evt.UserID)

	if err := p.docRepo.UpdateStatus(evt.DocID, model.StatusProcessing); err != nil {
		return fmt.Errorf("更新文档状态为 processing 失败: %w", err)
	}

	// 1. 从对象存储取回原始文件
	object, err := p.objects.Get(ctx, evt.FilePath)
	if err != nil {
		return p.failDocument(evt.DocID, fmt.Errorf("取回上传文件失败: %w", err))
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return p.failDocument(evt.DocID, fmt.Errorf("读取上传文件内容失败: %w", err))
	}

	// 2. 提取文本
	textContent, err := p.extractor.ExtractText(ctx, bytes.NewReader(buf.Bytes()), evt.Filename)
	if err != nil {
		return p.failDocument(evt.DocID, fmt.Errorf("提取文本失败: %w", err))
	}

	// 3. 按词切块，至多 200 词一块，无重叠
	chunks := chunkText(textContent, p.chunkWords)
	log.Infof("[Processor] 文本分块完成, doc_id: %s, 分块数: %d", evt.DocID, len(chunks))

	// 4. 逐块向量化；单块失败跳过，不中止文档
	vectors := make([][]float32, 0, len(chunks))
	metadata := make([]model.ChunkMeta, 0, len(chunks))
	for i, chunk := range chunks {
		vector, err := p.embeddingClient.CreateEmbedding(ctx, chunk)
		if err != nil {
			log.Errorf("[Processor] 分块 %d/%d 向量化失败, doc_id: %s, 跳过该分块: %v",
				i+1, len(chunks), evt.DocID, err)
			continue
		}
		vectors = append(vectors, vector)
		metadata = append(metadata, model.ChunkMeta{
			UserID:   evt.UserID,
			DocID:    evt.DocID,
			Filename: evt.Filename,
			Chunk:    chunk,
		})
	}

	// 5. 一次批量追加到向量索引
	if err := p.index.Add(vectors, metadata); err != nil {
		return p.failDocument(evt.DocID, fmt.Errorf("写入向量索引失败: %w", err))
	}

	// 6. 发布 document_processed；发布失败只记录日志，文档仍然到达 processed
	chunksCount := len(vectors)
	processed := event.NewDocumentProcessed(evt.DocID, evt.Filename, evt.UserID, chunksCount)
	if err := p.producer.Publish(ctx, p.processedTopic, processed); err != nil {
		log.Errorf("[Processor] 发布 document_processed 事件失败, doc_id: %s, err: %v", evt.DocID, err)
	}

	// 7. 写入分块数并置为终态 processed
	if err := p.docRepo.MarkProcessed(evt.DocID, chunksCount); err != nil {
		return fmt.Errorf("更新文档状态为 processed 失败: %w", err)
	}

	log.Infof("[Processor] 文档处理完成, doc_id: %s, 入库分块数: %d", evt.DocID, chunksCount)
	return nil
}

// failDocument 将文档置为终态 failed 并记录错误信息，不发布任何事件。
func (p *Processor) failDocument(docID string, cause error) error {
	log.Errorf("[Processor] 文档处理失败, doc_id: %s, err: %v", docID, cause)
	if err := p.docRepo.MarkFailed(docID, cause.Error()); err != nil {
		log.Errorf("[Processor] 更新文档状态为 failed 失败, doc_id: %s, err: %v", docID, err)
	}
	return cause
}
