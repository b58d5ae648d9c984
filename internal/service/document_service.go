package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ask-docs-go/internal/event"
	"ask-docs-go/internal/model"
	"ask-docs-go/internal/repository"
	"ask-docs-go/pkg/kafka"
	"ask-docs-go/pkg/log"
)

// ErrDocumentNotFound 表示文档不存在或不属于请求用户。
var ErrDocumentNotFound = errors.New("document not found")

// ObjectPutter 写入上传的原始文件。
type ObjectPutter interface {
	Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

// DocumentService 定义了文档上传与查询的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, userID, filename string, reader io.Reader, size int64, contentType string) (*model.Document, error)
	ListByUser(userID string) ([]model.Document, error)
	GetStatus(docID, userID string) (*model.Document, error)
}

type documentService struct {
	docRepo       repository.DocumentRepository
	objects       ObjectPutter
	producer      kafka.Publisher
	uploadedTopic string
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docRepo repository.DocumentRepository, objects ObjectPutter, producer kafka.Publisher, uploadedTopic string) DocumentService {
	return &documentService{
		docRepo:       docRepo,
		objects:       objects,
		producer:      producer,
		uploadedTopic: uploadedTopic,
	}
}

// Upload 接收一个上传文件：写入对象存储、创建 queued 状态的文档记录，
// 并发布 document_uploaded 事件触发异步摄取。
func (s *documentService) Upload(ctx context.Context, userID, filename string, reader io.Reader, size int64, contentType string) (*model.Document, error) {
	docID := uuid.NewString()
	storagePath := fmt.Sprintf("uploads/%s_%s", docID, filename)

	if err := s.objects.Put(ctx, storagePath, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}

	doc := &model.Document{
		DocID:       docID,
		UserID:      userID,
		Filename:    filename,
		StoragePath: storagePath,
		Status:      model.StatusQueued,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	evt := event.NewDocumentUploaded(docID, filename, userID, storagePath)
	if err := s.producer.Publish(ctx, s.uploadedTopic, evt); err != nil {
		return nil, fmt.Errorf("发布 document_uploaded 事件失败: %w", err)
	}

	log.Infof("[DocumentService] 文件上传成功, doc_id: %s, filename: %s, user_id: %s", docID, filename, userID)
	return doc, nil
}

// ListByUser 列出用户自己上传的全部文档。
func (s *documentService) ListByUser(userID string) ([]model.Document, error) {
	return s.docRepo.FindByUserID(userID)
}

// GetStatus 查询单个文档的处理状态，只允许所有者访问。
func (s *documentService) GetStatus(docID, userID string) (*model.Document, error) {
	doc, err := s.docRepo.FindByID(docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	if doc.UserID != userID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}
