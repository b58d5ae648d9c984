// Package repository 提供了数据访问层的接口和实现。
package repository

import (
	"time"

	"gorm.io/gorm"

	"ask-docs-go/internal/model"
)

// DocumentRepository 定义了文档元数据记录的持久化操作。
// 记录在上传时创建，之后只由摄取 worker 推进状态。
type DocumentRepository interface {
	Create(doc *model.Document) error
	UpdateStatus(docID, status string) error
	MarkProcessed(docID string, chunkCount int) error
	MarkFailed(docID, errMsg string) error
	FindByID(docID string) (*model.Document, error)
	FindByUserID(userID string) ([]model.Document, error)
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条新的文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// UpdateStatus 更新指定文档的处理状态。
func (r *documentRepository) UpdateStatus(docID, status string) error {
	return r.db.Model(&model.Document{}).
		Where("doc_id = ?", docID).
		Update("status", status).Error
}

// MarkProcessed 将文档置为终态 processed 并写入分块数。
func (r *documentRepository) MarkProcessed(docID string, chunkCount int) error {
	now := time.Now()
	return r.db.Model(&model.Document{}).
		Where("doc_id = ?", docID).
		Updates(map[string]interface{}{
			"status":       model.StatusProcessed,
			"chunk_count":  chunkCount,
			"processed_at": &now,
		}).Error
}

// MarkFailed 将文档置为终态 failed 并记录错误信息。
func (r *documentRepository) MarkFailed(docID, errMsg string) error {
	return r.db.Model(&model.Document{}).
		Where("doc_id = ?", docID).
		Updates(map[string]interface{}{
			"status":        model.StatusFailed,
			"error_message": errMsg,
		}).Error
}

// FindByID 根据文档 ID 检索文档记录。
func (r *documentRepository) FindByID(docID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("doc_id = ?", docID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByUserID 查找指定用户上传的所有文档。
func (r *documentRepository) FindByUserID(userID string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("user_id = ?", userID).Order("created_at desc").Find(&docs).Error
	return docs, err
}
