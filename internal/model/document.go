// Package model 定义了与数据库表对应的 Go 结构体和核心数据类型。
package model

import "time"

// 文档处理状态。queued → processing → {processed | failed}，
// processed 与 failed 为终态，不存在其他迁移。
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// Document 定义了 documents 表的 ORM 模型。
// 记录在上传时创建，之后只由摄取 worker 修改。
type Document struct {
	DocID        string     `gorm:"type:varchar(36);primaryKey;column:doc_id" json:"docId"`
	UserID       string     `gorm:"type:varchar(64);not null;index" json:"userId"`
	Filename     string     `gorm:"type:varchar(255);not null" json:"filename"`
	StoragePath  string     `gorm:"type:varchar(255);not null" json:"storagePath"`
	Status       string     `gorm:"type:varchar(16);not null;default:queued" json:"status"`
	ChunkCount   int        `gorm:"not null;default:0" json:"chunkCount"`
	ErrorMessage string     `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	ProcessedAt  *time.Time `gorm:"default:null" json:"processedAt,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}
