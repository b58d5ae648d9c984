// Package event 定义了事件总线上流转的事件信封。
package event

import (
	"fmt"
	"time"
)

// 事件类型常量。
const (
	TypeDocumentUploaded  = "document_uploaded"
	TypeDocumentProcessed = "document_processed"
)

// Event 是不可变的事件信封，两种事件共用同一结构：
// document_uploaded 携带 file_path，document_processed 携带 chunks_count。
type Event struct {
	EventType   string    `json:"event_type"`
	DocID       string    `json:"doc_id"`
	Filename    string    `json:"filename"`
	UserID      string    `json:"user_id"`
	FilePath    string    `json:"file_path,omitempty"`
	ChunksCount int       `json:"chunks_count,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewDocumentUploaded 构造一个 document_uploaded 事件。
func NewDocumentUploaded(docID, filename, userID, filePath string) Event {
	return Event{
		EventType: TypeDocumentUploaded,
		DocID:     docID,
		Filename:  filename,
		UserID:    userID,
		FilePath:  filePath,
		Timestamp: time.Now().UTC(),
	}
}

// NewDocumentProcessed 构造一个 document_processed 事件。
func NewDocumentProcessed(docID, filename, userID string, chunksCount int) Event {
	return Event{
		EventType:   TypeDocumentProcessed,
		DocID:       docID,
		Filename:    filename,
		UserID:      userID,
		ChunksCount: chunksCount,
		Timestamp:   time.Now().UTC(),
	}
}

// Validate 校验事件信封的必填字段，缺失任一字段即视为畸形事件。
func (e Event) Validate() error {
	if e.DocID == "" {
		return fmt.Errorf("事件缺少 doc_id 字段")
	}
	if e.UserID == "" {
		return fmt.Errorf("事件缺少 user_id 字段")
	}
	switch e.EventType {
	case TypeDocumentUploaded:
		if e.FilePath == "" {
			return fmt.Errorf("document_uploaded 事件缺少 file_path 字段")
		}
	case TypeDocumentProcessed:
		// chunks_count 为 0 是合法值（文档所有分块均向量化失败时）
	default:
		return fmt.Errorf("未知的事件类型: %q", e.EventType)
	}
	return nil
}
