package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	t.Run("合法的 document_uploaded 事件", func(t *testing.T) {
		evt := NewDocumentUploaded("doc-1", "report.pdf", "user-1", "uploads/doc-1_report.pdf")
		assert.NoError(t, evt.Validate())
		assert.Equal(t, TypeDocumentUploaded, evt.EventType)
		assert.False(t, evt.Timestamp.IsZero())
	})

	t.Run("合法的 document_processed 事件", func(t *testing.T) {
		evt := NewDocumentProcessed("doc-1", "report.pdf", "user-1", 12)
		assert.NoError(t, evt.Validate())
		assert.Equal(t, 12, evt.ChunksCount)
	})

	t.Run("chunks_count 为 0 合法", func(t *testing.T) {
		evt := NewDocumentProcessed("doc-1", "report.pdf", "user-1", 0)
		assert.NoError(t, evt.Validate())
	})

	t.Run("缺少 doc_id 非法", func(t *testing.T) {
		evt := NewDocumentUploaded("", "report.pdf", "user-1", "path")
		assert.Error(t, evt.Validate())
	})

	t.Run("缺少 user_id 非法", func(t *testing.T) {
		evt := NewDocumentProcessed("doc-1", "report.pdf", "", 1)
		assert.Error(t, evt.Validate())
	})

	t.Run("document_uploaded 缺少 file_path 非法", func(t *testing.T) {
		evt := NewDocumentUploaded("doc-1", "report.pdf", "user-1", "")
		assert.Error(t, evt.Validate())
	})

	t.Run("未知事件类型非法", func(t *testing.T) {
		evt := Event{EventType: "document_deleted", DocID: "doc-1", UserID: "user-1"}
		assert.Error(t, evt.Validate())
	})
}

func TestEventJSON(t *testing.T) {
	t.Run("document_uploaded 序列化不携带 chunks_count", func(t *testing.T) {
		evt := NewDocumentUploaded("doc-1", "report.pdf", "user-1", "uploads/doc-1_report.pdf")
		raw, err := json.Marshal(evt)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.Contains(t, fields, "file_path")
		assert.NotContains(t, fields, "chunks_count")
		assert.Equal(t, "document_uploaded", fields["event_type"])
	})

	t.Run("反序列化回到等价的信封", func(t *testing.T) {
		raw := []byte(`{"event_type":"document_processed","doc_id":"doc-1","filename":"a.pdf","user_id":"u1","chunks_count":4,"timestamp":"2024-06-01T12:00:00Z"}`)
		var evt Event
		require.NoError(t, json.Unmarshal(raw, &evt))
		assert.NoError(t, evt.Validate())
		assert.Equal(t, 4, evt.ChunksCount)
		assert.Equal(t, "u1", evt.UserID)
	})
}
