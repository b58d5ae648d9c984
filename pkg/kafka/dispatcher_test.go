package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ask-docs-go/internal/event"
)

func TestDecodeEvent(t *testing.T) {
	t.Run("解析合法的 document_uploaded 事件", func(t *testing.T) {
		raw := []byte(`{"event_type":"document_uploaded","doc_id":"doc-1","filename":"a.pdf","user_id":"u1","file_path":"uploads/doc-1_a.pdf","timestamp":"2024-06-01T12:00:00Z"}`)

		evt, err := decodeEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, event.TypeDocumentUploaded, evt.EventType)
		assert.Equal(t, "doc-1", evt.DocID)
		assert.Equal(t, "uploads/doc-1_a.pdf", evt.FilePath)
	})

	t.Run("非 JSON 负载报错", func(t *testing.T) {
		_, err := decodeEvent([]byte("not-json"))
		assert.Error(t, err)
	})

	t.Run("JSON 合法但信封校验失败报错", func(t *testing.T) {
		_, err := decodeEvent([]byte(`{"event_type":"document_uploaded","doc_id":"doc-1"}`))
		assert.Error(t, err)
	})

	t.Run("未知事件类型报错", func(t *testing.T) {
		_, err := decodeEvent([]byte(`{"event_type":"mystery","doc_id":"d","user_id":"u"}`))
		assert.Error(t, err)
	})
}
