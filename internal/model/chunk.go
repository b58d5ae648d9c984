package model

// ChunkMeta 是向量索引中与某个向量位置对齐的元数据条目。
// 创建后不再修改；条目只追加，不删除、不重排。
type ChunkMeta struct {
	UserID   string `json:"user_id"`
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Chunk    string `json:"chunk"`
}

// SearchResult 是一次向量检索命中的条目及其 L2 距离。
type SearchResult struct {
	Meta     ChunkMeta `json:"meta"`
	Distance float64   `json:"distance"`
}
