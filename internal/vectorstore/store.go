// Package vectorstore 实现了基于快照文件的向量最近邻索引。
//
// 索引是内存中的向量序列加一个位置对齐的元数据序列，持久化为一对
// 快照文件（index.bin + metadata.json），每次写入整体重写。检索方与
// 摄取方是两个进程，不共享内存，磁盘快照是唯一权威来源，因此每次
// 检索前都会整体重载快照。
//
// Store 内部没有锁：部署假设同一时刻只有一个写入方（摄取消费组的
// 单个成员），多写入方并发 Add 会导致快照互相覆盖。
package vectorstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"ask-docs-go/internal/model"
	"ask-docs-go/pkg/log"
)

const (
	indexFileName = "index.bin"
	metaFileName  = "metadata.json"
)

// Store 是平铺 L2 向量索引加对齐元数据。条目只追加，不删除、不压缩。
type Store struct {
	dir      string
	dim      int
	vectors  [][]float32
	metadata []model.ChunkMeta
}

// New 创建一个向量索引存储，并尝试从 dir 下的快照对恢复既有索引。
func New(dir string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("非法的向量维度: %d", dim)
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("创建索引目录失败: %w", err)
	}

	s := &Store{dir: dir, dim: dim}
	if err := s.load(); err != nil {
		return nil, err
	}
	log.Infof("[vectorstore] 索引初始化完成, dir: %s, 已有向量数: %d", dir, len(s.vectors))
	return s, nil
}

// Len 返回索引中的向量条目数。
func (s *Store) Len() int {
	return len(s.vectors)
}

// Add 将一批 (向量, 元数据) 对追加到索引并整体重写两个快照文件。
// 空输入静默忽略。两个序列必须等长且向量维度与索引一致。
func (s *Store) Add(vectors [][]float32, metadata []model.ChunkMeta) error {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) != len(metadata) {
		return fmt.Errorf("向量数 %d 与元数据数 %d 不一致", len(vectors), len(metadata))
	}
	for i, v := range vectors {
		if len(v) != s.dim {
			return fmt.Errorf("第 %d 个向量维度为 %d, 期望 %d", i, len(v), s.dim)
		}
	}

	s.vectors = append(s.vectors, vectors...)
	s.metadata = append(s.metadata, metadata...)

	if err := s.save(); err != nil {
		return err
	}
	log.Infof("[vectorstore] 追加 %d 个向量, 当前总数: %d", len(vectors), len(s.vectors))
	return nil
}

// Search 在整个索引上计算 L2 距离并按升序取 topK*5 个候选，再按元数据
// 的 user_id 过滤，收集满 topK 个或候选耗尽为止。索引没有按用户分区，
// 这种过采样再过滤是已知的近似：若某用户的条目不在全局最近邻中，召回
// 会下降。
//
// 每次调用先从磁盘整体重载快照，保证观察到摄取进程最新持久化的状态。
func (s *Store) Search(queryVector []float32, userID string, topK int) ([]model.SearchResult, error) {
	if err := s.load(); err != nil {
		return nil, err
	}

	if len(s.vectors) == 0 {
		log.Warnf("[vectorstore] 索引为空, 无可检索向量")
		return nil, nil
	}
	if len(queryVector) != s.dim {
		return nil, fmt.Errorf("查询向量维度为 %d, 期望 %d", len(queryVector), s.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	type candidate struct {
		idx  int
		dist float64
	}
	candidates := make([]candidate, len(s.vectors))
	for i, v := range s.vectors {
		candidates[i] = candidate{idx: i, dist: l2Distance(queryVector, v)}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	// 候选池限定为全局最近的 topK*5 个
	pool := topK * 5
	if pool > len(candidates) {
		pool = len(candidates)
	}

	var results []model.SearchResult
	for _, c := range candidates[:pool] {
		meta := s.metadata[c.idx]
		if meta.UserID != userID {
			continue
		}
		results = append(results, model.SearchResult{Meta: meta, Distance: c.dist})
		if len(results) >= topK {
			break
		}
	}
	return results, nil
}

// l2Distance 计算两个向量之间的欧氏距离。
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// save 将向量序列与元数据序列整体重写到快照对。
// 写入成本随索引总大小增长，这不是增量写。
func (s *Store) save() error {
	if err := s.writeIndexFile(); err != nil {
		return err
	}
	if err := s.writeMetaFile(); err != nil {
		return err
	}
	log.Infof("[vectorstore] 快照已写入, 向量数: %d", len(s.vectors))
	return nil
}

// load 从快照对恢复索引。任一文件缺失时视为索引不存在（置空）。
func (s *Store) load() error {
	indexPath := filepath.Join(s.dir, indexFileName)
	metaPath := filepath.Join(s.dir, metaFileName)

	if !fileExists(indexPath) || !fileExists(metaPath) {
		s.vectors = nil
		s.metadata = nil
		return nil
	}

	vectors, err := readIndexFile(indexPath, s.dim)
	if err != nil {
		return fmt.Errorf("读取索引快照失败: %w", err)
	}
	var metadata []model.ChunkMeta
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("读取元数据快照失败: %w", err)
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return fmt.Errorf("解析元数据快照失败: %w", err)
	}
	if len(vectors) != len(metadata) {
		return fmt.Errorf("快照损坏: 向量数 %d 与元数据数 %d 不一致", len(vectors), len(metadata))
	}

	s.vectors = vectors
	s.metadata = metadata
	return nil
}

// writeIndexFile 以小端二进制写出索引：uint32 维度、uint32 条目数、
// 随后是逐条目的 float32 向量。
func (s *Store) writeIndexFile() error {
	buf := make([]byte, 8+len(s.vectors)*s.dim*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.dim))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(s.vectors)))
	off := 8
	for _, v := range s.vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(f))
			off += 4
		}
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFileName), buf, 0o644); err != nil {
		return fmt.Errorf("写索引快照失败: %w", err)
	}
	return nil
}

func (s *Store) writeMetaFile() error {
	raw, err := json.Marshal(s.metadata)
	if err != nil {
		return fmt.Errorf("序列化元数据失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, metaFileName), raw, 0o644); err != nil {
		return fmt.Errorf("写元数据快照失败: %w", err)
	}
	return nil
}

func readIndexFile(path string, wantDim int) ([][]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("索引文件过短: %d 字节", len(raw))
	}
	dim := int(binary.LittleEndian.Uint32(raw[0:4]))
	count := int(binary.LittleEndian.Uint32(raw[4:8]))
	if dim != wantDim {
		return nil, fmt.Errorf("索引文件维度为 %d, 期望 %d", dim, wantDim)
	}
	if len(raw) != 8+count*dim*4 {
		return nil, fmt.Errorf("索引文件长度 %d 与头部声明不符", len(raw))
	}

	vectors := make([][]float32, count)
	off := 8
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
			off += 4
		}
		vectors[i] = v
	}
	return vectors, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
