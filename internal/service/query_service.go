// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ask-docs-go/internal/model"
	"ask-docs-go/internal/repository"
	"ask-docs-go/pkg/embedding"
	"ask-docs-go/pkg/limiter"
	"ask-docs-go/pkg/llm"
	"ask-docs-go/pkg/log"
)

// ErrNoContext 表示该用户没有任何可检索的上下文。
var ErrNoContext = errors.New("no relevant context found")

// ErrRateLimited 表示超出了生成调用的限流阈值。
var ErrRateLimited = errors.New("generation rate limit exceeded")

// degradedAnswer 是生成服务不可用时返回的降级答案，不会写入缓存。
const degradedAnswer = "[Error] 回答生成失败，请稍后重试。"

// QueryResult 是一次问答的结果。
type QueryResult struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Cached   bool   `json:"cached"`
	Degraded bool   `json:"degraded,omitempty"`
}

// VectorSearcher 是向量检索方的最小接口。
type VectorSearcher interface {
	Search(queryVector []float32, userID string, topK int) ([]model.SearchResult, error)
}

// QueryService 定义了问答操作的接口。
type QueryService interface {
	Answer(ctx context.Context, userID, question string) (*QueryResult, error)
	StreamAnswer(ctx context.Context, userID, question string, writer llm.MessageWriter) error
}

type queryService struct {
	cacheRepo       repository.AnswerCacheRepository
	genLimiter      *limiter.FixedWindow
	embeddingClient embedding.Client
	index           VectorSearcher
	llmClient       llm.Client
	cacheTTL        time.Duration
	topK            int
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(
	cacheRepo repository.AnswerCacheRepository,
	genLimiter *limiter.FixedWindow,
	embeddingClient embedding.Client,
	index VectorSearcher,
	llmClient llm.Client,
	cacheTTL time.Duration,
	topK int,
) QueryService {
	return &queryService{
		cacheRepo:       cacheRepo,
		genLimiter:      genLimiter,
		embeddingClient: embeddingClient,
		index:           index,
		llmClient:       llmClient,
		cacheTTL:        cacheTTL,
		topK:            topK,
	}
}

// Answer 回答用户针对自己文档提出的问题。
// 缓存命中会短路后续所有步骤（包括生成限流器），直接返回已存答案；
// 未命中时依次经过生成限流、问题向量化、按用户过滤的向量检索、
// 上下文拼装与生成调用，成功的答案以配置的 TTL 写入缓存。
func (s *queryService) Answer(ctx context.Context, userID, question string) (*QueryResult, error) {
	// 1. 缓存查询，键为 (用户, 原样问题串)
	if cached, hit, err := s.cacheRepo.Get(ctx, userID, question); err != nil {
		log.Errorf("[QueryService] 读取缓存失败, user_id: %s, err: %v", userID, err)
	} else if hit {
		log.Infof("[QueryService] 缓存命中, user_id: %s", userID)
		return &QueryResult{Question: question, Answer: cached, Cached: true}, nil
	}

	// 2. 生成限流：在昂贵的向量化与生成调用之前检查
	if err := s.checkGenerationLimit(ctx, userID); err != nil {
		return nil, err
	}

	// 3. 检索上下文
	contextText, err := s.retrieveContext(ctx, userID, question)
	if err != nil {
		return nil, err
	}

	// 4. 生成答案；上游失败以降级答案呈现给调用方，不作为系统错误传播
	answer, err := s.llmClient.Generate(ctx, buildPrompt(contextText, question))
	if err != nil {
		log.Errorf("[QueryService] 生成调用失败, user_id: %s, err: %v", userID, err)
		return &QueryResult{Question: question, Answer: degradedAnswer, Degraded: true}, nil
	}

	// 5. 写入缓存；失败只记录日志
	if err := s.cacheRepo.Set(ctx, userID, question, answer, s.cacheTTL); err != nil {
		log.Errorf("[QueryService] 写入缓存失败, user_id: %s, err: %v", userID, err)
	}

	return &QueryResult{Question: question, Answer: answer, Cached: false}, nil
}

// StreamAnswer 与 Answer 经过相同的闸门，但以流式分块写出答案，
// 结束后将完整答案写入缓存。
func (s *queryService) StreamAnswer(ctx context.Context, userID, question string, writer llm.MessageWriter) error {
	if cached, hit, err := s.cacheRepo.Get(ctx, userID, question); err != nil {
		log.Errorf("[QueryService] 读取缓存失败, user_id: %s, err: %v", userID, err)
	} else if hit {
		// 缓存命中：整段答案作为单个分块写出
		return writer.WriteMessage(websocket.TextMessage, []byte(cached))
	}

	if err := s.checkGenerationLimit(ctx, userID); err != nil {
		return err
	}

	contextText, err := s.retrieveContext(ctx, userID, question)
	if err != nil {
		return err
	}

	// 拦截 writer 以捕获完整答案，流结束后整体写入缓存
	answerBuilder := &strings.Builder{}
	interceptor := &captureWriter{next: writer, builder: answerBuilder}

	if err := s.llmClient.StreamChat(ctx, buildPrompt(contextText, question), interceptor); err != nil {
		log.Errorf("[QueryService] 流式生成失败, user_id: %s, err: %v", userID, err)
		return writer.WriteMessage(websocket.TextMessage, []byte(degradedAnswer))
	}

	fullAnswer := answerBuilder.String()
	if fullAnswer != "" {
		if err := s.cacheRepo.Set(ctx, userID, question, fullAnswer, s.cacheTTL); err != nil {
			log.Errorf("[QueryService] 写入缓存失败, user_id: %s, err: %v", userID, err)
		}
	}
	return nil
}

// checkGenerationLimit 检查生成限流器。计数器不可达时放行并记录日志。
func (s *queryService) checkGenerationLimit(ctx context.Context, userID string) error {
	allowed, err := s.genLimiter.Allow(ctx, userID)
	if err != nil {
		log.Errorf("[QueryService] 生成限流检查失败, user_id: %s, err: %v", userID, err)
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// retrieveContext 将问题向量化并做按用户过滤的最近邻检索，
// 把命中的分块文本拼接为上下文。没有任何命中时返回 ErrNoContext，
// 此时不会产生任何生成调用。
func (s *queryService) retrieveContext(ctx context.Context, userID, question string) (string, error) {
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, question)
	if err != nil {
		return "", fmt.Errorf("问题向量化失败: %w", err)
	}

	results, err := s.index.Search(queryVector, userID, s.topK)
	if err != nil {
		return "", fmt.Errorf("向量检索失败: %w", err)
	}
	if len(results) == 0 {
		return "", ErrNoContext
	}

	chunks := make([]string, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, r.Meta.Chunk)
	}
	return strings.Join(chunks, "\n"), nil
}

// buildPrompt 根据检索到的上下文和用户问题构建生成提示。
func buildPrompt(contextText, question string) string {
	return fmt.Sprintf(`Answer the question based only on the context below.
If the answer is not contained within the context, say 'I don't know.'

Context:
%s

Question:
%s
`, contextText, question)
}

// captureWriter 在转发流式分块的同时把内容累积到 builder 中。
type captureWriter struct {
	next    llm.MessageWriter
	builder *strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *captureWriter) WriteMessage(messageType int, data []byte) error {
	w.builder.Write(data)
	return w.next.WriteMessage(messageType, data)
}
