package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ask-docs-go/internal/model"
	"ask-docs-go/internal/repository"
	"ask-docs-go/pkg/limiter"
	"ask-docs-go/pkg/llm"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 2, 3}, nil
}

type fakeSearcher struct {
	results []model.SearchResult
	err     error
}

func (f *fakeSearcher) Search(_ []float32, _ string, _ int) ([]model.SearchResult, error) {
	return f.results, f.err
}

type fakeLLM struct {
	generateCalls int
	answer        string
	chunks        []string
	err           error
}

func (f *fakeLLM) Generate(_ context.Context, _ string) (string, error) {
	f.generateCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamChat(_ context.Context, _ string, writer llm.MessageWriter) error {
	f.generateCalls++
	if f.err != nil {
		return f.err
	}
	for _, c := range f.chunks {
		if err := writer.WriteMessage(1, []byte(c)); err != nil {
			return err
		}
	}
	return nil
}

type recordingWriter struct {
	messages []string
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.messages = append(w.messages, string(data))
	return nil
}

type queryFixture struct {
	svc       QueryService
	cacheRepo repository.AnswerCacheRepository
	embedder  *fakeEmbedder
	searcher  *fakeSearcher
	llmClient *fakeLLM
}

func newQueryFixture(t *testing.T, genLimit int) *queryFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &queryFixture{
		cacheRepo: repository.NewAnswerCacheRepository(rdb),
		embedder:  &fakeEmbedder{},
		searcher: &fakeSearcher{results: []model.SearchResult{
			{Meta: model.ChunkMeta{UserID: "u1", DocID: "d1", Chunk: "raft elects a leader"}, Distance: 0.1},
			{Meta: model.ChunkMeta{UserID: "u1", DocID: "d1", Chunk: "logs replicate to followers"}, Distance: 0.2},
		}},
		llmClient: &fakeLLM{answer: "raft is a consensus algorithm", chunks: []string{"raft is ", "a consensus algorithm"}},
	}
	genLimiter := limiter.NewFixedWindow(rdb, "generation", genLimit, time.Minute)
	f.svc = NewQueryService(f.cacheRepo, genLimiter, f.embedder, f.searcher, f.llmClient, time.Hour, 5)
	return f
}

func TestQueryServiceAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("未命中时生成答案并写入缓存", func(t *testing.T) {
		f := newQueryFixture(t, 5)

		result, err := f.svc.Answer(ctx, "u1", "what is raft?")
		require.NoError(t, err)
		assert.Equal(t, "raft is a consensus algorithm", result.Answer)
		assert.False(t, result.Cached)
		assert.False(t, result.Degraded)

		cached, hit, err := f.cacheRepo.Get(ctx, "u1", "what is raft?")
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, "raft is a consensus algorithm", cached)
	})

	t.Run("相同问题第二次命中缓存且不再生成", func(t *testing.T) {
		f := newQueryFixture(t, 5)

		_, err := f.svc.Answer(ctx, "u1", "what is raft?")
		require.NoError(t, err)

		result, err := f.svc.Answer(ctx, "u1", "what is raft?")
		require.NoError(t, err)
		assert.True(t, result.Cached)
		assert.Equal(t, "raft is a consensus algorithm", result.Answer)

		// 两次请求只产生一次向量化和一次生成调用
		assert.Equal(t, 1, f.embedder.calls)
		assert.Equal(t, 1, f.llmClient.generateCalls)
	})

	t.Run("缓存命中短路生成限流器", func(t *testing.T) {
		f := newQueryFixture(t, 1)

		_, err := f.svc.Answer(ctx, "u1", "q")
		require.NoError(t, err)

		// 生成额度已耗尽，但命中请求不经过限流器
		for i := 0; i < 10; i++ {
			result, err := f.svc.Answer(ctx, "u1", "q")
			require.NoError(t, err)
			assert.True(t, result.Cached)
		}
	})

	t.Run("超出生成限流阈值返回 ErrRateLimited", func(t *testing.T) {
		f := newQueryFixture(t, 1)

		_, err := f.svc.Answer(ctx, "u1", "q1")
		require.NoError(t, err)

		_, err = f.svc.Answer(ctx, "u1", "q2")
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, 1, f.llmClient.generateCalls)
	})

	t.Run("没有检索命中时返回 ErrNoContext 且不生成", func(t *testing.T) {
		f := newQueryFixture(t, 5)
		f.searcher.results = nil

		_, err := f.svc.Answer(ctx, "u1", "q")
		assert.ErrorIs(t, err, ErrNoContext)
		assert.Zero(t, f.llmClient.generateCalls)
	})

	t.Run("生成失败返回降级答案且不写缓存", func(t *testing.T) {
		f := newQueryFixture(t, 5)
		f.llmClient.err = errors.New("llm backend timeout")

		result, err := f.svc.Answer(ctx, "u1", "q")
		require.NoError(t, err)
		assert.True(t, result.Degraded)
		assert.Equal(t, degradedAnswer, result.Answer)

		_, hit, err := f.cacheRepo.Get(ctx, "u1", "q")
		require.NoError(t, err)
		assert.False(t, hit, "降级答案不应写入缓存")
	})

	t.Run("问题向量化失败向上传播", func(t *testing.T) {
		f := newQueryFixture(t, 5)
		f.embedder.err = errors.New("embedding backend down")

		_, err := f.svc.Answer(ctx, "u1", "q")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoContext)
		assert.Zero(t, f.llmClient.generateCalls)
	})
}

func TestQueryServiceStreamAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("流式分块转发并在结束后整体写入缓存", func(t *testing.T) {
		f := newQueryFixture(t, 5)
		w := &recordingWriter{}

		err := f.svc.StreamAnswer(ctx, "u1", "what is raft?", w)
		require.NoError(t, err)
		assert.Equal(t, []string{"raft is ", "a consensus algorithm"}, w.messages)

		cached, hit, err := f.cacheRepo.Get(ctx, "u1", "what is raft?")
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, "raft is a consensus algorithm", cached)
	})

	t.Run("缓存命中时整段答案作为单个分块写出", func(t *testing.T) {
		f := newQueryFixture(t, 5)
		require.NoError(t, f.cacheRepo.Set(ctx, "u1", "q", "cached answer", time.Hour))
		w := &recordingWriter{}

		err := f.svc.StreamAnswer(ctx, "u1", "q", w)
		require.NoError(t, err)
		assert.Equal(t, []string{"cached answer"}, w.messages)
		assert.Zero(t, f.llmClient.generateCalls)
	})

	t.Run("流式生成失败写出降级答案", func(t *testing.T) {
		f := newQueryFixture(t, 5)
		f.llmClient.err = errors.New("stream interrupted")
		w := &recordingWriter{}

		err := f.svc.StreamAnswer(ctx, "u1", "q", w)
		require.NoError(t, err)
		assert.Equal(t, []string{degradedAnswer}, w.messages)

		_, hit, err := f.cacheRepo.Get(ctx, "u1", "q")
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("没有检索命中时返回 ErrNoContext", func(t *testing.T) {
		f := newQueryFixture(t, 5)
		f.searcher.results = nil
		w := &recordingWriter{}

		err := f.svc.StreamAnswer(ctx, "u1", "q", w)
		assert.ErrorIs(t, err, ErrNoContext)
		assert.Empty(t, w.messages)
	})
}
