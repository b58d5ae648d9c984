package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"ask-docs-go/internal/middleware"
	"ask-docs-go/internal/service"
	"ask-docs-go/pkg/llm"
)

type fakeQueryService struct {
	result *service.QueryResult
	err    error
}

func (f *fakeQueryService) Answer(_ context.Context, _, question string) (*service.QueryResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	r.Question = question
	return &r, nil
}

func (f *fakeQueryService) StreamAnswer(_ context.Context, _, _ string, _ llm.MessageWriter) error {
	return f.err
}

func newQueryRouter(svc service.QueryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserIDKey, "u1") })
	r.POST("/query", NewQueryHandler(svc).Ask)
	return r
}

func postQuery(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestQueryHandlerAsk(t *testing.T) {
	t.Run("正常问答返回 200", func(t *testing.T) {
		r := newQueryRouter(&fakeQueryService{result: &service.QueryResult{Answer: "the answer"}})

		w := postQuery(r, `{"question":"what is raft?"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "the answer")
		assert.Contains(t, w.Body.String(), "what is raft?")
	})

	t.Run("缺少 question 返回 400", func(t *testing.T) {
		r := newQueryRouter(&fakeQueryService{result: &service.QueryResult{}})

		assert.Equal(t, http.StatusBadRequest, postQuery(r, `{}`).Code)
		assert.Equal(t, http.StatusBadRequest, postQuery(r, `{"question":"   "}`).Code)
		assert.Equal(t, http.StatusBadRequest, postQuery(r, `not-json`).Code)
	})

	t.Run("没有检索命中返回 404", func(t *testing.T) {
		r := newQueryRouter(&fakeQueryService{err: service.ErrNoContext})

		w := postQuery(r, `{"question":"q"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "No relevant context found")
	})

	t.Run("超出生成限流返回 429", func(t *testing.T) {
		r := newQueryRouter(&fakeQueryService{err: service.ErrRateLimited})

		assert.Equal(t, http.StatusTooManyRequests, postQuery(r, `{"question":"q"}`).Code)
	})

	t.Run("其他服务错误返回 500", func(t *testing.T) {
		r := newQueryRouter(&fakeQueryService{err: errors.New("boom")})

		assert.Equal(t, http.StatusInternalServerError, postQuery(r, `{"question":"q"}`).Code)
	})
}
