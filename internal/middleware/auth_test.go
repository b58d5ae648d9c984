package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ask-docs-go/pkg/token"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *token.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := token.NewJWTManager("test-secret", 1)

	r := gin.New()
	r.Use(AuthMiddleware(m))
	r.GET("/whoami", func(c *gin.Context) {
		userID, ok := UserID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return r, m
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("携带合法 token 时放行并注入用户标识", func(t *testing.T) {
		r, m := newAuthRouter(t)
		tokenString, err := m.GenerateToken("user-1")
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "user-1")
	})

	t.Run("缺少授权头时返回 401", func(t *testing.T) {
		r, _ := newAuthRouter(t)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("非 Bearer 格式时返回 401", func(t *testing.T) {
		r, _ := newAuthRouter(t)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("无效 token 时返回 401", func(t *testing.T) {
		r, _ := newAuthRouter(t)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
