package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

type fakeAuthenticator map[string]model.Actor

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (model.Actor, error) {
	if a, ok := f[token]; ok {
		return a, nil
	}
	return model.Actor{}, apperrors.Unauthorized(errors.New("bad token"))
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(ErrorHandler())
	e.Use(mw...)
	return e
}

func serve(e *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthMiddleware(fakeAuthenticator{"good": {UserID: 7, Role: model.RoleRecepcao}})
	e := newEngine(auth.Authenticate())
	e.GET("/me", func(c *gin.Context) {
		actor, ok := GetActor(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, actor)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"unknown token", "Bearer bad", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
		{"case insensitive scheme", "bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(e, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"user_id":7,"role":"recepcao"}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"status":"error"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	auth := NewAuthMiddleware(fakeAuthenticator{
		"admin": {UserID: 1, Role: model.RoleAdmin},
		"rec":   {UserID: 2, Role: model.RoleRecepcao},
	})
	e := newEngine(auth.Authenticate(), auth.RequireRole(model.RoleAdmin))
	e.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Authorization", "Bearer rec")
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Authorization", "Bearer admin")
	assert.Equal(t, http.StatusOK, serve(e, req).Code)
}

func TestRateLimitIsPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	e := newEngine(rl.RateLimit())
	e.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(ip string) int {
		req := httptest.NewRequest("GET", "/x", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(e, req).Code
	}
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2"))
}

func TestSizeLimit(t *testing.T) {
	e := newEngine(SizeLimit(DefaultSizeLimitConfig(8)))
	e.POST("/x", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest("POST", "/x", strings.NewReader("small"))).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge,
		serve(e, httptest.NewRequest("POST", "/x", strings.NewReader("far too large a body"))).Code)

	// no Content-Length: the reader cap applies
	req := httptest.NewRequest("POST", "/x", io.NopCloser(strings.NewReader("far too large a body")))
	req.ContentLength = -1
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(e, req).Code)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	e := newEngine(Timeout(TimeoutConfig{Duration: time.Second}))
	e.GET("/x", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(e, httptest.NewRequest("GET", "/x", nil)).Code)
}

func TestCacheHeaders(t *testing.T) {
	e := newEngine(Cache(NoStoreConfig()))
	e.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(e, httptest.NewRequest("GET", "/x", nil))
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "Authorization", w.Header().Get("Vary"))

	w = serve(e, httptest.NewRequest("POST", "/x", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRecoveryAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(RequestID(), Recovery())
	e.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest("GET", "/panic", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := serve(e, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
	assert.JSONEq(t, `{"status":"error","message":"internal server error","trace_id":"abc-123"}`, w.Body.String())
}
