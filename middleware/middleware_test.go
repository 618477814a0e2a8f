package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	midsec "PPCollab/middleware/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAllowOrigin(t *testing.T) {
	assert.True(t, AllowOrigin(nil, "https://evil.example"))
	assert.True(t, AllowOrigin([]string{"app.example"}, ""))
	assert.True(t, AllowOrigin([]string{"app.example"}, "https://app.example"))
	assert.True(t, AllowOrigin([]string{"https://app.example"}, "https://app.example"))
	assert.True(t, AllowOrigin([]string{"*"}, "https://x.example"))
	assert.False(t, AllowOrigin([]string{"app.example"}, "https://evil.example"))
}

func TestRouteOpt_InternalKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	POST(r, "/internal/x", func(c *gin.Context) { c.Status(http.StatusAccepted) }, RouteOpt{InternalKey: "k"})
	GET(r, "/open", func(c *gin.Context) { c.Status(http.StatusOK) }, RouteOpt{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/x", nil)
	req.Header.Set(midsec.HeaderInternalKey, "k")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestManager_StopsOnAbort(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager()
	var reached bool
	m.Add(func(c *gin.Context) { c.AbortWithStatus(http.StatusTeapot) })
	m.Add(func(c *gin.Context) { reached = true })

	r := gin.New()
	r.Use(m.Use())
	r.GET("/", func(c *gin.Context) { reached = true })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.False(t, reached)
}

func TestDrainingAddedAtRuntime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager()
	r := gin.New()
	r.Use(m.Use())
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	m.Add(Draining())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "shutting down")
}

func TestManager_Clear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager()
	m.Add(Draining())
	r := gin.New()
	r.Use(m.Use())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	m.Clear()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
