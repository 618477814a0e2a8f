package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCredential(t *testing.T) {
	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer header", "Bearer abc", "", "abc"},
		{"lower bearer", "bearer  abc ", "", "abc"},
		{"raw header", "abc", "", "abc"},
		{"query fallback", "", "xyz", "xyz"},
		{"header wins", "Bearer abc", "xyz", "abc"},
		{"none", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			if tc.query != "" {
				q := r.URL.Query()
				q.Set("token", tc.query)
				r.URL.RawQuery = q.Encode()
			}
			assert.Equal(t, tc.want, Credential(r, nil))
		})
	}
}

func TestInternalKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", InternalKey("k1"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(key string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if key != "" {
			req.Header.Set(HeaderInternalKey, key)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, do("k1"))
	assert.Equal(t, http.StatusUnauthorized, do("k2"))
	assert.Equal(t, http.StatusUnauthorized, do(""))
}

func TestMiddleware_SetsToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var got string
	r.GET("/x", Middleware(nil), func(c *gin.Context) {
		got = c.GetString(PPCtxAuthKey)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer t0k")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t0k", got)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
