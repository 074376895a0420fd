package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupLimited(t *testing.T, limit int) (*gin.Engine, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := gin.New()
	r.POST("/api/checkout", RedisRateLimit(rdb, "checkout", limit, time.Minute, quietLogger()), func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(b))
	})
	return r, mr
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body))
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRedisRateLimit_PerCustomer(t *testing.T) {
	r, mr := setupLimited(t, 2)
	body := `{"customer_id":"cust-1"}`

	for i := 0; i < 2; i++ {
		w := post(r, body)
		require.Equal(t, http.StatusOK, w.Code)
		// the handler still sees the full body
		assert.Equal(t, body, w.Body.String())
	}
	assert.Equal(t, http.StatusTooManyRequests, post(r, body).Code)

	// another customer has its own bucket
	assert.Equal(t, http.StatusOK, post(r, `{"customer_id":"cust-2"}`).Code)
	assert.True(t, mr.Exists("rate_limit:checkout:customer:cust-1"))
}

func TestRedisRateLimit_FallsBackToIP(t *testing.T) {
	r, mr := setupLimited(t, 1)

	assert.Equal(t, http.StatusOK, post(r, `not json`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(r, `{}`).Code)
	assert.True(t, mr.Exists("rate_limit:checkout:ip:10.0.0.1"))
}

func TestRedisRateLimit_RedisDownLetsThrough(t *testing.T) {
	r, mr := setupLimited(t, 1)
	mr.Close()

	assert.Equal(t, http.StatusOK, post(r, `{"customer_id":"cust-1"}`).Code)
	assert.Equal(t, http.StatusOK, post(r, `{"customer_id":"cust-1"}`).Code)
}

func TestRedisRateLimit_WindowSlides(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	r := gin.New()
	r.POST("/api/checkout", RedisRateLimit(rdb, "checkout", 1, 50*time.Millisecond, quietLogger()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, post(r, `{"customer_id":"c"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(r, `{"customer_id":"c"}`).Code)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, http.StatusOK, post(r, `{"customer_id":"c"}`).Code)
}

func setupAuth() *gin.Engine {
	r := gin.New()
	r.Use(Identify("s3cret"))
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/me", RequireUser(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "admin": IsAdmin(c)})
	})
	return r
}

func get(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAdmin(t *testing.T) {
	r := setupAuth()
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", map[string]string{HeaderAdminToken: "s3cret"}).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", map[string]string{HeaderAdminToken: "wrong"}).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", nil).Code)
}

func TestRequireAdmin_EmptyConfiguredToken(t *testing.T) {
	r := gin.New()
	r.Use(Identify(""))
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", map[string]string{HeaderAdminToken: ""}).Code)
}

func TestRequireUser(t *testing.T) {
	r := setupAuth()
	w := get(r, "/me", map[string]string{HeaderUserID: "cust-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"cust-1","admin":false}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", nil).Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	get(r, "/ping", nil)
	get(r, "/boom", nil)

	out := buf.String()
	assert.Contains(t, out, `"msg":"http_request"`)
	assert.Contains(t, out, `"path":"/ping"`)
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"status":500`)
}
