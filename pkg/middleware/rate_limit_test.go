package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/betterocean/betterocean/api-service/internal/sessions"
)

// withSession injects a fixed session identity ahead of the limiter so tests
// get an isolated bucket regardless of httptest's shared RemoteAddr.
func withSession(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(SessionContextKey, &sessions.Session{ID: id})
		c.Next()
	}
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	r := gin.New()
	r.Use(withSession("under-limit"))
	r.Use(RateLimitMiddleware(10, 2)) // generous rate
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	r.Use(withSession("exceeded"))
	// 2 rps with burst 1: one token, replenished every 500ms
	r.Use(RateLimitMiddleware(2, 1))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	// first request -> allowed
	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest("GET", "/limited", nil))
	require.Equal(t, http.StatusOK, w1.Code)

	// immediate second request -> should be rate-limited
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/limited", nil))
	require.Equal(t, http.StatusTooManyRequests, w2.Code)

	// 600ms is enough to replenish one token at 2 rps
	time.Sleep(600 * time.Millisecond)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest("GET", "/limited", nil))
	require.Equal(t, http.StatusOK, w3.Code)
}

// Mirrors the production wiring: session middleware first, limiter second,
// every request from the same httptest client IP. Distinct browser sessions
// must land in distinct buckets.
func TestRateLimitMiddleware_SessionCookiesKeyBuckets(t *testing.T) {
	repo := sessions.NewMemoryRepository()
	svc := sessions.NewService(repo, "bo_session", testSecret, time.Hour)

	r := gin.New()
	r.Use(SessionMiddleware(svc, false))
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	// browser A: first request allowed, immediate replay exhausts its bucket
	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest("GET", "/u", nil))
	require.Equal(t, http.StatusOK, w1.Code)
	cookieA := w1.Result().Cookies()[0]

	req2 := httptest.NewRequest("GET", "/u", nil)
	req2.AddCookie(&http.Cookie{Name: cookieA.Name, Value: cookieA.Value})
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusTooManyRequests, w2.Code)

	// browser B (no cookie, same IP) resolves a fresh session and must not
	// inherit A's exhausted bucket
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest("GET", "/u", nil))
	require.Equal(t, http.StatusOK, w3.Code)
}

func TestRateLimitMiddleware_SessionsGetSeparateBuckets(t *testing.T) {
	limiter := RateLimitMiddleware(0.5, 1)

	newRouter := func(sessionID string) *gin.Engine {
		r := gin.New()
		r.Use(withSession(sessionID))
		r.Use(limiter)
		r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
		return r
	}

	ra := newRouter("session-a")
	rb := newRouter("session-b")

	// session-a exhausts its bucket
	w1 := httptest.NewRecorder()
	ra.ServeHTTP(w1, httptest.NewRequest("GET", "/u", nil))
	require.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	ra.ServeHTTP(w2, httptest.NewRequest("GET", "/u", nil))
	require.Equal(t, http.StatusTooManyRequests, w2.Code)

	// session-b is unaffected
	w3 := httptest.NewRecorder()
	rb.ServeHTTP(w3, httptest.NewRequest("GET", "/u", nil))
	require.Equal(t, http.StatusOK, w3.Code)
}
