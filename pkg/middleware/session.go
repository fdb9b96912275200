package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/betterocean/betterocean/api-service/internal/sessions"
)

// SessionContextKey is the Gin context key under which the resolved
// session is stored for downstream handlers.
const SessionContextKey = "session"

// SessionMiddleware resolves the browser session for every request and
// re-issues the signed cookie so the expiry window slides forward.
// Resolution never fails: a missing, forged, or expired cookie yields a
// fresh anonymous session.
func SessionMiddleware(svc *sessions.Service, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := svc.ResolveOrCreate(c.Request.Context(), c.Request)
		c.Set(SessionContextKey, sess)

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(
			svc.CookieName(),
			svc.CookieValue(sess.ID),
			int(svc.TTL().Seconds()),
			"/",
			"",
			secure,
			true,
		)
		c.Next()
	}
}

// SessionFromContext returns the session resolved by SessionMiddleware,
// or nil when the middleware did not run.
func SessionFromContext(c *gin.Context) *sessions.Session {
	v, ok := c.Get(SessionContextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*sessions.Session)
	return sess
}

// RequireSchwab guards relay routes: requests whose session holds no live
// Schwab link are rejected before any upstream call is attempted.
func RequireSchwab() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := SessionFromContext(c)
		if !sess.Connected() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Schwab login required."})
			return
		}
		c.Next()
	}
}
