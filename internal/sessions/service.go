package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/betterocean/betterocean/api-service/pkg/logger"
)

// Service wraps repository operations with the cookie-to-session policy:
// resolve-or-create never fails (a forged or expired cookie silently yields
// a fresh anonymous session), while connection-gated routes fail closed via
// their own guard middleware.
type Service struct {
	repo       Repository
	secret     string
	ttl        time.Duration
	cookieName string
}

func NewService(repo Repository, cookieName, secret string, ttl time.Duration) *Service {
	return &Service{repo: repo, secret: secret, ttl: ttl, cookieName: cookieName}
}

func (s *Service) CookieName() string { return s.cookieName }
func (s *Service) TTL() time.Duration { return s.ttl }
func (s *Service) CookieValue(id string) string {
	return MakeSignedValue(id, s.secret)
}

// ResolveOrCreate returns the session referenced by the request's signed
// cookie, refreshing lastSeenAt, or a brand-new anonymous session when the
// cookie is absent, forged, or stale. Expired sessions are swept lazily on
// every call; there is no background timer.
func (s *Service) ResolveOrCreate(ctx context.Context, r *http.Request) *Session {
	if err := s.repo.Sweep(ctx, s.ttl); err != nil {
		logger.Warnf("session sweep failed: %v", err)
	}

	now := time.Now()
	if c, err := r.Cookie(s.cookieName); err == nil {
		if id, ok := VerifySignedValue(c.Value, s.secret); ok {
			sess, err := s.repo.Get(ctx, id)
			if err != nil {
				logger.Warnf("session lookup failed for %s: %v", id, err)
			}
			if sess != nil && now.Sub(sess.LastSeenAt) <= s.ttl {
				sess.LastSeenAt = now
				if err := s.repo.Put(ctx, sess); err != nil {
					logger.Warnf("session touch failed for %s: %v", id, err)
				}
				return sess
			}
		}
	}

	sess := &Session{ID: newSessionID(), CreatedAt: now, LastSeenAt: now}
	if err := s.repo.Put(ctx, sess); err != nil {
		logger.Warnf("session create failed for %s: %v", sess.ID, err)
	}
	return sess
}

// Save persists mutations made to a resolved session.
func (s *Service) Save(ctx context.Context, sess *Session) error {
	return s.repo.Put(ctx, sess)
}

// Destroy removes the session; the caller must also clear the client cookie.
func (s *Service) Destroy(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// newSessionID returns a 128-bit random hex identifier. Collision
// probability at this size is negligible for the expected session volume.
func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}

// NewStateToken returns an opaque anti-CSRF state value for the OAuth flow.
func NewStateToken() string {
	return newSessionID()
}
