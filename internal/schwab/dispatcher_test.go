package schwab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterocean/betterocean/api-service/internal/sessions"
)

// fakeUpstream bundles a token endpoint and a trader API endpoint with call
// counters so tests can assert on the exact refresh/replay sequence.
type fakeUpstream struct {
	tokenHits   atomic.Int64
	apiHits     atomic.Int64
	apiStatuses []int // consumed per call; last entry repeats

	tokenSrv *httptest.Server
	apiSrv   *httptest.Server
}

func newFakeUpstream(t *testing.T, apiStatuses ...int) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{apiStatuses: apiStatuses}

	f.tokenSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenHits.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-refreshed-" + string(rune('0'+n)),
			"refresh_token": "rt-rotated",
			"expires_in":    1800,
			"token_type":    "Bearer",
		})
	}))
	t.Cleanup(f.tokenSrv.Close)

	f.apiSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(f.apiHits.Add(1)) - 1
		if i >= len(f.apiStatuses) {
			i = len(f.apiStatuses) - 1
		}
		w.WriteHeader(f.apiStatuses[i])
		w.Write([]byte(`{"hit":true}`))
	}))
	t.Cleanup(f.apiSrv.Close)
	return f
}

func (f *fakeUpstream) dispatcher() (*Dispatcher, sessions.Repository) {
	repo := sessions.NewMemoryRepository()
	client := NewClient(testConfig(f.tokenSrv.URL, f.apiSrv.URL, f.apiSrv.URL))
	return NewDispatcher(client, repo), repo
}

func connectedSession(expiresIn int64, age time.Duration) *sessions.Session {
	return &sessions.Session{
		ID:              "sess-1",
		CreatedAt:       time.Now().Add(-age),
		LastSeenAt:      time.Now(),
		SchwabConnected: true,
		SchwabTokens: &sessions.TokenBundle{
			AccessToken:  "at-original",
			RefreshToken: "rt-original",
			ExpiresIn:    expiresIn,
			TokenType:    "Bearer",
			CreatedAt:    time.Now().Add(-age),
		},
	}
}

func TestEnsureValidToken_NotConnected(t *testing.T) {
	f := newFakeUpstream(t, 200)
	d, _ := f.dispatcher()

	_, err := d.EnsureValidToken(context.Background(), &sessions.Session{ID: "s"})
	require.ErrorIs(t, err, ErrNotConnected)
	assert.EqualValues(t, 0, f.tokenHits.Load())
}

func TestEnsureValidToken_FreshTokenUntouched(t *testing.T) {
	f := newFakeUpstream(t, 200)
	d, _ := f.dispatcher()
	sess := connectedSession(1800, 0)

	access, err := d.EnsureValidToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "at-original", access)
	assert.EqualValues(t, 0, f.tokenHits.Load())
}

func TestEnsureValidToken_LapsedTokenRefreshedOnce(t *testing.T) {
	f := newFakeUpstream(t, 200)
	d, repo := f.dispatcher()
	// issued an hour ago with a 30 minute lifetime: already lapsed
	sess := connectedSession(1800, time.Hour)
	require.NoError(t, repo.Put(context.Background(), sess))

	access, err := d.EnsureValidToken(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, "at-original", access)
	assert.EqualValues(t, 1, f.tokenHits.Load())

	// the replacement bundle was persisted wholesale
	stored, err := repo.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, stored.SchwabTokens)
	assert.Equal(t, access, stored.SchwabTokens.AccessToken)
	assert.Equal(t, "rt-rotated", stored.SchwabTokens.RefreshToken)
}

func TestDispatch_SuccessNoRefresh(t *testing.T) {
	f := newFakeUpstream(t, 200)
	d, _ := f.dispatcher()
	sess := connectedSession(1800, 0)

	res, outcome, err := d.Dispatch(context.Background(), sess, http.MethodGet, "/accounts", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, 200, res.Status)
	assert.EqualValues(t, 0, f.tokenHits.Load())
	assert.EqualValues(t, 1, f.apiHits.Load())
}

func TestDispatch_401ThenOKRetriedOnce(t *testing.T) {
	f := newFakeUpstream(t, 401, 200)
	d, _ := f.dispatcher()
	sess := connectedSession(1800, 0)

	res, outcome, err := d.Dispatch(context.Background(), sess, http.MethodGet, "/accounts", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetriedSuccess, outcome)
	assert.Equal(t, 200, res.Status)
	assert.EqualValues(t, 1, f.tokenHits.Load(), "refresh must be invoked exactly once")
	assert.EqualValues(t, 2, f.apiHits.Load(), "request must be replayed exactly once")
}

func TestDispatch_Double401SurfacedVerbatim(t *testing.T) {
	f := newFakeUpstream(t, 401, 401)
	d, _ := f.dispatcher()
	sess := connectedSession(1800, 0)

	res, outcome, err := d.Dispatch(context.Background(), sess, http.MethodGet, "/accounts", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 401, res.Status)
	assert.EqualValues(t, 1, f.tokenHits.Load(), "no second refresh after a forced one")
	assert.EqualValues(t, 2, f.apiHits.Load(), "no third attempt")
	// connection state untouched: the user can retry login manually
	assert.True(t, sess.SchwabConnected)
}

func TestDispatch_401WithoutRefreshTokenNotRetried(t *testing.T) {
	f := newFakeUpstream(t, 401)
	d, _ := f.dispatcher()
	sess := connectedSession(1800, 0)
	sess.SchwabTokens.RefreshToken = ""

	res, outcome, err := d.Dispatch(context.Background(), sess, http.MethodGet, "/accounts", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, 401, res.Status)
	assert.EqualValues(t, 0, f.tokenHits.Load())
	assert.EqualValues(t, 1, f.apiHits.Load())
}
