package schwab

import (
	"context"
	"net/url"
	"time"

	"github.com/betterocean/betterocean/api-service/internal/sessions"
	"github.com/betterocean/betterocean/api-service/pkg/metrics"
)

// defaultRefreshMargin is the safety window before actual expiry that
// triggers a preemptive refresh.
const defaultRefreshMargin = 60 * time.Second

// Outcome tags the result of a dispatched call so callers see the retry
// decision explicitly instead of it being hidden in control flow.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRetriedSuccess Outcome = "retried_success"
	OutcomeFailed         Outcome = "failed"
)

// Dispatcher issues authenticated brokerage calls with refresh-and-retry
// policy. Every successful refresh replaces the session's TokenBundle
// wholesale and persists it.
//
// Concurrent requests against the same session are not serialized: two
// requests observing an expiring token may both refresh, last write wins.
// Schwab keeps rotated refresh tokens valid for a grace window, so both
// bundles remain usable.
type Dispatcher struct {
	client *Client
	repo   sessions.Repository
	margin time.Duration
}

func NewDispatcher(client *Client, repo sessions.Repository) *Dispatcher {
	return &Dispatcher{client: client, repo: repo, margin: defaultRefreshMargin}
}

// EnsureValidToken returns an access token that is not within the refresh
// margin of expiry, refreshing first when necessary. ErrNotConnected when
// the session holds no TokenBundle.
func (d *Dispatcher) EnsureValidToken(ctx context.Context, sess *sessions.Session) (string, error) {
	if sess.SchwabTokens == nil {
		return "", ErrNotConnected
	}
	if !sess.SchwabTokens.WillExpireSoon(d.margin) {
		return sess.SchwabTokens.AccessToken, nil
	}
	if err := d.refresh(ctx, sess, "expiring"); err != nil {
		return "", err
	}
	return sess.SchwabTokens.AccessToken, nil
}

// Dispatch performs an authenticated brokerage call. On a 401 with a refresh
// token present it refreshes unconditionally (the access token is already
// known-bad, so the expiry margin is irrelevant) and replays the request
// exactly once. A second 401 is returned verbatim; a repeated failure after
// a forced refresh means revoked consent or wrong scope, which another
// refresh cannot fix.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *sessions.Session, method, path string, query url.Values, body any) (*Result, Outcome, error) {
	access, err := d.EnsureValidToken(ctx, sess)
	if err != nil {
		metrics.SchwabRequests.WithLabelValues(string(OutcomeFailed)).Inc()
		return nil, OutcomeFailed, err
	}

	res, err := d.client.Do(ctx, access, method, path, query, body)
	if err != nil {
		metrics.SchwabRequests.WithLabelValues(string(OutcomeFailed)).Inc()
		return nil, OutcomeFailed, err
	}

	if res.Status != 401 || sess.SchwabTokens.RefreshToken == "" {
		metrics.SchwabRequests.WithLabelValues(string(OutcomeSuccess)).Inc()
		return res, OutcomeSuccess, nil
	}

	if err := d.refresh(ctx, sess, "unauthorized"); err != nil {
		metrics.SchwabRequests.WithLabelValues(string(OutcomeFailed)).Inc()
		return nil, OutcomeFailed, err
	}

	res, err = d.client.Do(ctx, sess.SchwabTokens.AccessToken, method, path, query, body)
	if err != nil {
		metrics.SchwabRequests.WithLabelValues(string(OutcomeFailed)).Inc()
		return nil, OutcomeFailed, err
	}
	if res.Status == 401 {
		// irrecoverable: surface verbatim, leave connection state untouched
		// so the user can retry login manually
		metrics.SchwabRequests.WithLabelValues(string(OutcomeFailed)).Inc()
		return res, OutcomeFailed, nil
	}
	metrics.SchwabRequests.WithLabelValues(string(OutcomeRetriedSuccess)).Inc()
	return res, OutcomeRetriedSuccess, nil
}

func (d *Dispatcher) refresh(ctx context.Context, sess *sessions.Session, trigger string) error {
	bundle, err := d.client.Refresh(ctx, sess.SchwabTokens.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(trigger, "error").Inc()
		return err
	}
	sess.SchwabTokens = bundle
	metrics.TokenRefreshes.WithLabelValues(trigger, "ok").Inc()
	return d.repo.Put(ctx, sess)
}
