package schwab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/betterocean/betterocean/api-service/internal/config"
	"github.com/betterocean/betterocean/api-service/internal/sessions"
)

const (
	defaultExpiresIn        = 1800
	defaultRefreshExpiresIn = 604800
)

// Client talks to the Schwab OAuth token endpoint and to the trader /
// marketdata REST APIs. It holds no per-session state; tokens are passed in
// by the caller.
type Client struct {
	cfg  config.SchwabConfig
	http *http.Client
}

func NewClient(cfg config.SchwabConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// Configured returns a ConfigError when OAuth credentials are incomplete.
// Checked before any flow starts so misconfiguration fails fast instead of
// producing confusing upstream 401s.
func (c *Client) Configured() error {
	var missing []string
	if c.cfg.ClientID == "" {
		missing = append(missing, "SCHWAB_CLIENT_ID")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "SCHWAB_CLIENT_SECRET")
	}
	if c.cfg.RedirectURI == "" {
		missing = append(missing, "SCHWAB_REDIRECT_URI")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// BuildAuthorizeURL constructs the provider authorization URL with the
// caller-supplied anti-CSRF state token.
func (c *Client) BuildAuthorizeURL(state string) (string, error) {
	if err := c.Configured(); err != nil {
		return "", err
	}
	u, err := url.Parse(c.cfg.AuthorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("state", state)
	if c.cfg.Scope != "" {
		q.Set("scope", c.cfg.Scope)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode swaps an authorization code for a fresh TokenBundle.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*sessions.TokenBundle, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	return c.tokenRequest(ctx, "token exchange", form, "")
}

// Refresh swaps a refresh token for a fresh TokenBundle. When the provider
// omits a rotated refresh token, the previous one is carried forward.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*sessions.TokenBundle, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, "token refresh", form, refreshToken)
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	TokenType             string `json:"token_type"`
	Error                 string `json:"error"`
	ErrorDescription      string `json:"error_description"`
}

func (c *Client) tokenRequest(ctx context.Context, op string, form url.Values, priorRefreshToken string) (*sessions.TokenBundle, error) {
	if err := c.Configured(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, err)
	}

	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = "Schwab " + op + " failed (" + http.StatusText(resp.StatusCode) + ")"
		}
		return nil, &UpstreamAuthError{Status: resp.StatusCode, Message: msg, Payload: body}
	}

	bundle := &sessions.TokenBundle{
		AccessToken:      tr.AccessToken,
		RefreshToken:     tr.RefreshToken,
		ExpiresIn:        tr.ExpiresIn,
		RefreshExpiresIn: tr.RefreshTokenExpiresIn,
		TokenType:        tr.TokenType,
		CreatedAt:        time.Now(),
	}
	if bundle.RefreshToken == "" {
		// provider-side rotation is optional
		bundle.RefreshToken = priorRefreshToken
	}
	if bundle.ExpiresIn == 0 {
		bundle.ExpiresIn = defaultExpiresIn
	}
	if bundle.RefreshExpiresIn == 0 {
		bundle.RefreshExpiresIn = defaultRefreshExpiresIn
	}
	if bundle.TokenType == "" {
		bundle.TokenType = "Bearer"
	}
	return bundle, nil
}

// Result is a relayed upstream response: status and raw body, passed through
// to the browser without re-interpretation.
type Result struct {
	Status int
	Body   []byte
	Header http.Header
}

// Decode unmarshals the result body into v.
func (r *Result) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Do performs a Bearer-authenticated REST call. Paths under /marketdata/ are
// routed to the marketdata base URL, everything else to the trader API.
func (c *Client) Do(ctx context.Context, accessToken, method, path string, query url.Values, body any) (*Result, error) {
	full := c.cfg.TraderBaseURL + path
	if strings.HasPrefix(path, "/marketdata/") {
		full = c.cfg.MarketDataBaseURL + strings.TrimPrefix(path, "/marketdata")
	}

	u, err := url.Parse(full)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		q := u.Query()
		for key, vals := range query {
			for _, v := range vals {
				if v == "" {
					continue
				}
				q.Set(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError("API request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("API request", err)
	}
	return &Result{Status: resp.StatusCode, Body: raw, Header: resp.Header}, nil
}

func transportError(op string, err error) error {
	timeout := os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded)
	var ne net.Error
	if !timeout && errors.As(err, &ne) {
		timeout = ne.Timeout()
	}
	return &TransportError{Op: op, Timeout: timeout, Err: err}
}
