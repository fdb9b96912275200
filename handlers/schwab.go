package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betterocean/betterocean/api-service/internal/config"
	"github.com/betterocean/betterocean/api-service/internal/schwab"
	"github.com/betterocean/betterocean/api-service/internal/sessions"
	"github.com/betterocean/betterocean/api-service/pkg/logger"
	"github.com/betterocean/betterocean/api-service/pkg/middleware"
)

// openOrderStatuses are the brokerage order states treated as still open.
var openOrderStatuses = map[string]bool{
	"WORKING":               true,
	"QUEUED":                true,
	"ACCEPTED":              true,
	"NEW":                   true,
	"AWAITING_PARENT_ORDER": true,
}

// SchwabHandler serves the OAuth linking flow and the authenticated relay
// routes in front of the Schwab Trader and Market Data APIs.
type SchwabHandler struct {
	cfg        *config.Config
	sessions   *sessions.Service
	client     *schwab.Client
	dispatcher *schwab.Dispatcher
}

func NewSchwabHandler(cfg *config.Config, svc *sessions.Service, client *schwab.Client, dispatcher *schwab.Dispatcher) *SchwabHandler {
	return &SchwabHandler{cfg: cfg, sessions: svc, client: client, dispatcher: dispatcher}
}

// Register mounts the Schwab routes on the given group. The browser client
// calls some routes bare and some under /api, so main mounts this twice.
func (h *SchwabHandler) Register(g gin.IRouter, guard gin.HandlerFunc) {
	g.GET("/schwab/login", h.Login)
	g.GET("/schwab/callback", h.Callback)
	g.GET("/schwab/me", h.Me)
	g.POST("/schwab/logout", h.Logout)

	g.GET("/schwab/accounts", guard, h.Accounts)
	g.GET("/schwab/positions", guard, h.Positions)
	g.GET("/schwab/balances", guard, h.Balances)
	g.GET("/schwab/orders/open", guard, h.OpenOrders)
	g.GET("/schwab/quotes", guard, h.Quotes)
	g.POST("/schwab/orders", guard, h.PlaceOrder)
	g.DELETE("/schwab/orders/:orderId", guard, h.CancelOrder)
}

// Login starts the OAuth authorization-code flow: mints a state token, binds
// it to the session, and redirects the browser to Schwab's consent page.
func (h *SchwabHandler) Login(c *gin.Context) {
	if err := h.client.Configured(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	sess := middleware.SessionFromContext(c)
	state := sessions.NewStateToken()
	sess.OAuthState = state
	sess.OAuthStartedAt = time.Now()
	if err := h.sessions.Save(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist session."})
		return
	}

	authorizeURL, err := h.client.BuildAuthorizeURL(state)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusFound, authorizeURL)
}

// Callback completes the OAuth flow. Every failure path redirects back to the
// client app with a reason instead of rendering an error page, since only a
// browser ever lands here.
func (h *SchwabHandler) Callback(c *gin.Context) {
	if oauthErr := c.Query("error"); oauthErr != "" {
		reason := c.Query("error_description")
		if reason == "" {
			reason = oauthErr
		}
		h.redirectError(c, reason)
		return
	}

	sess := middleware.SessionFromContext(c)
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" || sess.OAuthState == "" || state != sess.OAuthState {
		h.redirectError(c, "Invalid OAuth state.")
		return
	}

	ctx := c.Request.Context()
	bundle, err := h.client.ExchangeCode(ctx, code)
	if err != nil {
		h.redirectError(c, err.Error())
		return
	}

	sess.SchwabTokens = bundle
	sess.SchwabConnected = true
	sess.SchwabConnectedAt = time.Now()
	sess.OAuthState = ""
	sess.OAuthStartedAt = time.Time{}
	if err := h.sessions.Save(ctx, sess); err != nil {
		logger.Errorf("failed to persist session after code exchange: %v", err)
	}

	h.bootstrapAccounts(ctx, sess)

	c.Redirect(http.StatusFound, h.cfg.Server.ClientAppURL+"?schwab=connected")
}

// bootstrapAccounts fetches the account-numbers listing right after linking so
// later relay calls have a primary account hash to fall back on. Failures are
// logged, not surfaced: the connection itself already succeeded.
func (h *SchwabHandler) bootstrapAccounts(ctx context.Context, sess *sessions.Session) {
	res, _, err := h.dispatcher.Dispatch(ctx, sess, http.MethodGet, "/accounts/accountNumbers", nil, nil)
	if err != nil {
		logger.Warnf("account bootstrap failed: %v", err)
		return
	}
	if res.Status < 200 || res.Status >= 300 {
		logger.Warnf("account bootstrap returned status %d", res.Status)
		return
	}

	var accounts []sessions.AccountNumber
	if err := res.Decode(&accounts); err != nil || len(accounts) == 0 {
		return
	}
	sess.AccountNumbers = accounts
	sess.PrimaryAccountNumber = accounts[0].AccountNumber
	sess.PrimaryAccountHash = accounts[0].HashValue
	if err := h.sessions.Save(ctx, sess); err != nil {
		logger.Errorf("failed to persist bootstrapped accounts: %v", err)
	}
}

func (h *SchwabHandler) redirectError(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, h.cfg.Server.ClientAppURL+"?schwab=error&reason="+url.QueryEscape(reason))
}

// Me returns a sanitized connection summary. Tokens never leave the server.
func (h *SchwabHandler) Me(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	out := gin.H{
		"connected":     sess.SchwabConnected,
		"connectedAt":   nil,
		"accountHash":   nil,
		"accountNumber": nil,
		"accountCount":  len(sess.AccountNumbers),
	}
	if !sess.SchwabConnectedAt.IsZero() {
		out["connectedAt"] = sess.SchwabConnectedAt
	}
	if sess.PrimaryAccountHash != "" {
		out["accountHash"] = sess.PrimaryAccountHash
	}
	if sess.PrimaryAccountNumber != "" {
		out["accountNumber"] = sess.PrimaryAccountNumber
	}
	c.JSON(http.StatusOK, out)
}

// Logout discards the server-side session and expires the cookie.
func (h *SchwabHandler) Logout(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	if sess != nil {
		if err := h.sessions.Destroy(c.Request.Context(), sess.ID); err != nil {
			logger.Warnf("failed to delete session %s: %v", sess.ID, err)
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.cfg.Session.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Accounts relays the full account listing (with positions) verbatim.
func (h *SchwabHandler) Accounts(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	res, _, err := h.dispatcher.Dispatch(c.Request.Context(), sess, http.MethodGet, "/accounts",
		url.Values{"fields": {"positions"}}, nil)
	if err != nil {
		relayError(c, err)
		return
	}
	relayRaw(c, res)
}

// Positions fetches one account and extracts the positions array, keeping the
// raw payload alongside for the client's detail view.
func (h *SchwabHandler) Positions(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	accountHash := c.Query("accountHash")
	if accountHash == "" {
		accountHash = sess.PrimaryAccountHash
	}
	if accountHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No account hash available for positions."})
		return
	}

	res, _, err := h.dispatcher.Dispatch(c.Request.Context(), sess, http.MethodGet,
		"/accounts/"+url.PathEscape(accountHash), url.Values{"fields": {"positions"}}, nil)
	if err != nil {
		relayError(c, err)
		return
	}

	var payload map[string]any
	if err := res.Decode(&payload); err != nil {
		logger.Warnf("positions payload decode failed: %v", err)
	}
	positions := []any{}
	if acct, ok := payload["securitiesAccount"].(map[string]any); ok {
		if p, ok := acct["positions"].([]any); ok {
			positions = p
		}
	} else if p, ok := payload["positions"].([]any); ok {
		positions = p
	}
	c.JSON(res.Status, gin.H{"accountHash": accountHash, "positions": positions, "raw": payload})
}

// Balances mirrors Positions but extracts currentBalances.
func (h *SchwabHandler) Balances(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	accountHash := c.Query("accountHash")
	if accountHash == "" {
		accountHash = sess.PrimaryAccountHash
	}
	if accountHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No account hash available for balances."})
		return
	}

	res, _, err := h.dispatcher.Dispatch(c.Request.Context(), sess, http.MethodGet,
		"/accounts/"+url.PathEscape(accountHash), nil, nil)
	if err != nil {
		relayError(c, err)
		return
	}

	var payload map[string]any
	if err := res.Decode(&payload); err != nil {
		logger.Warnf("balances payload decode failed: %v", err)
	}
	balances := any(gin.H{})
	if acct, ok := payload["securitiesAccount"].(map[string]any); ok {
		if b, ok := acct["currentBalances"]; ok {
			balances = b
		}
	} else if b, ok := payload["balances"]; ok {
		balances = b
	}
	c.JSON(res.Status, gin.H{"accountHash": accountHash, "balances": balances, "raw": payload})
}

// OpenOrders queries the last 30 days of orders and keeps only the ones in an
// open state.
func (h *SchwabHandler) OpenOrders(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	accountHash := c.Query("accountHash")
	if accountHash == "" {
		accountHash = sess.PrimaryAccountHash
	}
	if accountHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No account hash available for orders."})
		return
	}

	now := time.Now().UTC()
	maxResults := c.Query("maxResults")
	if maxResults == "" {
		maxResults = "50"
	}
	query := url.Values{
		"fromEnteredTime": {now.Add(-30 * 24 * time.Hour).Format("2006-01-02T15:04:05.000Z")},
		"toEnteredTime":   {now.Format("2006-01-02T15:04:05.000Z")},
		"maxResults":      {maxResults},
	}

	res, _, err := h.dispatcher.Dispatch(c.Request.Context(), sess, http.MethodGet,
		"/accounts/"+url.PathEscape(accountHash)+"/orders", query, nil)
	if err != nil {
		relayError(c, err)
		return
	}

	var payload any
	if err := res.Decode(&payload); err != nil {
		logger.Warnf("orders payload decode failed: %v", err)
	}
	orders := ordersFromPayload(payload)
	open := make([]any, 0, len(orders))
	for _, o := range orders {
		order, ok := o.(map[string]any)
		if !ok {
			continue
		}
		status, _ := order["status"].(string)
		if openOrderStatuses[strings.ToUpper(status)] {
			open = append(open, order)
		}
	}
	c.JSON(res.Status, gin.H{"accountHash": accountHash, "orders": open, "rawCount": len(orders)})
}

func ordersFromPayload(payload any) []any {
	switch p := payload.(type) {
	case []any:
		return p
	case map[string]any:
		if o, ok := p["orders"].([]any); ok {
			return o
		}
	}
	return nil
}

// Quotes relays a market-data quote lookup for a comma-separated symbol list.
func (h *SchwabHandler) Quotes(c *gin.Context) {
	symbols := make([]string, 0, 4)
	for _, s := range strings.Split(c.Query("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols query param is required (comma-separated)."})
		return
	}
	fields := c.Query("fields")
	if fields == "" {
		fields = "quote"
	}

	sess := middleware.SessionFromContext(c)
	res, _, err := h.dispatcher.Dispatch(c.Request.Context(), sess, http.MethodGet, "/marketdata/quotes",
		url.Values{"symbols": {strings.Join(symbols, ",")}, "fields": {fields}}, nil)
	if err != nil {
		relayError(c, err)
		return
	}
	relayRaw(c, res)
}

type placeOrderRequest struct {
	AccountHash string         `json:"accountHash"`
	Order       map[string]any `json:"order"`
}

// PlaceOrder validates the order against the quantity guardrail before
// forwarding it. In dry-run mode the order is validated and echoed back
// without touching the brokerage.
func (h *SchwabHandler) PlaceOrder(c *gin.Context) {
	sess := middleware.SessionFromContext(c)

	var req placeOrderRequest
	_ = c.ShouldBindJSON(&req)

	accountHash := req.AccountHash
	if accountHash == "" {
		accountHash = sess.PrimaryAccountHash
	}
	if accountHash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accountHash is required."})
		return
	}
	if req.Order == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order object is required."})
		return
	}

	maxQty := maxOrderQuantity(req.Order)
	if maxQty > h.cfg.Schwab.MaxOrderQty {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Order rejected by guardrail. Quantity %v exceeds SCHWAB_MAX_ORDER_QTY (%v).",
				maxQty, h.cfg.Schwab.MaxOrderQty),
		})
		return
	}

	if h.cfg.Schwab.DryRun {
		c.JSON(http.StatusOK, gin.H{
			"ok":          true,
			"dryRun":      true,
			"accountHash": accountHash,
			"maxQty":      maxQty,
			"message":     "SCHWAB_DRY_RUN is enabled. Order was validated but not sent.",
		})
		return
	}

	res, _, err := h.dispatcher.Dispatch(c.Request.Context(), sess, http.MethodPost,
		"/accounts/"+url.PathEscape(accountHash)+"/orders", nil, req.Order)
	if err != nil {
		relayError(c, err)
		return
	}
	var result any
	_ = res.Decode(&result)
	c.JSON(res.Status, gin.H{"ok": res.Status >= 200 && res.Status < 300, "result": result})
}

// maxOrderQuantity walks the order payload and returns the largest quantity
// found at any depth, covering both plain and multi-leg order shapes.
func maxOrderQuantity(node any) float64 {
	var max float64
	var walk func(v any)
	walk = func(v any) {
		switch n := v.(type) {
		case map[string]any:
			if q, ok := n["quantity"].(float64); ok && q > max {
				max = q
			}
			for _, child := range n {
				walk(child)
			}
		case []any:
			for _, child := range n {
				walk(child)
			}
		}
	}
	walk(node)
	return max
}

// CancelOrder forwards an order cancellation.
func (h *SchwabHandler) CancelOrder(c *gin.Context) {
	sess := middleware.SessionFromContext(c)
	accountHash := c.Query("accountHash")
	if accountHash == "" {
		accountHash = sess.PrimaryAccountHash
	}
	orderID := c.Param("orderId")
	if accountHash == "" || orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accountHash and orderId are required."})
		return
	}

	res, _, err := h.dispatcher.Dispatch(c.Request.Context(), sess, http.MethodDelete,
		"/accounts/"+url.PathEscape(accountHash)+"/orders/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		relayError(c, err)
		return
	}
	var result any
	_ = res.Decode(&result)
	c.JSON(res.Status, gin.H{"ok": res.Status >= 200 && res.Status < 300, "result": result})
}

// relayRaw passes an upstream response through untouched.
func relayRaw(c *gin.Context, res *schwab.Result) {
	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(res.Status, contentType, res.Body)
}

// relayError maps dispatch failures onto the status codes the browser client
// distinguishes: 401 means "log in again", 503 means "server misconfigured",
// 504 means "upstream too slow", everything else is a generic bad gateway.
func relayError(c *gin.Context, err error) {
	var cfgErr *schwab.ConfigError
	var authErr *schwab.UpstreamAuthError
	var trErr *schwab.TransportError
	switch {
	case errors.Is(err, schwab.ErrNotConnected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Schwab login required."})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": cfgErr.Error()})
	case errors.As(err, &authErr):
		status := authErr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": authErr.Message})
	case errors.As(err, &trErr):
		if trErr.Timeout {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
