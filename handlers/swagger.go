package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.String(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>betterocean-api-service — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document covering the routes the dashboard calls.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "betterocean-api-service", "version": "v0.1.0" },
  "paths": {
    "/healthz": {
      "get": { "summary": "Liveness probe", "responses": { "200": { "description": "service is up" } } }
    },
    "/schwab/login": {
      "get": { "summary": "Start the Schwab OAuth flow", "responses": { "302": { "description": "redirect to Schwab consent page" }, "503": { "description": "OAuth credentials not configured" } } }
    },
    "/schwab/callback": {
      "get": {
        "summary": "OAuth redirect target",
        "parameters": [
          { "name": "code", "in": "query", "schema": { "type": "string" } },
          { "name": "state", "in": "query", "schema": { "type": "string" } }
        ],
        "responses": { "302": { "description": "redirect back to the client app with ?schwab=connected or ?schwab=error" } }
      }
    },
    "/schwab/me": {
      "get": { "summary": "Connection summary for the current session", "responses": { "200": { "description": "connected flag, primary account, account count" } } }
    },
    "/schwab/logout": {
      "post": { "summary": "Discard the session and expire the cookie", "responses": { "200": { "description": "ok" } } }
    },
    "/schwab/accounts": {
      "get": { "summary": "Relay the account listing with positions", "responses": { "200": { "description": "upstream payload passed through" }, "401": { "description": "Schwab login required" } } }
    },
    "/schwab/positions": {
      "get": {
        "summary": "Positions for one account",
        "parameters": [ { "name": "accountHash", "in": "query", "schema": { "type": "string" } } ],
        "responses": { "200": { "description": "accountHash, positions, raw payload" }, "400": { "description": "no account hash available" } }
      }
    },
    "/schwab/balances": {
      "get": {
        "summary": "Current balances for one account",
        "parameters": [ { "name": "accountHash", "in": "query", "schema": { "type": "string" } } ],
        "responses": { "200": { "description": "accountHash, balances, raw payload" } }
      }
    },
    "/schwab/orders/open": {
      "get": { "summary": "Open orders from the last 30 days", "responses": { "200": { "description": "filtered open orders plus raw count" } } }
    },
    "/schwab/quotes": {
      "get": {
        "summary": "Market-data quotes for a comma-separated symbol list",
        "parameters": [ { "name": "symbols", "in": "query", "required": true, "schema": { "type": "string" } } ],
        "responses": { "200": { "description": "upstream payload passed through" }, "400": { "description": "symbols missing" } }
      }
    },
    "/schwab/orders": {
      "post": {
        "summary": "Place an order (quantity guardrail enforced)",
        "requestBody": { "content": { "application/json": { "schema": { "type": "object", "properties": { "accountHash": { "type": "string" }, "order": { "type": "object" } } } } } },
        "responses": { "200": { "description": "order accepted or dry-run echo" }, "400": { "description": "guardrail rejection or missing fields" } }
      }
    },
    "/schwab/orders/{orderId}": {
      "delete": {
        "summary": "Cancel an order",
        "parameters": [ { "name": "orderId", "in": "path", "required": true, "schema": { "type": "string" } } ],
        "responses": { "200": { "description": "cancellation result" } }
      }
    },
    "/market/overview": {
      "get": { "summary": "Scraped daily quotes for the index ETF basket", "responses": { "200": { "description": "source, updatedAt, assets" } } }
    },
    "/market/news": {
      "get": {
        "summary": "Recent headlines for a symbol",
        "parameters": [ { "name": "symbol", "in": "query", "required": true, "schema": { "type": "string" } } ],
        "responses": { "200": { "description": "symbol and headlines" } }
      }
    },
    "/chat/message": {
      "post": {
        "summary": "Forward a conversation to the Gradient agent",
        "requestBody": { "content": { "application/json": { "schema": { "type": "object", "properties": { "messages": { "type": "array" } } } } } },
        "responses": { "200": { "description": "reply text" }, "503": { "description": "agent not configured" } }
      }
    }
  }
}`
