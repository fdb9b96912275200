package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betterocean/betterocean/api-service/internal/market"
)

// MarketHandler serves the public market tab: scraped index ETF quotes and
// per-symbol news headlines. No session link is required.
type MarketHandler struct {
	client *market.Client
}

func NewMarketHandler(client *market.Client) *MarketHandler {
	return &MarketHandler{client: client}
}

func (h *MarketHandler) Register(g gin.IRouter) {
	g.GET("/market/overview", h.Overview)
	g.GET("/market/news", h.News)
}

// Overview returns the fixed ETF basket. Symbols that failed to scrape are
// simply absent so one flaky upstream row never blanks the whole tab.
func (h *MarketHandler) Overview(c *gin.Context) {
	assets := h.client.Overview(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"source":    "stooq",
		"updatedAt": time.Now().UTC().Format(time.RFC3339),
		"assets":    assets,
	})
}

// News returns recent headlines for one symbol.
func (h *MarketHandler) News(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query param is required."})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	headlines, err := h.client.News(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "headlines": headlines})
}
