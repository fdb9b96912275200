// Package market fetches public market data: daily quotes scraped from the
// stooq.com CSV endpoint and headline feeds from Google News RSS.
package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/betterocean/betterocean/api-service/internal/config"
)

// Quote is one scraped daily OHLCV row.
type Quote struct {
	Symbol string  `json:"symbol"`
	Label  string  `json:"label"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Date   string  `json:"date,omitempty"`
}

// OverviewSymbol pairs a stooq symbol with its display label.
type OverviewSymbol struct {
	Symbol string
	Label  string
}

// OverviewSymbols is the fixed ETF basket shown on the market overview tab.
var OverviewSymbols = []OverviewSymbol{
	{Symbol: "spy.us", Label: "S&P 500 ETF (SPY)"},
	{Symbol: "qqq.us", Label: "Nasdaq 100 ETF (QQQ)"},
	{Symbol: "iwm.us", Label: "Russell 2000 ETF (IWM)"},
	{Symbol: "dia.us", Label: "Dow ETF (DIA)"},
	{Symbol: "gld.us", Label: "Gold ETF (GLD)"},
	{Symbol: "tlt.us", Label: "20Y Treasury ETF (TLT)"},
}

// Client scrapes the public endpoints. All calls carry a hard timeout.
type Client struct {
	http         *http.Client
	stooqBaseURL string
	newsBaseURL  string
}

func NewClient(cfg config.MarketConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:         &http.Client{Timeout: timeout},
		stooqBaseURL: strings.TrimRight(cfg.StooqBaseURL, "/"),
		newsBaseURL:  strings.TrimRight(cfg.NewsBaseURL, "/"),
	}
}

// Quote fetches a single symbol. Returns (nil, nil) when the feed has no
// usable row for the symbol (stooq reports unknown symbols with N/D fields).
func (c *Client) Quote(ctx context.Context, symbol, label string) (*Quote, error) {
	u := fmt.Sprintf("%s/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv", c.stooqBaseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("quote fetch failed for %s (%d)", symbol, resp.StatusCode)
	}

	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("quote parse failed for %s: %w", symbol, err)
	}
	// header row + data row; columns: Symbol,Date,Time,Open,High,Low,Close,Volume
	if len(rows) < 2 || len(rows[1]) < 8 {
		return nil, nil
	}
	cols := rows[1]

	q := &Quote{
		Symbol: strings.ToUpper(strings.TrimSpace(cols[0])),
		Label:  label,
		Open:   parseNum(cols[3]),
		High:   parseNum(cols[4]),
		Low:    parseNum(cols[5]),
		Close:  parseNum(cols[6]),
		Volume: parseNum(cols[7]),
		Date:   strings.TrimSpace(cols[1]),
	}
	if q.Symbol == "" {
		q.Symbol = strings.ToUpper(symbol)
	}
	if q.Close <= 0 {
		return nil, nil
	}
	return q, nil
}

// Overview fetches the full ETF basket concurrently. Symbols that fail or
// come back empty are dropped; the overview degrades instead of erroring.
func (c *Client) Overview(ctx context.Context) []Quote {
	results := make([]*Quote, len(OverviewSymbols))
	var wg sync.WaitGroup
	for i, s := range OverviewSymbols {
		wg.Add(1)
		go func(i int, s OverviewSymbol) {
			defer wg.Done()
			q, err := c.Quote(ctx, s.Symbol, s.Label)
			if err != nil {
				return
			}
			results[i] = q
		}(i, s)
	}
	wg.Wait()

	out := make([]Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out
}

func parseNum(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
