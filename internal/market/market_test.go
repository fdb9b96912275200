package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterocean/betterocean/api-service/internal/config"
)

const stooqCSV = "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
	"SPY.US,2026-08-28,22:00:11,645.12,648.90,643.55,647.31,51234567\n"

const stooqMissingCSV = "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
	"NOPE.US,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n"

func newTestClient(stooqURL, newsURL string) *Client {
	return NewClient(config.MarketConfig{
		StooqBaseURL: stooqURL,
		NewsBaseURL:  newsURL,
		Timeout:      5 * time.Second,
	})
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/q/l/", r.URL.Path)
		assert.Equal(t, "spy.us", r.URL.Query().Get("s"))
		w.Write([]byte(stooqCSV))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	q, err := c.Quote(context.Background(), "spy.us", "S&P 500 ETF (SPY)")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "SPY.US", q.Symbol)
	assert.Equal(t, "S&P 500 ETF (SPY)", q.Label)
	assert.Equal(t, 645.12, q.Open)
	assert.Equal(t, 647.31, q.Close)
	assert.Equal(t, float64(51234567), q.Volume)
	assert.Equal(t, "2026-08-28", q.Date)
}

func TestQuoteUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(stooqMissingCSV))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	q, err := c.Quote(context.Background(), "nope.us", "Nope")
	require.NoError(t, err)
	assert.Nil(t, q, "N/D rows must be dropped, not surfaced as zero quotes")
}

func TestQuoteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.Quote(context.Background(), "spy.us", "SPY")
	require.Error(t, err)
}

func TestOverviewDropsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// only SPY resolves; everything else errors
		if r.URL.Query().Get("s") == "spy.us" {
			w.Write([]byte(stooqCSV))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	assets := c.Overview(context.Background())
	require.Len(t, assets, 1)
	assert.Equal(t, "SPY.US", assets[0].Symbol)
}

const newsRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<item>
  <title>Apple shares rally ahead of earnings - Example Wire</title>
  <link>https://example.com/a</link>
  <pubDate>Fri, 28 Aug 2026 12:00:00 GMT</pubDate>
  <source url="https://example.com">Example Wire</source>
</item>
<item>
  <title>Second headline - Other Desk</title>
  <link>https://example.com/b</link>
  <pubDate>Fri, 28 Aug 2026 11:00:00 GMT</pubDate>
  <source url="https://example.com">Other Desk</source>
</item>
</channel></rss>`

func TestNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rss/search", r.URL.Path)
		assert.True(t, strings.Contains(r.URL.Query().Get("q"), "AAPL"))
		w.Write([]byte(newsRSS))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	headlines, err := c.News(context.Background(), "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, headlines, 2)
	assert.Equal(t, "Apple shares rally ahead of earnings", headlines[0].Title)
	assert.Equal(t, "Example Wire", headlines[0].Source)
	assert.Equal(t, "https://example.com/a", headlines[0].Link)
}

func TestNewsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(newsRSS))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	headlines, err := c.News(context.Background(), "AAPL", 1)
	require.NoError(t, err)
	require.Len(t, headlines, 1)
}
