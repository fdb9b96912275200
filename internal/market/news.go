package market

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Headline is one RSS item from the news feed.
type Headline struct {
	Title   string `json:"title"`
	Source  string `json:"source,omitempty"`
	PubDate string `json:"pubDate,omitempty"`
	Link    string `json:"link,omitempty"`
}

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Source  string `xml:"source"`
}

// News fetches recent ticker headlines from the Google News RSS search feed.
func (c *Client) News(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.QueryEscape(symbol + " stock")
	u := fmt.Sprintf("%s/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en", c.newsBaseURL, q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	// some feeds reject default Go user agents
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("news fetch failed for %s (%d)", symbol, resp.StatusCode)
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("news parse failed for %s: %w", symbol, err)
	}

	headlines := make([]Headline, 0, limit)
	for _, item := range rss.Channel.Items {
		if len(headlines) >= limit {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		// Google News suffixes titles with " - Publisher"
		if idx := strings.LastIndex(title, " - "); idx > 0 {
			title = title[:idx]
		}
		headlines = append(headlines, Headline{
			Title:   title,
			Source:  strings.TrimSpace(item.Source),
			PubDate: strings.TrimSpace(item.PubDate),
			Link:    strings.TrimSpace(item.Link),
		})
	}
	return headlines, nil
}
