package search

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JackeyWin/stock_go_server/internal/pkg/rotator"
)

const defaultBaseURL = "https://api.tavily.com"

// Tavily 的限流响应码：标准 429 或其自定义的 432（配额用尽）
func isRateLimited(status int) bool {
	return status == http.StatusTooManyRequests || status == 432
}

type Client struct {
	http    *resty.Client
	rotator *rotator.Rotator
}

type Request struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Topic      string `json:"topic,omitempty"`
}

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type Response struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
}

func NewClient(baseURL string, r *rotator.Rotator) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Client{http: httpClient, rotator: r}
}

// Search 执行联网搜索。遇到限流时切换凭证重试，
// 重试次数以池大小为上限，整池耗尽返回 rotator.ErrExhausted。
func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	attempts := c.rotator.Size()
	if attempts == 0 {
		return nil, rotator.ErrNoCredentials
	}

	var lastStatus int
	for i := 0; i < attempts; i++ {
		key, err := c.rotator.Current()
		if err != nil {
			return nil, err
		}

		var result Response
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(&Request{APIKey: key, Query: query, MaxResults: 5}).
			SetResult(&result).
			Post("/search")
		if err != nil {
			return nil, fmt.Errorf("search request failed: %w", err)
		}

		if isRateLimited(resp.StatusCode()) {
			lastStatus = resp.StatusCode()
			log.Printf("Search key rate limited (status %d), rotating", resp.StatusCode())
			c.rotator.Advance()
			continue
		}

		if resp.IsError() {
			return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode(), resp.String())
		}

		return &result, nil
	}

	return nil, fmt.Errorf("%w (last status %d, %d keys tried)", rotator.ErrExhausted, lastStatus, attempts)
}
