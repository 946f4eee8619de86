// Package freesound searches the Freesound catalogue for sound effects.
package freesound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://freesound.org/apiv2"
	pageSize       = 10
	resultFields   = "id,name,previews,duration,username"
)

var ErrMissingAPIKey = errors.New("freesound API key missing")

// APIError is a non-2xx answer from the search endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("freesound search failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the failure was on the server side.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type Previews struct {
	HQMP3 string `json:"preview-hq-mp3"`
	LQMP3 string `json:"preview-lq-mp3"`
}

// Result is one search hit.
type Result struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Previews Previews `json:"previews"`
	Duration float64  `json:"duration"`
	Username string   `json:"username"`
}

type searchResponse struct {
	Count   int      `json:"count"`
	Results []Result `json:"results"`
}

// Searcher is the search collaborator used by the soundboard.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// Search runs a text search and returns only hits that carry a
// high-quality MP3 preview.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("page_size", fmt.Sprint(pageSize))
	params.Set("fields", resultFields)
	params.Set("token", c.apiKey)
	endpoint := c.baseURL + "/search/text/?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var data searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, len(data.Results))
	for _, r := range data.Results {
		if r.Previews.HQMP3 == "" {
			continue
		}
		results = append(results, r)
	}

	c.logger.Info("freesound search",
		"query", query,
		"results", len(results),
		"dropped", len(data.Results)-len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}
