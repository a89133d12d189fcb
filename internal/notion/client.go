package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://api.notion.com"
	DefaultAPIVersion = "2022-06-28"
	queryPageSize     = 100
)

// ClientOptions configures a Client. Zero values fall back to defaults.
type ClientOptions struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	APIVersion string
	UserAgent  string
	// MaxRetries applies to read calls only; writes are always a single request.
	// Zero means the default, negative disables retries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client talks to the page/database service on behalf of one credential.
// It is built per run or per request and never shared across users.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	apiVersion string
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// APIError is a non-2xx reply from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion request failed: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notion request failed: status=%d message=%s", e.Status, e.Message)
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	maxRetries := opts.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = 3
	case maxRetries < 0:
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		apiVersion: apiVersion,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// RetrieveDatabase returns a database with its property schema.
func (c *Client) RetrieveDatabase(ctx context.Context, databaseID string) (*Database, error) {
	var out Database
	if err := c.do(ctx, http.MethodGet, "/v1/databases/"+url.PathEscape(databaseID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryDatabase returns one page of rows. An empty cursor starts from the beginning.
func (c *Client) QueryDatabase(ctx context.Context, databaseID, cursor string) (*QueryResult, error) {
	body := map[string]any{"page_size": queryPageSize}
	if cursor != "" {
		body["start_cursor"] = cursor
	}
	var out QueryResult
	if err := c.do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(databaseID)+"/query", body, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePage adds a row to a database.
func (c *Client) CreatePage(ctx context.Context, databaseID string, props Properties) (*Page, error) {
	body := map[string]any{
		"parent":     Parent{DatabaseID: databaseID},
		"properties": props,
	}
	var out Page
	if err := c.do(ctx, http.MethodPost, "/v1/pages", body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePage patches a page's properties or archived flag.
func (c *Client) UpdatePage(ctx context.Context, pageID string, update PageUpdate) (*Page, error) {
	var out Page
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(pageID), update, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

type SearchFilter struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

type SearchSort struct {
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

type SearchRequest struct {
	Filter      *SearchFilter `json:"filter,omitempty"`
	Sort        *SearchSort   `json:"sort,omitempty"`
	StartCursor string        `json:"start_cursor,omitempty"`
	PageSize    int           `json:"page_size,omitempty"`
}

// Search lists pages or databases shared with the credential.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.PageSize == 0 {
		req.PageSize = queryPageSize
	}
	var out SearchResult
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockChildren returns one page of a block's children.
func (c *Client) BlockChildren(ctx context.Context, blockID, cursor string) (*BlockChildren, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(queryPageSize))
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}
	var out BlockChildren
	path := "/v1/blocks/" + url.PathEscape(blockID) + "/children?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user (usually a bot) behind the credential.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/v1/users/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, dst any, retry bool) error {
	if c == nil {
		return fmt.Errorf("notion client is nil")
	}
	if c.token == "" {
		return fmt.Errorf("notion token is empty")
	}
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}
	maxRetries := c.maxRetries
	if !retry {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.apiVersion)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if dst == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, dst); err != nil {
				return fmt.Errorf("decode notion response: %w", err)
			}
			return nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}
		return parseAPIError(resp.StatusCode, respBody)
	}
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status:  status,
		Message: strings.TrimSpace(string(body)),
		Body:    string(body),
	}
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		if code, ok := parsed["code"].(string); ok {
			apiErr.Code = code
		}
		if message, ok := parsed["message"].(string); ok && strings.TrimSpace(message) != "" {
			apiErr.Message = message
		}
	}
	return apiErr
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
