package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rolodexhq/rolodex/internal/contact"
)

type ClientOptions struct {
	APIKey         string
	DatabaseID     string
	BaseURL        string
	HTTPClient     *http.Client
	APIVersion     string
	UserAgent      string
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxConcurrency int
	PageSize       int
	Logger         *zap.Logger
}

// Client speaks to the directory's REST API. It is the sole owner of that
// boundary: it serializes outbound calls behind a small concurrency cap and
// backs off on 429/5xx, respecting Retry-After. Creates are never retried
// automatically; a duplicate remote record is worse than a failed request.
type Client struct {
	apiKey     string
	databaseID string
	baseURL    string
	httpClient *http.Client
	apiVersion string
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	pageSize   int
	sem        chan struct{}
	logger     *zap.Logger
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2022-06-28"
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		databaseID: strings.TrimSpace(opts.DatabaseID),
		baseURL:    baseURL,
		httpClient: httpClient,
		apiVersion: apiVersion,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		pageSize:   pageSize,
		sem:        make(chan struct{}, maxConcurrency),
		logger:     logger,
	}
}

// configured distinguishes a setup problem from a transient outage so
// callers can tell the two apart.
func (c *Client) configured() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: missing API key", contact.ErrNotConfigured)
	}
	if c.databaseID == "" {
		return fmt.Errorf("%w: missing database id", contact.ErrNotConfigured)
	}
	return nil
}

type queryResponse struct {
	Results    []json.RawMessage `json:"results"`
	HasMore    bool              `json:"has_more"`
	NextCursor *string           `json:"next_cursor"`
}

func (c *Client) FetchAll(ctx context.Context) ([]contact.Contact, []string, error) {
	if err := c.configured(); err != nil {
		return nil, nil, err
	}
	var (
		contacts []contact.Contact
		warnings []string
		cursor   string
	)
	for {
		body := map[string]any{"page_size": c.pageSize}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		var resp queryResponse
		if err := c.doJSON(ctx, http.MethodPost, "/v1/databases/"+c.databaseID+"/query", body, &resp, true); err != nil {
			return nil, nil, err
		}
		for _, raw := range resp.Results {
			var pg page
			if err := json.Unmarshal(raw, &pg); err != nil {
				warning := fmt.Sprintf("undecodable record skipped: %v", err)
				warnings = append(warnings, warning)
				c.logger.Warn("skipping undecodable directory record", zap.Error(err))
				continue
			}
			decoded, err := decodePage(pg)
			if err != nil {
				warnings = append(warnings, err.Error())
				c.logger.Warn("skipping directory record",
					zap.String("record_id", pg.ID),
					zap.Error(err))
				continue
			}
			contacts = append(contacts, decoded)
		}
		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		cursor = *resp.NextCursor
	}
	return contacts, warnings, nil
}

func (c *Client) FetchOne(ctx context.Context, id string) (contact.Contact, error) {
	if err := c.configured(); err != nil {
		return contact.Contact{}, err
	}
	var pg page
	if err := c.doJSON(ctx, http.MethodGet, "/v1/pages/"+id, nil, &pg, true); err != nil {
		return contact.Contact{}, err
	}
	return decodePage(pg)
}

func (c *Client) Create(ctx context.Context, in contact.Contact) (contact.Contact, error) {
	if err := c.configured(); err != nil {
		return contact.Contact{}, err
	}
	body := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": encodeContact(in),
	}
	var pg page
	if err := c.doJSON(ctx, http.MethodPost, "/v1/pages", body, &pg, false); err != nil {
		return contact.Contact{}, err
	}
	return decodePage(pg)
}

func (c *Client) Update(ctx context.Context, id string, p contact.Patch) (contact.Contact, error) {
	if err := c.configured(); err != nil {
		return contact.Contact{}, err
	}
	props := encodePatch(p)
	if len(props) == 0 {
		return contact.Contact{}, fmt.Errorf("%w: empty patch", contact.ErrInvalidInput)
	}
	body := map[string]any{"properties": props}
	var pg page
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/pages/"+id, body, &pg, true); err != nil {
		return contact.Contact{}, err
	}
	return decodePage(pg)
}

func (c *Client) Archive(ctx context.Context, id, reason string, at time.Time) error {
	if err := c.configured(); err != nil {
		return err
	}
	body := map[string]any{
		"archived": true,
		"properties": map[string]any{
			propArchivedDate:   dateProp(at.Truncate(24 * time.Hour)),
			propArchivedReason: richTextProp(reason),
		},
	}
	return c.doJSON(ctx, http.MethodPatch, "/v1/pages/"+id, body, nil, true)
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.configured(); err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodGet, "/v1/databases/"+c.databaseID, nil, nil, true)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, retryable bool) error {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", contact.ErrDirectoryUnavailable, ctx.Err())
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	maxAttempts := 1
	if retryable {
		maxAttempts = c.maxRetries + 1
	}
	url := c.baseURL + path

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Notion-Version", c.apiVersion)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < maxAttempts-1 {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return fmt.Errorf("%w: %v", contact.ErrDirectoryUnavailable, waitErr)
				}
				continue
			}
			return fmt.Errorf("%w: %v", contact.ErrDirectoryUnavailable, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("%w: %v", contact.ErrDirectoryUnavailable, readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil {
				return nil
			}
			return json.Unmarshal(respBody, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < maxAttempts-1 {
			delay := c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))
			c.logger.Warn("directory request throttled, backing off",
				zap.Int("status", resp.StatusCode),
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1))
			if waitErr := sleepContext(ctx, delay); waitErr != nil {
				return fmt.Errorf("%w: %v", contact.ErrDirectoryUnavailable, waitErr)
			}
			continue
		}

		return c.mapStatusError(resp.StatusCode, respBody)
	}
}

func (c *Client) mapStatusError(status int, body []byte) error {
	var parsed apiError
	_ = json.Unmarshal(body, &parsed)
	message := parsed.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	switch {
	case status == http.StatusNotFound:
		return contact.ErrNotFound
	case status == http.StatusBadRequest && parsed.Code == "validation_error":
		return &contact.SchemaError{Field: "properties", Detail: message}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: auth rejected (%s)", contact.ErrDirectoryUnavailable, message)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status=%d message=%s", contact.ErrDirectoryUnavailable, status, message)
	default:
		return fmt.Errorf("directory request failed: status=%d code=%s message=%s", status, parsed.Code, message)
	}
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

var _ contact.Directory = (*Client)(nil)
