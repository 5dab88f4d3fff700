// Package remote provides an HTTP client for the remote collection service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/wesm/mailsaver/internal/errs"
	"github.com/wesm/mailsaver/internal/model"
	"github.com/wesm/mailsaver/internal/session"
)

// Client provides access to a remote collection service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Config holds configuration for creating a remote client.
type Config struct {
	URL           string
	AllowInsecure bool
	Timeout       time.Duration
	QPS           float64 // 0 disables client-side throttling
}

// New creates a new remote client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Enforce HTTPS unless AllowInsecure is set
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure {
		return nil, fmt.Errorf("HTTPS required for remote connections\n\n" +
			"Options:\n" +
			"  1. Use HTTPS: [remote] url = \"https://saver:8080\"\n" +
			"  2. For trusted networks: add 'allow_insecure = true' to [remote] in config.toml")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("remote URL must include a host (e.g., http://saver:8080)")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	if cfg.QPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	return c, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// doRequest performs an HTTP request, attaching the bearer token of the
// session in ctx when there is one.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s, ok := session.FromContext(ctx); ok && s.Token != "" {
		tok := &oauth2.Token{AccessToken: s.Token, TokenType: "Bearer", Expiry: s.ExpiresAt}
		tok.SetAuthHeader(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logger.Debug("remote request", "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// call performs a request and decodes a 2xx JSON body into out. Other
// statuses become remote-unavailable errors, except where mapStatus
// returns a more specific one.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any, mapStatus func(int, ErrorResponse) error) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return errs.Remote(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := readErrorResponse(resp)
		if mapStatus != nil {
			if err := mapStatus(resp.StatusCode, apiErr); err != nil {
				return err
			}
		}
		return errs.Remote(op, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if !isDecodeError(err) {
			return errs.Remote(op, fmt.Errorf("read response: %w", err))
		}
		c.logger.Debug("undecodable response", "op", op, "error", err)
		return errs.Malformed(op, "body")
	}
	return nil
}

// isDecodeError reports whether err came from the body's content rather
// than from reading it.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF)
}

// checkItems rejects a list that is absent or holds null or id-less items.
func checkItems(op string, items *[]*model.Item) ([]*model.Item, error) {
	if items == nil {
		return nil, errs.Malformed(op, "items")
	}
	for _, it := range *items {
		if it == nil || it.ID == "" {
			return nil, errs.Malformed(op, "items")
		}
	}
	return *items, nil
}

// readErrorResponse reads an error body. A body that is not the JSON error
// shape is carried verbatim as the message.
func readErrorResponse(resp *http.Response) ErrorResponse {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr
	}
	return ErrorResponse{Message: strings.TrimSpace(string(body))}
}

// Create stores item under the authenticated user and returns its storage key.
func (c *Client) Create(ctx context.Context, item *model.Item) (string, error) {
	var cr CreateResponse
	if err := c.call(ctx, "create", http.MethodPost, "/api/v1/items", item, &cr, nil); err != nil {
		return "", err
	}
	if cr.ID == nil || *cr.ID == "" {
		return "", errs.Malformed("create", "id")
	}
	return *cr.ID, nil
}

// QueryByField returns every item of the authenticated user whose field
// equals value.
func (c *Client) QueryByField(ctx context.Context, field, value string) ([]*model.Item, error) {
	q := url.Values{"field": {field}, "value": {value}}
	var ir ItemsResponse
	if err := c.call(ctx, "queryByField", http.MethodGet, "/api/v1/items?"+q.Encode(), nil, &ir, nil); err != nil {
		return nil, err
	}
	return checkItems("queryByField", ir.Items)
}

// DeleteByKey deletes the item stored under key.
func (c *Client) DeleteByKey(ctx context.Context, key string) (string, error) {
	var dr DeleteResponse
	if err := c.call(ctx, "deleteByKey", http.MethodDelete, "/api/v1/items/"+url.PathEscape(key), nil, &dr, nil); err != nil {
		return "", err
	}
	if dr.Status == nil {
		return "", errs.Malformed("deleteByKey", "status")
	}
	return *dr.Status, nil
}

// CountByField counts the authenticated user's items whose field equals value.
func (c *Client) CountByField(ctx context.Context, field, value string) (int, error) {
	q := url.Values{"field": {field}, "value": {value}}
	var cr CountResponse
	if err := c.call(ctx, "countByField", http.MethodGet, "/api/v1/items/count?"+q.Encode(), nil, &cr, nil); err != nil {
		return 0, err
	}
	if cr.Count == nil {
		return 0, errs.Malformed("countByField", "count")
	}
	return *cr.Count, nil
}

// SearchQuery describes a remote search.
type SearchQuery struct {
	Key    string
	Engine model.Engine
	Limit  int
}

// Search looks up addresses matching the query.
func (c *Client) Search(ctx context.Context, sq SearchQuery) ([]*model.Item, error) {
	q := url.Values{
		"q":      {sq.Key},
		"engine": {sq.Engine.String()},
		"limit":  {strconv.Itoa(sq.Limit)},
	}
	var ir ItemsResponse
	if err := c.call(ctx, "search", http.MethodGet, "/api/v1/search?"+q.Encode(), nil, &ir, nil); err != nil {
		return nil, err
	}
	return checkItems("search", ir.Items)
}

// AuthResult is the identity returned by register and login.
type AuthResult struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "register", email, password, func(status int, e ErrorResponse) error {
		if status == http.StatusConflict || e.Error == CodeEmailTaken {
			return errs.Auth(errs.AuthEmailTaken, fmt.Errorf("register %s: %s", email, e.Message))
		}
		return nil
	})
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "login", email, password, func(status int, e ErrorResponse) error {
		if status == http.StatusUnauthorized || e.Error == CodeInvalidCredentials {
			return errs.Auth(errs.AuthInvalidCredentials, fmt.Errorf("login %s: %s", email, e.Message))
		}
		return nil
	})
}

func (c *Client) authenticate(ctx context.Context, op, email, password string, mapStatus func(int, ErrorResponse) error) (*AuthResult, error) {
	var ar AuthResponse
	body := CredentialsRequest{Email: email, Password: password}
	if err := c.call(ctx, op, http.MethodPost, "/api/v1/auth/"+op, body, &ar, mapStatus); err != nil {
		return nil, err
	}
	var missing []string
	if ar.UserID == nil || *ar.UserID == "" {
		missing = append(missing, "user_id")
	}
	if ar.Token == nil || *ar.Token == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return nil, errs.Malformed(op, missing...)
	}
	res := &AuthResult{UserID: *ar.UserID, Token: *ar.Token}
	if ar.ExpiresAt != nil {
		res.ExpiresAt = *ar.ExpiresAt
	}
	return res, nil
}
