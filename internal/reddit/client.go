// Package reddit implements the upstream data-source client: OAuth2
// password-grant authentication, latest-post listing, and subreddit search.
//
// Every outbound request acquires a permit from the shared rate limiter
// first. Failures surface as *APIError (structured upstream payloads) or
// wrapped sentinels; callers run them through Classify to decide the
// user-facing consequence. The client never retries.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/subfeed/subfeed/internal/apierr"
	"github.com/subfeed/subfeed/internal/ratelimit"
)

const (
	// defaultAuthURL hosts the OAuth2 token endpoint.
	defaultAuthURL = "https://www.reddit.com"

	// defaultBaseURL hosts the authenticated API.
	defaultBaseURL = "https://oauth.reddit.com"

	// defaultUserAgent identifies this client to the upstream API, which
	// rejects requests without a descriptive agent string.
	defaultUserAgent = "golang:subfeed:v0.1.0"

	// defaultPacing is the artificial delay between successive items within
	// a batch, smoothing burst load beyond the token bucket.
	defaultPacing = 100 * time.Millisecond

	// defaultHTTPTimeout bounds a single upstream request.
	defaultHTTPTimeout = 30 * time.Second

	// maxResponseSize limits response reads to prevent OOM from malformed
	// responses.
	maxResponseSize = 10 << 20 // 10 MB
)

// Credentials holds the upstream API credentials, sourced from the
// environment.
type Credentials struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	Username     string
	Password     string
}

// Missing returns the names of required credential fields that are unset.
// UserAgent is optional (a default is applied).
func (c Credentials) Missing() []string {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	return missing
}

// Post carries the raw upstream fields of a single submission.
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	CreatedUTC  float64 `json:"created_utc"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	IsSelf      bool    `json:"is_self"`
	Selftext    string  `json:"selftext"`
	Thumbnail   string  `json:"thumbnail"`
	NumComments int     `json:"num_comments"`
}

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is an authenticated session against the upstream API.
// Not safe for concurrent use before Authenticate has returned; afterwards
// all methods only read client state and may be called concurrently.
type Client struct {
	creds      Credentials
	limiter    *ratelimit.Limiter
	authURL    string
	baseURL    string
	userAgent  string
	pacing     time.Duration
	httpClient httpDoer

	token    string
	username string
}

// Option configures a Client.
type Option func(*Client)

// WithAuthURL overrides the token endpoint host (for testing).
func WithAuthURL(u string) Option {
	return func(c *Client) {
		c.authURL = strings.TrimSuffix(u, "/")
	}
}

// WithBaseURL overrides the API host (for testing or proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(d httpDoer) Option {
	return func(c *Client) {
		c.httpClient = d
	}
}

// WithPacing sets the delay between successive items within a batch.
// Zero disables pacing.
func WithPacing(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.pacing = d
		}
	}
}

// New creates a Client. The limiter is required: every request path acquires
// a permit from it before touching the network.
func New(creds Credentials, limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		creds:     creds,
		limiter:   limiter,
		authURL:   defaultAuthURL,
		baseURL:   defaultBaseURL,
		userAgent: creds.UserAgent,
		pacing:    defaultPacing,
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return c
}

// tokenResponse is the OAuth2 token endpoint success payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// Authenticate performs the OAuth2 password grant and verifies the session
// with an identity call. Authentication failures wrap apierr.ErrAuthFailed
// and classify as fatal in CLI mode.
func (c *Client) Authenticate(ctx context.Context) error {
	if missing := c.creds.Missing(); len(missing) > 0 {
		return fmt.Errorf("missing credentials (%s): %w",
			strings.Join(missing, ", "), apierr.ErrAuthFailed)
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	body, statusCode, _, err := c.do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return fmt.Errorf("token endpoint rejected credentials (HTTP %d): %w",
			statusCode, apierr.ErrAuthFailed)
	}
	if statusCode != http.StatusOK {
		return parseAPIError(statusCode, http.Header{}, body)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}
	// The token endpoint reports bad credentials as HTTP 200 with an error
	// field ("invalid_grant").
	if tok.Error != "" || tok.AccessToken == "" {
		return fmt.Errorf("token grant refused (%s): %w", tok.Error, apierr.ErrAuthFailed)
	}
	c.token = tok.AccessToken

	// Double-check that the session actually works.
	var me struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, "/api/v1/me", nil, &me); err != nil {
		return fmt.Errorf("identity check failed: %w", err)
	}
	c.username = me.Name
	return nil
}

// Username returns the authenticated account name, empty before
// Authenticate succeeds.
func (c *Client) Username() string { return c.username }

// listing is the upstream wrapper around a page of things.
type listing struct {
	Data struct {
		Children []struct {
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// LatestPosts fetches the newest posts of a subreddit, in upstream order.
// A fixed pacing delay separates consecutive items.
func (c *Client) LatestPosts(ctx context.Context, subreddit string, limit int) ([]Post, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(limit))

	var page listing
	path := fmt.Sprintf("/r/%s/new", url.PathEscape(subreddit))
	if err := c.getJSON(ctx, path, query, &page); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(page.Data.Children))
	for i, child := range page.Data.Children {
		var post Post
		if err := json.Unmarshal(child.Data, &post); err != nil {
			return nil, fmt.Errorf("failed to parse post %d: %w", i, err)
		}
		posts = append(posts, post)

		if c.pacing > 0 && i < len(page.Data.Children)-1 {
			if err := sleepCtx(ctx, c.pacing); err != nil {
				return nil, err
			}
		}
	}
	return posts, nil
}

// SearchSubreddits returns display names of subreddits matching query.
func (c *Client) SearchSubreddits(ctx context.Context, query string, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", fmt.Sprint(limit))

	var page listing
	if err := c.getJSON(ctx, "/subreddits/search", q, &page); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(page.Data.Children))
	for _, child := range page.Data.Children {
		var sub struct {
			DisplayName string `json:"display_name"`
		}
		if err := json.Unmarshal(child.Data, &sub); err != nil {
			continue
		}
		if sub.DisplayName != "" {
			names = append(names, sub.DisplayName)
		}
	}
	return names, nil
}

// Close releases idle transport connections. The session token is ephemeral
// and needs no revocation.
func (c *Client) Close() error {
	if hc, ok := c.httpClient.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
	return nil
}

// getJSON performs an authenticated GET, acquiring a rate-limit permit
// first, and decodes the 2xx response body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if c.token == "" {
		return ErrNotAuthenticated
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)

	body, statusCode, header, err := c.do(req)
	if err != nil {
		return err
	}
	if statusCode < 200 || statusCode > 299 {
		return parseAPIError(statusCode, header, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// do executes the request and reads a size-limited body.
func (c *Client) do(req *http.Request) (_ []byte, statusCode int, header http.Header, err error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, resp.Header, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
