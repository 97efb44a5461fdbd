package tfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Retry and backoff constants.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// Defaults applied by NewClient when no option overrides them.
const (
	DefaultAPIVersion       = "7.1"
	DefaultUserAgent        = "workitems-go/0.1"
	DefaultBatchConcurrency = 4
)

// Authorizer attaches credentials to an outgoing request. Implementations
// live in credentials.go (basic, PAT, bearer).
type Authorizer interface {
	Authorize(req *http.Request) error
}

// Client is an HTTP client for a single project collection.
// It handles request construction, authentication, retry with
// exponential backoff, rate limiting, and error classification.
type Client struct {
	baseURL          string
	apiVersion       string
	userAgent        string
	httpClient       *http.Client
	auth             Authorizer
	logger           *slog.Logger
	limiter          *rate.Limiter // nil means unlimited
	batchConcurrency int

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIVersion sets the api-version query parameter sent on every request.
// Older on-premises servers need e.g. "4.1" or "5.0".
func WithAPIVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}

		burst := max(1, int(math.Ceil(perSecond)))
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBatchConcurrency bounds the number of concurrent workitemsbatch calls.
func WithBatchConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchConcurrency = n
		}
	}
}

// NewClient creates a REST client for the collection at collectionURL,
// e.g. "https://dev.azure.com/contoso" or "http://tfs:8080/tfs/DefaultCollection".
func NewClient(collectionURL string, httpClient *http.Client, auth Authorizer, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:          strings.TrimRight(collectionURL, "/"),
		apiVersion:       DefaultAPIVersion,
		userAgent:        DefaultUserAgent,
		httpClient:       httpClient,
		auth:             auth,
		logger:           logger,
		batchConcurrency: DefaultBatchConcurrency,
		sleepFunc:        timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the collection URL this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes an HTTP request against the collection. path is relative to
// the collection URL (e.g. "_apis/projects" or "Fabrikam/_apis/wit/wiql")
// and api-version is appended to query. For non-nil bodies, Content-Type is
// set to application/json. The caller closes the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Response, error) {
	target := c.buildURL(path, query)

	var attempt int
	for {
		resp, err := c.doOnce(ctx, method, target, body)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("tfs: request canceled: %w", ctx.Err())
			}

			// Network errors are retryable.
			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("tfs: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("tfs: %s %s failed after %d retries: %w", method, path, maxRetries, err)
		}

		// 203 with an HTML body is the sign-in page, not data.
		if isSignInPage(resp) {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining before close
			resp.Body.Close()

			return nil, &Error{
				StatusCode: resp.StatusCode,
				ActivityID: activityID(resp.Header),
				Message:    "credentials rejected (server returned sign-in page)",
				Err:        ErrUnauthorized,
			}
		}

		// 2xx: success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("tfs: request canceled: %w", err)
			}

			attempt++

			continue
		}

		tfsErr := newError(resp, errBody)

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, tfsErr
	}
}

// buildURL joins the collection URL, the relative path, and the query
// string with api-version added.
func (c *Client) buildURL(path string, query url.Values) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}

	q.Set("api-version", c.apiVersion)

	return c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.auth != nil {
		if err := c.auth.Authorize(req); err != nil {
			return nil, fmt.Errorf("authorizing request: %w", err)
		}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// getJSON performs a GET and decodes the JSON response into out.
// Returns the response headers for callers that need continuation tokens.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) (http.Header, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("tfs: decoding %s response: %w", path, err)
	}

	return resp.Header, nil
}

// postJSON encodes in as the request body, performs a POST, and decodes
// the JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, query url.Values, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("tfs: encoding %s request: %w", path, err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, query, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tfs: decoding %s response: %w", path, err)
	}

	return nil
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 and 503 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// projectPath prefixes an _apis path with an escaped project segment.
// An empty project targets the collection.
func projectPath(project, apiPath string) string {
	if project == "" {
		return apiPath
	}

	return url.PathEscape(project) + "/" + apiPath
}
