package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/kinsync/internal/common"
	"github.com/dmitrijs2005/kinsync/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 16 << 20

// Request describes one provider API call.
type Request struct {
	Method string
	URL    string
	Token  string
	// Body is encoded as JSON when non-nil.
	Body   any
	Header http.Header
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

// HTTPClient calls provider APIs under a token-bucket rate limit and retries
// throttled, 5xx and transport failures with exponential backoff.
type HTTPClient struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	baseDelay  time.Duration
	log        logging.Logger
}

// NewHTTPClient wraps c (http.DefaultClient when nil). rps <= 0 disables
// rate limiting.
func NewHTTPClient(c *http.Client, rps float64, burst int, log logging.Logger) *HTTPClient {
	if c == nil {
		c = http.DefaultClient
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &HTTPClient{
		client:     c,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		log:        log,
	}
}

// WithRetry overrides the retry policy.
func (c *HTTPClient) WithRetry(maxRetries uint64, base time.Duration) *HTTPClient {
	c.maxRetries = maxRetries
	c.baseDelay = base
	return c
}

// Do sends req and returns the response body. 401/403 wrap
// common.ErrCredentials; every other failure wraps common.ErrProvider.
func (c *HTTPClient) Do(ctx context.Context, req Request) ([]byte, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("%w: encode request: %v", common.ErrProvider, err)
		}
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.WithJitterPercent(20, retry.NewExponential(c.baseDelay)))

	var body []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		b, err := c.once(ctx, req, payload)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !retryableStatus(se.Status) {
				return err
			}
			c.log.Debug(ctx, "provider call failed, retrying", "url", req.URL, "error", err)
			return retry.RetryableError(err)
		}
		body = b
		return nil
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %w", common.ErrCredentials, err)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", common.ErrProvider, req.Method, req.URL, err)
	}
	return body, nil
}

func (c *HTTPClient) once(ctx context.Context, req Request, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	hr, err := http.NewRequestWithContext(ctx, method, req.URL, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if req.Token != "" {
		hr.Header.Set("Authorization", "Bearer "+req.Token)
	}
	hr.Header.Set("Accept", "application/json")
	if payload != nil {
		hr.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(b)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: msg}
	}
	return b, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
