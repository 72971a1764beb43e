package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBaseDelay is the first wait after a throttling response.
const DefaultBaseDelay = 10 * time.Second

// StatusError is returned for any non-success, non-throttle response. These
// are never retried: throttling is recoverable, other failures usually mean
// an integration bug that retrying would only hide.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

var errThrottled = errors.New("throttled")

// Client wraps an *http.Client with throttle-aware retries. All outbound
// platform traffic goes through one Client.
type Client struct {
	http      *http.Client
	baseDelay time.Duration
}

func New(baseDelay time.Duration) *Client {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseDelay: baseDelay,
	}
}

// Do sends the request. While the server answers 429 it waits and retries,
// doubling the wait each consecutive throttle, without an attempt limit. Any
// other non-2xx status or transport error fails immediately. The caller owns
// the returned body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	op := func() (*http.Response, error) {
		attempt := req
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			attempt = req.Clone(req.Context())
			attempt.Body = body
		}

		resp, err := c.http.Do(attempt)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, errThrottled
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, backoff.Permanent(&StatusError{
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			})
		}
		return resp, nil
	}

	policy := backoff.WithContext(ThrottlePolicy(c.baseDelay), req.Context())
	return backoff.RetryWithData(op, policy)
}

// ThrottlePolicy doubles the wait after every consecutive throttle, starting
// at base. No randomization and no elapsed-time cutoff: delays grow strictly
// as base, 2*base, 4*base, ...
func ThrottlePolicy(base time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 24 * time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
