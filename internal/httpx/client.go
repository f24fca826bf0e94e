package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	schederr "github.com/ggonzalez94/agent-sched/internal/errors"
)

// Client is a retrying JSON HTTP client shared by discovery and any other
// HTTP collaborators. Retries cover transport failures, 429 and 5xx.
type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  "agentsched/1.0",
	}
}

func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, schederr.Wrap(schederr.CodeUnavailable, "request cancelled", ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}

		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, schederr.Wrap(schederr.CodeInternal, "clone request body", err)
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			lastErr = mapNetError(err)
			if attempt < c.retries {
				continue
			}
			return nil, lastErr
		}

		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return resp.Header, schederr.Wrap(schederr.CodeUnavailable, "read provider response", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = schederr.New(schederr.CodeRateLimited, "provider rate limited request")
			if attempt < c.retries {
				continue
			}
			return resp.Header, lastErr
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return resp.Header, schederr.New(schederr.CodeAuth, "provider authentication failed")
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = schederr.New(schederr.CodeUnavailable, fmt.Sprintf("provider unavailable (status %d)", resp.StatusCode))
			if attempt < c.retries {
				continue
			}
			return resp.Header, lastErr
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp.Header, schederr.New(schederr.CodeUnsupported, fmt.Sprintf("provider returned unexpected status %d", resp.StatusCode))
		}

		if out == nil {
			return resp.Header, nil
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			return resp.Header, schederr.New(schederr.CodeUnavailable, "provider returned empty response")
		}
		if err := json.Unmarshal(buf, out); err != nil {
			return resp.Header, schederr.Wrap(schederr.CodeUnavailable, "decode provider JSON", err)
		}
		return resp.Header, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, schederr.New(schederr.CodeUnavailable, "request failed")
}

// GetJSON issues a GET with optional headers and decodes the response body.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, schederr.Wrap(schederr.CodeInternal, "build request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok {
		if nerr.Timeout() {
			return schederr.Wrap(schederr.CodeUnavailable, "provider timeout", err)
		}
	}
	return schederr.Wrap(schederr.CodeUnavailable, "provider request failed", err)
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
