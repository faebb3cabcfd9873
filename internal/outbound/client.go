// Package outbound performs JSON calls to external collaborators with
// per-attempt timeouts and exponential backoff.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultMaxElapsed = 15 * time.Second
	defaultInitial    = 200 * time.Millisecond
)

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// Client retries transport failures, 429 and 5xx responses. Other 4xx
// responses are returned immediately.
type Client struct {
	HTTP            *http.Client
	Timeout         time.Duration
	MaxElapsed      time.Duration
	InitialInterval time.Duration
}

// New returns a client whose attempts time out after timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{HTTP: &http.Client{}, Timeout: timeout, MaxElapsed: DefaultMaxElapsed}
}

func (c *Client) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitial
	if c.InitialInterval > 0 {
		bo.InitialInterval = c.InitialInterval
	}
	bo.MaxElapsedTime = DefaultMaxElapsed
	if c.MaxElapsed > 0 {
		bo.MaxElapsedTime = c.MaxElapsed
	}
	return bo
}

// Do sends in (JSON-encoded when non-nil) and decodes the response into
// out when non-nil.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, in, out any) error {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = data
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(attemptCtx, method, url, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		res, err := httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			serr := &StatusError{Status: res.StatusCode, Body: strings.TrimSpace(string(raw))}
			if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, res.Body)
			return nil
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	return backoff.Retry(attempt, backoff.WithContext(c.newBackoff(), ctx))
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Status == code
}
