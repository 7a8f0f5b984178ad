// Package client is the Go SDK for the AgriBot NLU HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
	"github.com/turtacn/AgriBot-NLU/pkg/types/nlu"
)

const Version = "0.1.0"

// apiPrefix is the mount point of the versioned API.
const apiPrefix = "/api/v1"

// Logger defines the logging interface used by the Client
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger is a no-op implementation of Logger
type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client is the AgriBot NLU SDK client
type Client struct {
	baseURL      string
	httpClient   *http.Client
	apiKey       string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	maxTextRunes int
	headers      http.Header

	ner        *NERClient
	nerOnce    sync.Once
	intent     *IntentClient
	intentOnce sync.Once
}

// NewClient creates a new AgriBot NLU SDK client. apiKey may be empty when
// the server runs without authentication.
func NewClient(baseURL string, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "baseURL is required")
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid baseURL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, errors.New(errors.ErrCodeValidation, "baseURL scheme must be http or https").WithDetail(baseURL)
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    fmt.Sprintf("agrinlu-go-sdk/%s", Version),
		logger:       &noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NER returns the entity extraction sub-client (lazy initialization, thread-safe)
func (c *Client) NER() *NERClient {
	c.nerOnce.Do(func() {
		c.ner = &NERClient{client: c}
	})
	return c.ner
}

// Intent returns the intent and analysis sub-client (lazy initialization, thread-safe)
func (c *Client) Intent() *IntentClient {
	c.intentOnce.Do(func() {
		c.intent = &IntentClient{client: c}
	})
	return c.intent
}

// Liveness calls GET /healthz.
func (c *Client) Liveness(ctx context.Context) (*nlu.Liveness, error) {
	var out nlu.Liveness
	if err := c.get(ctx, "/healthz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readiness calls GET /readyz. A 503 answer is not an error: the report
// is returned with Ready() false.
func (c *Client) Readiness(ctx context.Context) (*nlu.Readiness, error) {
	var out nlu.Readiness
	if err := c.send(ctx, http.MethodGet, "/readyz", nil, &out, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one API call and decodes a 2xx body into result.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	return c.send(ctx, method, path, body, result)
}

// reply is one HTTP exchange, read to the end.
type reply struct {
	status     int
	retryAfter time.Duration
	body       []byte
	requestID  string
}

// send is do with extra statuses whose body decodes into result. Network
// failures and 5xx answers other than 501 are retried with backoff; a 429
// carrying Retry-After waits that long and is retried.
func (c *Client) send(ctx context.Context, method, path string, body interface{}, result interface{}, accept ...int) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("agrinlu: encode request: %w", err)
		}
		payload = b
	}

	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			if wait == 0 {
				wait = c.calculateBackoff(attempt)
			}
			c.logger.Debugf("retry %d of %s %s in %v", attempt, method, path, wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
		wait = 0

		rep, err := c.exchange(ctx, method, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("%s %s: %v", method, path, err)
			lastErr = err
			continue
		}

		switch {
		case rep.status < 400 || slices.Contains(accept, rep.status):
			if result != nil && len(rep.body) > 0 {
				if err := json.Unmarshal(rep.body, result); err != nil {
					return fmt.Errorf("agrinlu: decode response: %w", err)
				}
			}
			return nil
		case rep.status == http.StatusTooManyRequests && rep.retryAfter > 0 && attempt < c.retryMax:
			c.logger.Infof("rate limited, retrying after %v", rep.retryAfter)
			wait = rep.retryAfter
			lastErr = newAPIError(rep)
		case rep.status >= 500 && rep.status != http.StatusNotImplemented:
			lastErr = newAPIError(rep)
		default:
			return newAPIError(rep)
		}
	}
	return lastErr
}

// exchange performs a single request.
func (c *Client) exchange(ctx context.Context, method, path string, payload []byte) (*reply, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("agrinlu: build request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rep := &reply{requestID: uuid.NewString()}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", rep.requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

	rep.status = resp.StatusCode
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		rep.retryAfter = time.Duration(secs) * time.Second
	}
	if rep.body, err = io.ReadAll(resp.Body); err != nil {
		return nil, fmt.Errorf("agrinlu: read response: %w", err)
	}
	return rep, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// calculateBackoff doubles retryWaitMin per attempt up to retryWaitMax and
// adds up to 25% jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax || backoff <= 0 {
		backoff = c.retryWaitMax
	}
	if quarter := int64(backoff / 4); quarter > 0 {
		backoff += time.Duration(rand.Int63n(quarter))
	}
	return backoff
}

//Personal.AI order the ending
