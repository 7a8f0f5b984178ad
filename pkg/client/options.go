package client

import (
	"net/http"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithHTTPClient replaces the transport. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each attempt, not the whole retried call; use the
// context for that.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			return
		}
		hc := &http.Client{}
		if c.httpClient != nil {
			*hc = *c.httpClient
		}
		hc.Timeout = d
		c.httpClient = hc
	}
}

func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryMax caps retries after the first attempt. Zero disables them.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}

// WithRetryWait sets the backoff floor and ceiling. The pair is ignored
// unless lo is positive; hi below lo keeps the current ceiling.
func WithRetryWait(lo, hi time.Duration) Option {
	return func(c *Client) {
		if lo <= 0 {
			return
		}
		c.retryWaitMin = lo
		if hi >= lo {
			c.retryWaitMax = hi
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeader adds a header to every request, e.g. a tenant or farm id for
// the gateway in front of the API. Reserved headers set by the client win.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if key == "" {
			return
		}
		if c.headers == nil {
			c.headers = make(http.Header)
		}
		c.headers.Add(key, value)
	}
}

// WithMaxTextLength rejects texts longer than n runes before they are sent.
// Zero leaves the check to the server.
func WithMaxTextLength(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxTextRunes = n
		}
	}
}

//Personal.AI order the ending
