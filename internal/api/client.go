// Package api is the client of the receipt backend REST API. Every backend
// operation the pages use is one method here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"raseed/internal/log"
)

// Error is a non-2xx answer from the backend.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

var ErrNotFound = errors.New("receipt not found")

// Observer is told about every backend call; metrics plug in here.
type Observer interface {
	ObserveBackendCall(op string, err error, elapsed time.Duration)
}

type Client struct {
	baseURL  string
	http     *http.Client
	logger   *log.Logger
	observer Observer
	retry    time.Duration
	now      func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentAPI) }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithRetryDelay sets the pause before the single query retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retry = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentAPI),
		retry:   500 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errorBody is the error shape the backend uses; either field may be set.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) url(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path, q), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(op, req, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path, nil), r)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) (err error) {
	start := c.now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveBackendCall(op, err, c.now().Sub(start))
		}
		if err != nil {
			c.logger.WarnContext(req.Context(), "Backend call failed",
				log.FieldOperation, op, log.FieldPath, req.URL.Path, log.FieldError, err)
		}
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(op, resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func newError(op string, status int, body []byte) *Error {
	e := &Error{Op: op, Status: status, Message: op + " failed"}
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		switch {
		case eb.Error != "":
			e.Message = eb.Error
		case eb.Message != "":
			e.Message = eb.Message
		}
	}
	return e
}
