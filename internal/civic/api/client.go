package api

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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is used when no API base is configured
	DefaultBaseURL = "http://localhost:4000"

	// RequestTimeout bounds every call made by the client
	RequestTimeout = 30 * time.Second

	// DefaultUserAgent identifies the client to the store and third-party hosts
	DefaultUserAgent = "civicfeed/1.0 (+https://github.com/petr-muller/civicfeed)"
)

// ErrRequestFailed is returned for transport failures and timeouts
var ErrRequestFailed = errors.New("request failed")

// StatusError is returned when the store answers with a non-success status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("request failed: %d", e.Code)
}

// RawBody is sent as-is instead of being encoded as JSON
type RawBody struct {
	ContentType string
	Data        io.Reader
}

// Client performs authenticated, timeout-bounded JSON requests against the
// issue store. It holds no per-request state and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout overrides the request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent overrides the User-Agent sent with every request
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the store at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    RequestTimeout,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

func ensurePath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

// Do sends a request and decodes a JSON response into out. body may be nil,
// a RawBody, or any value encodable as JSON. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body any, token string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case RawBody:
		reader = b.Data
		contentType = b.ContentType
	case *RawBody:
		reader = b.Data
		contentType = b.ContentType
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	url := c.baseURL + ensurePath(path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if reader != nil {
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("User-Agent", c.userAgent)
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	log := logrus.WithFields(logrus.Fields{"method": method, "path": path, "request-id": requestID})
	log.Debug("Sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Debug("Request failed")
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode}
		if readErr == nil {
			statusErr.Body = strings.TrimSpace(string(data))
		}
		log.WithField("status", resp.StatusCode).Debug("Request rejected")
		return statusErr
	}
	if readErr != nil {
		return fmt.Errorf("%w: reading response of %s %s: %v", ErrRequestFailed, method, path, readErr)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", method, path, err)
	}
	return nil
}
