package chatapi

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

	"chat-widget/internal/domain"
)

const (
	defaultPath    = "/chat"
	defaultTimeout = 60 * time.Second
)

// HTTPStatusError captures non-2xx responses from the chat endpoint.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
	// Detail is the "response" field of the error body, when the server sent one.
	Detail string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chatapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ProtocolError reports a successful response whose body does not have the
// expected shape.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "chatapi: protocol error: " + e.Reason
	}
	return fmt.Sprintf("chatapi: protocol error: %s: %v", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Reply is a decoded chat response. SessionID is empty when the server did
// not send one; HasSessionID tells that apart from an empty value.
type Reply struct {
	Response     string
	SessionID    string
	HasSessionID bool
}

// Client posts messages to the chat endpoint.
type Client struct {
	baseURL    string
	path       string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each request. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithPath overrides the endpoint path, "/chat" by default.
func WithPath(path string) Option {
	return func(c *Client) {
		c.path = strings.TrimSpace(path)
	}
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("chatapi: base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("chatapi: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("chatapi: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		baseURL:    baseURL,
		path:       defaultPath,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolvedHTTPClient returns the configured HTTP client, or a default one if
// the field was cleared.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// Endpoint returns the full URL requests are posted to.
func (c *Client) Endpoint() string {
	return endpointURL(c.baseURL, c.path)
}

func endpointURL(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if path == "" {
		path = defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if strings.HasSuffix(base, path) {
		return base
	}
	return base + path
}

// Send posts message with sessionID. A nil sessionID is sent as null.
func (c *Client) Send(ctx context.Context, message string, sessionID *string) (Reply, error) {
	body, err := json.Marshal(domain.ChatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return Reply{}, fmt.Errorf("chatapi: marshal request: %w", err)
	}

	endpoint := c.Endpoint()
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if reqErr != nil {
		return Reply{}, fmt.Errorf("chatapi: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			return Reply{}, err
		}
		return Reply{}, fmt.Errorf("chatapi: request failed: %w", err)
	}

	var payload domain.ChatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return Reply{}, &ProtocolError{Reason: "decode response", Err: decErr}
	}
	if payload.Response == nil {
		return Reply{}, &ProtocolError{Reason: `missing "response" field`}
	}

	reply := Reply{Response: *payload.Response}
	if payload.SessionID != nil {
		reply.SessionID = *payload.SessionID
		reply.HasSessionID = true
	}
	return reply, nil
}

func (c *Client) doJSONRequest(req *http.Request, endpoint string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
			Detail:     errorDetail(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// errorDetail extracts the human-readable "response" field servers put in
// error bodies.
func errorDetail(body []byte) string {
	var payload domain.ChatResponse
	if err := json.Unmarshal(body, &payload); err != nil || payload.Response == nil {
		return ""
	}
	return strings.TrimSpace(*payload.Response)
}
