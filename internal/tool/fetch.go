package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout bounds an HTTP request when none is given.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultFetchMaxBytes bounds the response body.
	DefaultFetchMaxBytes = 10 * 1024 * 1024
)

// blockedHosts are never fetched; agents must not probe the local host
// through the HTTP tool.
var blockedHosts = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
	"::1",
}

// FetchTool performs HTTP requests on behalf of the planner.
type FetchTool struct {
	client   *http.Client
	maxBytes int64
}

// FetchOption customizes a FetchTool.
type FetchOption func(*FetchTool)

// WithFetchClient substitutes the HTTP client, mainly for tests.
func WithFetchClient(c *http.Client) FetchOption {
	return func(t *FetchTool) { t.client = c }
}

// WithFetchMaxBytes overrides the response size cap.
func WithFetchMaxBytes(n int64) FetchOption {
	return func(t *FetchTool) { t.maxBytes = n }
}

// NewFetchTool creates a fetch tool with the default client and caps.
func NewFetchTool(opts ...FetchOption) *FetchTool {
	t := &FetchTool{
		client:   &http.Client{},
		maxBytes: DefaultFetchMaxBytes,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Schema implements Tool.
func (t *FetchTool) Schema() Schema {
	return Schema{
		Name:        "fetch",
		Description: "Make an HTTP request to fetch web content or call an API",
		Params: []Param{
			{Name: "url", Type: "string", Description: "The URL to request", Required: true},
			{Name: "method", Type: "string", Description: "HTTP method (default GET)",
				Enum: []string{"GET", "POST", "PUT", "DELETE", "PATCH"}},
			{Name: "body", Type: "string", Description: "Request body for POST/PUT/PATCH"},
			{Name: "timeout", Type: "integer", Description: "Request timeout in seconds (default 30)"},
		},
	}
}

// Execute implements Tool.
func (t *FetchTool) Execute(ctx context.Context, args json.RawMessage) Result {
	var params struct {
		URL     string `json:"url"`
		Method  string `json:"method"`
		Body    string `json:"body"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Fail("decode arguments: %v", err)
	}

	if reason := vetURL(params.URL); reason != "" {
		return Fail("url rejected: %s", reason)
	}

	method := strings.ToUpper(params.Method)
	if method == "" {
		method = http.MethodGet
	}

	timeout := DefaultFetchTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if params.Body != "" {
		body = strings.NewReader(params.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, params.URL, body)
	if err != nil {
		return Fail("build request: %v", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Fail("request timed out after %s", timeout)
		}
		return Fail("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Read one byte past the cap to distinguish "exactly at cap" from
	// "too large".
	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return Fail("read response: %v", err)
	}
	if int64(len(data)) > t.maxBytes {
		return Fail("response too large: exceeds %d bytes", t.maxBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Success: false, Output: string(data), Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Result{Success: true, Output: string(data)}
}

// vetURL rejects non-HTTP schemes and loopback hosts. Returns the
// rejection reason, or "" when the URL may be fetched.
func vetURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Sprintf("invalid scheme: %s", parsed.Scheme)
	}
	host := parsed.Hostname()
	if host == "" {
		return "missing host"
	}
	for _, blocked := range blockedHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return fmt.Sprintf("blocked host: %s", host)
		}
	}
	return ""
}
