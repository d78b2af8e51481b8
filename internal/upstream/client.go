// Package upstream implements the HTTP client for the backend agent service.
// It injects the caller's bearer credential, normalizes upstream error bodies
// into a single message shape, and distinguishes upstream rejections from
// transport-level failures.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ErrUnreachable marks transport-level failures (DNS, connection refused,
// timeout) where the upstream never produced a response. Handlers map it to
// one fixed bad-gateway status regardless of the underlying error.
var ErrUnreachable = errors.New("upstream unreachable")

// StatusError is an upstream rejection: the backend answered with a non-2xx
// status. Message carries the extracted human-readable reason.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

// maxErrorBody bounds how much of an upstream error body is buffered when a
// streaming call fails before producing stream bytes.
const maxErrorBody = 64 * 1024

// Request describes one call to the backend agent service.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	// Token is the caller's resolved bearer credential. Empty means the
	// Authorization header is omitted entirely, never sent malformed.
	Token string
}

// Response is a fully buffered non-streaming upstream reply with a 2xx status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues requests against a fixed upstream base URL.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	retries      int
}

// New builds a Client for baseURL. timeout bounds non-streaming calls;
// retries is the number of transparent retries after a transport failure
// (never after an HTTP-level error).
func New(baseURL string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		// Streams have no overall deadline; they end via context cancellation.
		streamClient: &http.Client{},
		retries:      retries,
	}
}

// Do issues a non-streaming request and buffers the reply. A non-2xx status
// returns a *StatusError carrying the upstream's status and extracted
// message; a transport failure returns an error wrapping ErrUnreachable,
// after at most the configured number of retries.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	attempts := c.retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		httpReq, err := c.build(ctx, req, false)
		if err != nil {
			return nil, err
		}

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnreachable, err)
			if ctx.Err() != nil {
				break
			}
			if attempt < attempts-1 {
				log.Debugf("upstream transport failure, retrying: %v", err)
			}
			continue
		}

		body, readErr := io.ReadAll(httpResp.Body)
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("upstream client: close response body error: %v", errClose)
		}
		if readErr != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnreachable, readErr)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			log.Debugf("upstream rejected request, status: %d, body: %s", httpResp.StatusCode, truncateForLog(body))
			return nil, &StatusError{
				StatusCode: httpResp.StatusCode,
				Message:    ExtractErrorMessage(body, httpResp.StatusCode),
			}
		}

		return &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header.Clone(),
			Body:       body,
		}, nil
	}
	return nil, lastErr
}

// Stream opens a streaming request and returns the live response once the
// upstream has answered with a 2xx status. The caller owns resp.Body and
// must close it. Streaming calls are never retried: a transport failure
// returns an error wrapping ErrUnreachable, and a non-2xx answer returns a
// *StatusError built from the (bounded) error body.
func (c *Client) Stream(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := c.build(ctx, req, true)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("upstream client: close error body error: %v", errClose)
		}
		log.Debugf("upstream rejected stream, status: %d, body: %s", httpResp.StatusCode, truncateForLog(body))
		return nil, &StatusError{
			StatusCode: httpResp.StatusCode,
			Message:    ExtractErrorMessage(body, httpResp.StatusCode),
		}
	}

	return httpResp, nil
}

// build assembles the outgoing request with bearer injection and the Accept
// header matching the caller's intent.
func (c *Client) build(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target = target + "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("Cache-Control", "no-cache")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	return httpReq, nil
}

// ExtractErrorMessage returns the human-readable reason from an upstream
// error body. Priority order: JSON detail, error, message fields, then the
// raw body text, then the HTTP status phrase.
func ExtractErrorMessage(body []byte, statusCode int) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed != "" && gjson.ValidBytes(body) {
		if v := gjson.GetBytes(body, "detail"); v.Exists() && v.String() != "" {
			return v.String()
		}
		if v := gjson.GetBytes(body, "error"); v.Exists() {
			if v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
			if m := v.Get("message"); m.Exists() && m.String() != "" {
				return m.String()
			}
		}
		if v := gjson.GetBytes(body, "message"); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	if trimmed != "" {
		return trimmed
	}
	return http.StatusText(statusCode)
}

func truncateForLog(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
