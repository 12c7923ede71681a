package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kelsos/mediagen/internal/logger"
)

const maxSnippet = 512

// HTTPError is returned for any non-2xx vendor response. The body is kept
// verbatim so authorization failures reach the caller unchanged.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, Snippet(e.Body))
}

// Snippet shortens a response body for log lines and error messages.
func Snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxSnippet {
		return body
	}
	return body[:maxSnippet] + "..."
}

// RawResponse receives an undecoded 2xx response when passed as the result
// argument of Get, Post or PostMultipart.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// APIClient handles all HTTP communication with one vendor base URL
type APIClient struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewAPIClient creates a new API client for the given base URL and bearer token.
// timeout bounds whole requests; for streamed bodies it only bounds the
// connection and the wait for response headers.
func NewAPIClient(baseURL, apiKey string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		streamClient: newStreamingClient(timeout),
	}
}

// newStreamingClient has no total timeout, so a body that keeps arriving is
// read until it ends or the request context is cancelled.
func newStreamingClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: transport}
}

// WithHTTPClient swaps both underlying clients, mostly for tests.
func (c *APIClient) WithHTTPClient(httpClient *http.Client) *APIClient {
	c.httpClient = httpClient
	c.streamClient = httpClient
	return c
}

// HTTPClient exposes the client used for ordinary API calls.
func (c *APIClient) HTTPClient() *http.Client {
	return c.httpClient
}

// StreamingHTTPClient exposes the client used for streamed bodies such as
// media downloads.
func (c *APIClient) StreamingHTTPClient() *http.Client {
	return c.streamClient
}

// BuildURL constructs a full URL for the given endpoint
func (c *APIClient) BuildURL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

// Authorize sets the bearer token and a fresh request id on req.
func (c *APIClient) Authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// Get makes a GET request to the specified endpoint
func (c *APIClient) Get(ctx context.Context, endpoint string, result interface{}) error {
	return c.request(ctx, http.MethodGet, endpoint, nil, "", result)
}

// Post makes a JSON POST request to the specified endpoint
func (c *APIClient) Post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request body: %w", err)
	}
	return c.request(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody), "application/json", result)
}

// FilePart is a file attached to a multipart request.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
}

// Form is an ordered multipart/form-data payload.
type Form struct {
	Fields [][2]string
	Files  []FilePart
}

// PostMultipart makes a multipart/form-data POST request to the specified endpoint
func (c *APIClient) PostMultipart(ctx context.Context, endpoint string, form Form, result interface{}) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, field := range form.Fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return fmt.Errorf("error writing form field %s: %w", field[0], err)
		}
	}

	for _, file := range form.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.FileName))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return fmt.Errorf("error creating form file %s: %w", file.Field, err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return fmt.Errorf("error writing form file %s: %w", file.Field, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("error closing multipart body: %w", err)
	}

	return c.request(ctx, http.MethodPost, endpoint, &buf, writer.FormDataContentType(), result)
}

// Stream POSTs a JSON body and hands back the open response body for
// incremental reading. The caller must close it.
func (c *APIClient) Stream(ctx context.Context, endpoint string, body interface{}) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request body: %w", err)
	}

	resp, err := c.do(ctx, c.streamClient, http.MethodPost, c.BuildURL(endpoint), bytes.NewReader(jsonBody), "application/json")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// request is the core HTTP request method
func (c *APIClient) request(ctx context.Context, method, endpoint string, body io.Reader, contentType string, result interface{}) error {
	url := c.BuildURL(endpoint)

	resp, err := c.do(ctx, c.httpClient, method, url, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if raw, ok := result.(*RawResponse); ok {
		raw.StatusCode = resp.StatusCode
		raw.Body = bodyBytes
		return nil
	}

	if result != nil {
		if err := json.Unmarshal(bodyBytes, result); err != nil {
			logger.Error("%s: Error decoding response: %v", url, err)
			return fmt.Errorf("error decoding response: %w (body: %s)", err, Snippet(string(bodyBytes)))
		}
	}

	return nil
}

// do sends the request and converts non-2xx responses into *HTTPError.
func (c *APIClient) do(ctx context.Context, httpClient *http.Client, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	start := time.Now()
	logger.Debug("Starting %s request to %s", method, url)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.Authorize(req)

	resp, err := httpClient.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		logger.Error("Request to %s failed after %v: %v", url, elapsed, err)
		return nil, fmt.Errorf("request failed: %w", err)
	}

	elapsed := time.Since(start)
	logger.Debug("Request to %s completed in %v with status %d", url, elapsed, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.Error("%s: HTTP error %d: %s", url, resp.StatusCode, Snippet(string(bodyBytes)))
		return nil, &HTTPError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
		}
	}

	return resp, nil
}
