// Package client provides the outbound HTTP clients for the inference engine
// and the vector datastore.
//
// Clients never retry. Each call is bounded by the backend's timeout budget and
// by the caller's context; handlers detach that context from inbound
// cancellation, so an issued call runs to completion or timeout.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"vectorgate/internal/config"
	"vectorgate/internal/metrics"
	"vectorgate/internal/model"
)

// maxErrorBody caps how much of a non-2xx body is kept for error detail.
const maxErrorBody = 4 << 10

// StatusError is returned by PostJSON when the backend answers with a non-2xx status.
type StatusError struct {
	Backend    string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http %d for %s", e.Backend, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("%s: http %d for %s: %s", e.Backend, e.StatusCode, e.URL, e.Body)
}

// Backend sends requests to one backend service over a pooled connection set.
// It is safe for concurrent use.
type Backend struct {
	name       string
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackend creates a Backend with connection pooling and a request timeout.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewBackend(name string, cfg config.BackendConfig, logger *slog.Logger, m *metrics.Metrics) (*Backend, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s base_url: %w", name, err)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.IdleConnections,
		MaxIdleConnsPerHost: cfg.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Backend{
		name:    name,
		baseURL: u,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
			// Redirects belong to the caller; following them would change the
			// status and resend credentials to whatever Location names.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", name+"_client"),
		metrics: m,
	}, nil
}

// Name returns the backend label.
func (b *Backend) Name() string {
	return b.name
}

// HTTPClient exposes the pooled client for SDKs that bring their own request code.
func (b *Backend) HTTPClient() *http.Client {
	return b.httpClient
}

// URL joins the backend base URL with path and a raw (already encoded) query.
func (b *Backend) URL(path, rawQuery string) string {
	u := *b.baseURL
	u.Path = singleJoiningSlash(b.baseURL.Path, path)
	u.RawPath = ""
	u.RawQuery = rawQuery
	return u.String()
}

// ForwardURL is URL for an inbound request path. rawPath is the path as the
// client encoded it; when it is a valid encoding of path, segments such as
// %2F are forwarded as sent.
func (b *Backend) ForwardURL(path, rawPath, rawQuery string) string {
	if rawPath == "" {
		return b.URL(path, rawQuery)
	}
	u := *b.baseURL
	u.Path = singleJoiningSlash(b.baseURL.Path, path)
	u.RawPath = singleJoiningSlash(b.baseURL.EscapedPath(), rawPath)
	u.RawQuery = rawQuery
	return u.String()
}

// Do executes an HTTP request against the backend and returns the raw response.
// The caller is responsible for closing the response body.
func (b *Backend) Do(req *http.Request) (*model.ProxyResponse, error) {
	b.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := b.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	b.observe(req.Method, start, resp)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", b.name, err)
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream executes a request whose body is streamed from body and returns the
// response body as a stream. contentLength is the body size, or -1 if unknown.
// The caller is responsible for closing the returned ReadCloser.
func (b *Backend) DoStream(ctx context.Context, method, rawURL string, header http.Header, body io.Reader, contentLength int64) (*model.ProxyResponse, error) {
	if contentLength == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", b.name, err)
	}
	if header != nil {
		req.Header = header
	}
	if body != http.NoBody {
		req.ContentLength = contentLength
	}
	return b.Do(req)
}

// PostJSON sends in as a JSON body and decodes a 2xx JSON response into out.
// A non-2xx status is returned as *StatusError.
func (b *Backend) PostJSON(ctx context.Context, rawURL string, header http.Header, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", b.name, err)
	}

	h := header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")

	resp, err := b.DoStream(ctx, http.MethodPost, rawURL, h, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Backend: b.name, URL: rawURL, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", b.name, err)
	}
	return nil
}

func (b *Backend) observe(method string, start time.Time, resp *http.Response) {
	if b.metrics == nil {
		return
	}
	method = metrics.NormalizeMethod(method)
	b.metrics.UpstreamDuration.WithLabelValues(b.name, method).Observe(time.Since(start).Seconds())
	if resp != nil {
		b.metrics.UpstreamResponses.WithLabelValues(b.name, method, strconv.Itoa(resp.StatusCode)).Inc()
	}
}

func singleJoiningSlash(a, b string) string {
	switch {
	case a == "" || a == "/":
		return b
	case b == "":
		return a
	}
	aslash := a[len(a)-1] == '/'
	bslash := b[0] == '/'
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
