// Package service implements the gateway's forwarding and augmentation logic.
package service

import (
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"vectorgate/internal/client"
	"vectorgate/internal/metrics"
	"vectorgate/internal/model"
)

// strippedRequestHeaders are never forwarded to the datastore.
var strippedRequestHeaders = []string{
	"Host",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Keep-Alive",
}

// strippedResponseHeaders are never forwarded to the client.
var strippedResponseHeaders = []string{
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Content-Encoding",
}

// collectionCreatePath matches PUT /collections/{name}, the only call whose
// 409 is rewritten.
var collectionCreatePath = regexp.MustCompile(`^/collections/[^/]+/?$`)

// idempotentCreateBody is returned in place of a 409 on collection creation.
const idempotentCreateBody = `{"result":true,"status":"ok"}`

// ProxyService forwards unmatched requests to the datastore untouched.
type ProxyService struct {
	datastore *client.DatastoreClient
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(ds *client.DatastoreClient, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		datastore: ds,
		logger:    logger.With("component", "proxy_service"),
		metrics:   m,
	}
}

// Forward streams pr to the datastore at the same path and returns the
// response with sanitized headers. The caller closes the response body.
//
// Forward never retries. A 409 to collection creation is answered with a
// synthetic 200 since repeating a create is expected from retrying clients.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	upstreamURL := s.datastore.ForwardURL(pr.Path, pr.RawPath, pr.RawQuery)
	header := s.outboundHeader(pr.Header)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
	)

	resp, err := s.datastore.DoStream(pr.Ctx, pr.Method, upstreamURL, header, pr.Body, pr.ContentLength)
	if err != nil {
		return nil, newError(KindBadGateway, "forward to datastore", err)
	}

	if resp.StatusCode == http.StatusConflict && isCollectionCreate(pr.Method, pr.Path) {
		s.logger.Info("collection already exists, answering create as success", "path", pr.Path)
		if s.metrics != nil {
			s.metrics.IdempotentRemapTotal.Inc()
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
		_ = resp.Body.Close()
		return &model.ProxyResponse{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"application/json"}, "Connection": {"close"}},
			Body:       io.NopCloser(strings.NewReader(idempotentCreateBody)),
		}, nil
	}

	resp.Header = filterResponseHeaders(resp.Header)
	return resp, nil
}

// maxDrain bounds how much of a discarded body is read to reuse the connection.
const maxDrain = 64 << 10

func isCollectionCreate(method, path string) bool {
	return method == http.MethodPut && collectionCreatePath.MatchString(path)
}

// outboundHeader copies the client's headers minus hop-by-hop ones and asks for
// an uncompressed response, so the body can be relayed without decoding.
func (s *ProxyService) outboundHeader(src http.Header) http.Header {
	dst := sanitizeRequestHeaders(src)
	if key := s.datastore.APIKey(); key != "" && dst.Get("Api-Key") == "" {
		dst.Set("Api-Key", key)
	}
	return dst
}

func sanitizeRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, h := range strippedRequestHeaders {
		dst.Del(h)
	}
	dst.Set("Accept-Encoding", "identity")
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for _, h := range strippedResponseHeaders {
		dst.Del(h)
	}
	dst.Set("Connection", "close")
	return dst
}
