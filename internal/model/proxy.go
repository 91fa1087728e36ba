// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest is the inbound request as seen by the services. It is never
// mutated; outbound requests are derived from it.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	// RawPath is the escaped form of Path as sent by the client.
	RawPath  string
	RawQuery string
	Header   http.Header
	Body     io.ReadCloser
	// ContentLength is -1 when unknown (chunked inbound body).
	ContentLength int64
}

// ProxyResponse represents a backend response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
