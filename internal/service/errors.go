package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies gateway failures.
type Kind int

const (
	// KindBadRequest is malformed or missing client input.
	KindBadRequest Kind = iota + 1
	// KindUpstreamUnavailable is an inference engine failure on a primary call.
	KindUpstreamUnavailable
	// KindBackendUnavailable is a datastore failure on an intercepted route.
	KindBackendUnavailable
	// KindBadGateway is a transport failure on the transparent proxy path.
	KindBadGateway
	// KindAugmentationFailed is a rerank failure. It is recovered locally and
	// never reaches the client.
	KindAugmentationFailed
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad request"
	case KindUpstreamUnavailable:
		return "inference engine unavailable"
	case KindBackendUnavailable:
		return "datastore unavailable"
	case KindBadGateway:
		return "bad gateway"
	case KindAugmentationFailed:
		return "augmentation failed"
	}
	return "unknown"
}

// Status returns the HTTP status for the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindBackendUnavailable, KindBadGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Error is a classified gateway error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func badRequest(op, format string, args ...any) *Error {
	return newError(KindBadRequest, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, or 0 if err is not a classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
