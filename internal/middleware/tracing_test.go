package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

const (
	inboundTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	inboundSpanID  = "00f067aa0ba902b7"
)

func newTracingEcho(t *testing.T, handler echo.HandlerFunc) (*echo.Echo, *tracetest.SpanRecorder) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	e := echo.New()
	e.Use(Tracing(tp))
	e.GET("/collections/:name", handler)
	return e, sr
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	var handlerSpan trace.SpanContext
	e, sr := newTracingEcho(t, func(c echo.Context) error {
		handlerSpan = trace.SpanContextFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/collections/code", nil)
	req.Header.Set("traceparent", "00-"+inboundTraceID+"-"+inboundSpanID+"-01")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := handlerSpan.TraceID().String(); got != inboundTraceID {
		t.Errorf("handler trace id = %s, want %s", got, inboundTraceID)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /collections/:name" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v, want server", span.SpanKind())
	}
	if got := span.Parent().SpanID().String(); got != inboundSpanID {
		t.Errorf("parent span id = %s, want %s", got, inboundSpanID)
	}
	if !span.Parent().IsRemote() {
		t.Error("parent should be the remote caller span")
	}
	if span.SpanContext().SpanID() != handlerSpan.SpanID() {
		t.Error("handler context should carry the server span")
	}
	if !hasAttribute(span.Attributes(), attribute.Int("http.response.status_code", http.StatusOK)) {
		t.Errorf("attributes = %v, want status code 200", span.Attributes())
	}
}

func TestTracing_NewRootWithoutHeader(t *testing.T) {
	e, sr := newTracingEcho(t, func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collections/code", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Parent().IsValid() {
		t.Errorf("parent = %v, want none", spans[0].Parent())
	}
}

func TestTracing_ServerErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		handler    echo.HandlerFunc
		wantCode   int
		wantStatus codes.Code
	}{
		{"written 502", func(c echo.Context) error { return c.NoContent(http.StatusBadGateway) }, http.StatusBadGateway, codes.Error},
		{"returned http error", func(_ echo.Context) error { return echo.ErrServiceUnavailable }, http.StatusServiceUnavailable, codes.Error},
		{"client error", func(c echo.Context) error { return c.NoContent(http.StatusBadRequest) }, http.StatusBadRequest, codes.Unset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, sr := newTracingEcho(t, tt.handler)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/collections/code", nil))

			spans := sr.Ended()
			if len(spans) != 1 {
				t.Fatalf("ended spans = %d, want 1", len(spans))
			}
			if got := spans[0].Status().Code; got != tt.wantStatus {
				t.Errorf("span status = %v, want %v", got, tt.wantStatus)
			}
			if !hasAttribute(spans[0].Attributes(), attribute.Int("http.response.status_code", tt.wantCode)) {
				t.Errorf("attributes = %v, want status code %d", spans[0].Attributes(), tt.wantCode)
			}
		})
	}
}

func hasAttribute(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, kv := range attrs {
		if kv == want {
			return true
		}
	}
	return false
}
