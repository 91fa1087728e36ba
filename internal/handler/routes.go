package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"vectorgate/internal/config"
)

// proxiedMethods are the methods the catch-all forwards to the datastore.
var proxiedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodHead,
}

// RegisterRoutes wires all route handlers onto the Echo instance.
//
// Intercepted routes are exact or parameterised paths, so the catch-all only
// sees what they do not match. Any other method on an intercepted path is
// forwarded as well.
//
// Only the routes that buffer the request body are size-capped; the proxy
// streams bodies of any size.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, embeddings *EmbeddingsHandler, search *SearchHandler, models *ModelsHandler, health *HealthHandler) {
	bodyLimit := echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes))

	e.GET(config.GatewayPrefix+"/healthz", health.Healthz)
	e.GET(config.GatewayPrefix+"/readyz", health.Readyz)
	e.GET(config.GatewayPrefix+"/status", health.Status)

	intercept(e, http.MethodGet, "/v1/models", models.Handle, proxy.Handle)
	intercept(e, http.MethodPost, "/v1/embeddings", embeddings.Handle, proxy.Handle, bodyLimit)
	intercept(e, http.MethodPost, "/collections/:name/points/search", search.Handle, proxy.Handle, bodyLimit)

	e.Match(proxiedMethods, "/*", proxy.Handle)
}

// intercept routes method on path to h, wrapped in mw, and every other proxied
// method to fallback.
func intercept(e *echo.Echo, method, path string, h, fallback echo.HandlerFunc, mw ...echo.MiddlewareFunc) {
	e.Add(method, path, h, mw...)
	for _, m := range proxiedMethods {
		if m != method {
			e.Add(m, path, fallback)
		}
	}
}
