package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"vectorgate/internal/config"
)

// hopByHopHeaders are request headers that never reach a handler.
var hopByHopHeaders = []string{
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop request
// headers and marks responses nosniff. Responses generated by the gateway's
// own endpoints are additionally denied framing.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHopHeaders {
				c.Request().Header.Del(h)
			}

			own := strings.HasPrefix(c.Request().URL.Path, config.GatewayPrefix+"/")
			res := c.Response()
			res.Before(func() {
				res.Header().Set("X-Content-Type-Options", "nosniff")
				if own {
					res.Header().Set("X-Frame-Options", "DENY")
				}
			})

			return next(c)
		}
	}
}
