package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/ooddaa/mango-sub002/pkg/context"
)

// HeaderOrigin names the system a change comes from.
const HeaderOrigin = "X-Mango-Origin"

// Context copies request metadata into the request context and echoes the
// request id back to the caller.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetMethod(ctx, req.Method)
			ctx = appctx.SetRoute(ctx, c.Path())
			ctx = appctx.SetRemoteIP(ctx, c.RealIP())
			ctx = appctx.SetOrigin(ctx, req.Header.Get(HeaderOrigin))

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
