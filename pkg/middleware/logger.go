package middleware

import (
	"cmp"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/ooddaa/mango-sub002/pkg/context"
	"github.com/ooddaa/mango-sub002/pkg/metrics"
)

// Logger writes one log line and one request metric per request.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			route := c.Path()
			metrics.HTTPRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(res.Status)).Inc()

			ctx := c.Request().Context()
			logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    appctx.GetRequestID(ctx),
				"origin":        appctx.GetOrigin(ctx),
				"method":        cmp.Or(appctx.GetMethod(ctx), req.Method),
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         route,
				"remote_ip":     cmp.Or(appctx.GetRemoteIP(ctx), c.RealIP()),
				"user_agent":    req.UserAgent(),
				"response_time": stop.Sub(start),
				"request_size":  req.Header.Get(echo.HeaderContentLength),
				"response_size": strconv.FormatInt(res.Size, 10),
			}).Info("Request")

			return nil
		}
	}
}
