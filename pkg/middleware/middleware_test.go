package middleware_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/ooddaa/mango-sub002/pkg/context"
	"github.com/ooddaa/mango-sub002/pkg/middleware"
	"github.com/ooddaa/mango-sub002/pkg/result"
)

func newServer(handler echo.HandlerFunc) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.GET("/ping", handler)
	return e
}

func serve(e *echo.Echo, header http.Header) (*httptest.ResponseRecorder, middleware.ErrorResponse) {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body middleware.ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestContext(t *testing.T) {
	var seen map[string]string
	e := newServer(func(c echo.Context) error {
		ctx := c.Request().Context()
		seen = map[string]string{
			"request": appctx.GetRequestID(ctx),
			"origin":  appctx.GetOrigin(ctx),
			"route":   appctx.GetRoute(ctx),
		}
		return c.NoContent(http.StatusNoContent)
	})

	rec, _ := serve(e, http.Header{
		echo.HeaderXRequestID:   {"req-42"},
		middleware.HeaderOrigin: {"crm"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, map[string]string{"request": "req-42", "origin": "crm", "route": "/ping"}, seen)

	rec, _ = serve(e, nil)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestLogger(t *testing.T) {
	var fields map[string]any
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		if msg.Message == "Request" {
			fields = msg.Fields
		}
	})
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := appctx.SetRemoteIP(c.Request().Context(), "203.0.113.7")
			ctx = appctx.SetMethod(ctx, http.MethodHead)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	e.Use(middleware.Logger(logger))
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec, _ := serve(e, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, fields)
	assert.Equal(t, "203.0.113.7", fields["remote_ip"])
	assert.Equal(t, http.MethodHead, fields["method"])
	assert.Equal(t, "/ping", fields["route"])

	t.Run("falls back to the request", func(t *testing.T) {
		fields = nil
		e := echo.New()
		e.Use(middleware.Logger(logger))
		e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

		serve(e, nil)
		require.NotNil(t, fields)
		assert.Equal(t, http.MethodGet, fields["method"])
		assert.Equal(t, "192.0.2.1", fields["remote_ip"])
	})
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
		kind    any
	}{
		{
			name:    "consistency failure",
			err:     result.Consistency("node is no longer current", nil, nil),
			code:    http.StatusConflict,
			message: "node is no longer current",
			kind:    "consistency",
		},
		{
			name:    "wrapped promotion failure",
			err:     errors.Join(errors.New("batch"), result.Promotion("missing NAME", nil)),
			code:    http.StatusBadRequest,
			message: "missing NAME",
			kind:    "promotion",
		},
		{
			name:    "http error",
			err:     httperror.NewHTTPError(http.StatusUnprocessableEntity, "bad body"),
			code:    http.StatusUnprocessableEntity,
			message: "bad body",
		},
		{
			name:    "echo error",
			err:     echo.NewHTTPError(http.StatusNotFound, "nope"),
			code:    http.StatusNotFound,
			message: "nope",
		},
		{
			name:    "plain error",
			err:     errors.New("driver exploded"),
			code:    http.StatusInternalServerError,
			message: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newServer(func(echo.Context) error { return tt.err })
			rec, body := serve(e, http.Header{echo.HeaderXRequestID: {"req-7"}})

			require.Equal(t, tt.code, rec.Code)
			assert.Contains(t, body.Message, tt.message)
			assert.Equal(t, "req-7", body.RequestID)
			if tt.kind != nil {
				assert.Equal(t, tt.kind, body.Meta["kind"])
			}
		})
	}
}
