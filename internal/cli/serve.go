package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/ooddaa/mango-sub002/pkg/middleware"
	"github.com/ooddaa/mango-sub002/pkg/routes/graph"
	"github.com/ooddaa/mango-sub002/pkg/routes/health"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			e := envFrom(ctx)
			if port > 0 {
				e.cfg.Port = port
			}

			a, err := newApp(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			if err := a.start(ctx); err != nil {
				return err
			}
			return a.serve(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides PORT)")
	return cmd
}

func (a *app) router() (*echo.Echo, *health.Checker) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.BodyLimit(a.cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))

	checks := map[string]health.Check{"graph": a.graph.VerifyConnectivity}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	checker := health.NewChecker(checks, a.cfg.Version)
	checker.RegisterRoutes(e)

	graph.NewHandler(a.engine, a.logger).Register(e.Group("/api/v1"))
	return e, checker
}

// serve runs the API until ctx is cancelled, then drains requests and stops
// every dependency.
func (a *app) serve(ctx context.Context) error {
	e, checker := a.router()
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	errs := make(chan error, 1)
	go func() {
		a.logger.WithContext(ctx).WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	checker.SetReady(true)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errs:
	}
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.logger.WithContext(shutdownCtx).Info("Shutting down HTTP server")
	if err := e.Shutdown(shutdownCtx); err != nil {
		a.logger.WithContext(shutdownCtx).WithError(err).Warn("Failed to drain HTTP server")
	}
	a.stop(shutdownCtx)
	return serveErr
}
