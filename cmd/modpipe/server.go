package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stride-social/modpipe/automod/engine"
	"github.com/stride-social/modpipe/automod/resultstore"
	"github.com/stride-social/modpipe/automod/source"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

type Server struct {
	engine     *engine.Engine
	source     source.ContentSource
	results    resultstore.ResultStore
	runTimeout time.Duration
	echo       *echo.Echo
	httpd      *http.Server
	logger     *slog.Logger
}

type Config struct {
	Logger *slog.Logger
	Engine *engine.Engine
	// optional; GET /moderation fails with 502 when not configured
	Source     source.ContentSource
	Results    resultstore.ResultStore
	RunTimeout time.Duration
	Bind       string
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if config.Engine == nil {
		return nil, fmt.Errorf("moderation engine is required")
	}
	if config.Results == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 60 * time.Second
	}

	e := echo.New()

	// httpd; write timeout leaves headroom past the run deadline for partial results
	var (
		httpTimeout        = config.RunTimeout + 10*time.Second
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		engine:     config.Engine,
		source:     config.Source,
		results:    config.Results,
		runTimeout: config.RunTimeout,
		echo:       e,
		logger:     logger,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4M"))
	e.Use(httpMetricsMiddleware)
	e.Use(otelecho.Middleware("modpipe"))
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000, // 365 days
	}))

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/moderation", srv.HandleModerateSource)
	e.POST("/moderation", srv.HandleModerateBody)
	e.GET("/moderation/:runID", srv.HandleGetRun)

	return srv, nil
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) RunAPI() error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	// Wait for a signal to exit.
	srv.logger.Info("registering OS exit signal handler")
	quit := make(chan struct{})
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-exitSignals
		srv.logger.Info("received OS exit signal", "signal", sig)

		// Shut down the HTTP server
		if err := srv.Shutdown(); err != nil {
			srv.logger.Error("HTTP server shutdown error", "err", err)
		}

		// Trigger the return that causes an exit.
		close(quit)
	}()
	<-quit
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}
