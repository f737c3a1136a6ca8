// Package server exposes the analysis jobs over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/job"
	"github.com/mohammad-safakhou/credence/internal/pipeline"
)

// Submitter queues a job runner.
type Submitter interface {
	Submit(jobID string, run job.Runner) error
}

// Analyzer turns a validated request into a job runner.
type Analyzer interface {
	Runner(req pipeline.Request) job.Runner
}

// Options are the collaborators of New.
type Options struct {
	Store     job.Store
	Submitter Submitter
	Analyzer  Analyzer
	// Lookup backs the credibility endpoint; nil disables it.
	Lookup credibility.Lookup
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// KeepAlive is the SSE comment interval.
	KeepAlive time.Duration
	Logger    *log.Logger
}

// New builds the echo instance with every route registered.
func New(opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M"))
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/api/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":      "healthy",
			"jobs":        opts.Submitter != nil,
			"credibility": opts.Lookup != nil,
		})
	})
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	api := e.Group("/api")
	jh := &JobsHandler{
		store:     opts.Store,
		submitter: opts.Submitter,
		analyzer:  opts.Analyzer,
		keepAlive: opts.KeepAlive,
		logger:    logger,
	}
	jh.Register(api.Group("/jobs"))
	if opts.Lookup != nil {
		ch := &CredibilityHandler{lookup: opts.Lookup}
		ch.Register(api)
	}
	return e
}

// Run serves e on addr until ctx ends, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
