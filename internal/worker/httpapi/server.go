// Package httpapi exposes the Worker's upload endpoint over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/worker/ingest"
	"github.com/dmitrijs2005/geoupload/internal/worker/metrics"
	"github.com/dmitrijs2005/geoupload/internal/worker/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Processor runs an accepted upload to completion.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) pipeline.Outcome
}

type HTTPServer struct {
	address   string
	logger    logging.Logger
	codec     *auth.Codec
	policy    ingest.Policy
	workDir   string
	publicDir string
	processor Processor
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
}

// Options carries the optional parts of the server. PublicDir, when set, is
// served under /pics/.
type Options struct {
	PublicDir string
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

func NewHTTPServer(a string, l logging.Logger, codec *auth.Codec, policy ingest.Policy, workDir string, p Processor, opts Options) *HTTPServer {
	return &HTTPServer{
		address:   a,
		logger:    l.With("module", "http_server"),
		codec:     codec,
		policy:    policy,
		workDir:   workDir,
		publicDir: opts.PublicDir,
		processor: p,
		metrics:   opts.Metrics,
		gatherer:  opts.Gatherer,
	}
}

func (s *HTTPServer) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.health)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	if s.publicDir != "" {
		router.Static("/pics", s.publicDir)
	}

	router.POST("/upload", s.upload)

	return router
}

func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
