// Package httpapi exposes the Authority over HTTP using gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/authority/services"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/gin-gonic/gin"
)

type HTTPServer struct {
	address       string
	logger        logging.Logger
	keys          *services.KeyService
	uploads       *services.UploadService
	results       *services.ResultService
	sessionSecret []byte
}

func NewHTTPServer(a string, l logging.Logger, ks *services.KeyService, us *services.UploadService, rs *services.ResultService, sessionSecret string) *HTTPServer {
	return &HTTPServer{
		address:       a,
		logger:        l.With("module", "http_server"),
		keys:          ks,
		uploads:       us,
		results:       rs,
		sessionSecret: []byte(sessionSecret),
	}
}

// Router builds the gin engine with all Authority routes.
func (s *HTTPServer) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.health)

	authed := router.Group("/", s.sessionAuth())
	authed.POST("/auth/register-client-key", s.registerClientKey)
	authed.POST("/photos/authorize-upload", s.authorizeUpload)

	// Authenticated by the worker signature inside the body.
	router.POST("/photos/processed", s.processed)

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
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
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
