// Package authority wires the Authority service: signing keys, repositories,
// services and the HTTP API.
package authority

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/authority/config"
	"github.com/dmitrijs2005/geoupload/internal/authority/httpapi"
	"github.com/dmitrijs2005/geoupload/internal/authority/ratelimit"
	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/repomanager"
	"github.com/dmitrijs2005/geoupload/internal/authority/services"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/cryptox"
	"github.com/dmitrijs2005/geoupload/internal/logging"
)

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	server *httpapi.HTTPServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel).With("service", "authority")

	keys, err := loadKeys(ctx, logger, c)
	if err != nil {
		return nil, err
	}

	workerPEM, err := cryptox.ResolvePEM(c.WorkerPublicKey)
	if err != nil {
		return nil, err
	}
	var codec *auth.Codec
	if workerPEM == "" {
		if c.Profile == common.ProfileProduction {
			return nil, fmt.Errorf("worker public key: %w", common.ErrMissingSigningKey)
		}
		logger.Warn(ctx, "worker public key not configured, processed results will be rejected")
		codec = auth.NewCodec(keys.Private, nil, c.UploadTokenTTL)
	} else {
		workerKey, err := cryptox.ParsePublicKeyPEM(workerPEM)
		if err != nil {
			return nil, fmt.Errorf("worker public key: %w", err)
		}
		codec = auth.NewCodec(keys.Private, workerKey, c.UploadTokenTTL)
	}

	repos, err := newRepositoryManager(ctx, logger, c)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(ratelimit.Config{RequestsPerMinute: c.AuthorizeRatePerMinute, Burst: c.AuthorizeBurst})
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	ks := services.NewKeyService(repos, logger)
	us := services.NewUploadService(repos, codec, limiter, c.WorkerURL, logger)
	rs := services.NewResultService(repos, codec, logger)

	server := httpapi.NewHTTPServer(c.HTTPAddr, logger, ks, us, rs, c.SessionSecret)

	return &App{config: c, logger: logger, repos: repos, server: server}, nil
}

func loadKeys(ctx context.Context, logger logging.Logger, c *config.Config) (*cryptox.KeyPair, error) {
	privPEM, err := cryptox.ResolvePEM(c.PrivateKey)
	if err != nil {
		return nil, err
	}
	pubPEM, err := cryptox.ResolvePEM(c.PublicKey)
	if err != nil {
		return nil, err
	}
	return cryptox.LoadKeyPair(ctx, logger, c.Profile, "authority", privPEM, pubPEM)
}

func newRepositoryManager(ctx context.Context, logger logging.Logger, c *config.Config) (repomanager.RepositoryManager, error) {
	if c.DatabaseDSN == "" {
		if c.Profile == common.ProfileProduction {
			return nil, fmt.Errorf("database DSN is required in production")
		}
		logger.Warn(ctx, "no database DSN configured, using in-memory repositories")
		return repomanager.NewInMemoryRepositoryManager(), nil
	}

	m, err := repomanager.NewPostgresRepositoryManager(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return m, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "profile", app.config.Profile)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "closing repositories", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
