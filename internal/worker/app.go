// Package worker wires the Worker service: signing keys, the processing
// pipeline, storage, the upload API and the admin health endpoint.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/cryptox"
	"github.com/dmitrijs2005/geoupload/internal/filex"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/worker/admission"
	"github.com/dmitrijs2005/geoupload/internal/worker/anonymize"
	"github.com/dmitrijs2005/geoupload/internal/worker/attest"
	"github.com/dmitrijs2005/geoupload/internal/worker/config"
	"github.com/dmitrijs2005/geoupload/internal/worker/derivative"
	"github.com/dmitrijs2005/geoupload/internal/worker/healthgrpc"
	"github.com/dmitrijs2005/geoupload/internal/worker/httpapi"
	"github.com/dmitrijs2005/geoupload/internal/worker/identity"
	"github.com/dmitrijs2005/geoupload/internal/worker/ingest"
	"github.com/dmitrijs2005/geoupload/internal/worker/metrics"
	"github.com/dmitrijs2005/geoupload/internal/worker/pipeline"
	"github.com/dmitrijs2005/geoupload/internal/worker/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	identity string
	server   *httpapi.HTTPServer
	admin    *healthgrpc.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel).With("service", "worker")

	codec, pubPEM, err := newCodec(ctx, logger, c)
	if err != nil {
		return nil, err
	}
	id := identity.Worker(pubPEM)

	workDir, err := filex.EnsureDir(c.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}

	backend, err := newBackend(ctx, c)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	gate := admission.NewGate(
		admission.NewMemoryGate(admission.MemoryGateConfig{
			RequiredMB:    c.RequiredMemoryMB,
			CheckInterval: c.MemoryPoll,
			Timeout:       c.MemoryTimeout,
		}, admission.SystemMemory, logger.With("module", "admission")),
		admission.NewRateGate(c.AdmissionInterval),
	)

	svc := pipeline.NewService(
		gate,
		anonymize.New(newDetector(ctx, logger, c), logger),
		derivative.NewGenerator(workDir),
		storage.NewSink(backend, nil, logger),
		attest.New(codec, id, c.AuthorityURL, c.NotifyTimeout, nil, logger),
		m,
		logger,
	)

	opts := httpapi.Options{Metrics: m, Gatherer: reg}
	if c.StorageBackend == config.StorageLocal {
		opts.PublicDir = c.PublicDir
	}
	server := httpapi.NewHTTPServer(c.HTTPAddr, logger, codec, ingest.DefaultPolicy(), workDir, svc, opts)

	logger.Info(ctx, "worker configured", "identity", id, "storage", c.StorageBackend, "authority", c.AuthorityURL)

	return &App{
		config:   c,
		logger:   logger,
		identity: id,
		server:   server,
		admin:    healthgrpc.NewGRPCServer(c.AdminAddr, logger),
	}, nil
}

// newCodec signs with the worker's key and verifies upload tokens with the
// Authority's public key. It also returns the worker's public PEM.
func newCodec(ctx context.Context, logger logging.Logger, c *config.Config) (*auth.Codec, string, error) {
	privPEM, err := cryptox.ResolvePEM(c.PrivateKey)
	if err != nil {
		return nil, "", err
	}
	pubPEM, err := cryptox.ResolvePEM(c.PublicKey)
	if err != nil {
		return nil, "", err
	}
	keys, err := cryptox.LoadKeyPair(ctx, logger, c.Profile, "worker", privPEM, pubPEM)
	if err != nil {
		return nil, "", err
	}
	if keys.Generated {
		if pubPEM, err = cryptox.EncodePublicKeyPEM(keys.Public); err != nil {
			return nil, "", err
		}
	}

	authorityPEM, err := cryptox.ResolvePEM(c.AuthorityPublicKey)
	if err != nil {
		return nil, "", err
	}
	if authorityPEM == "" {
		if c.Profile == common.ProfileProduction {
			return nil, "", fmt.Errorf("authority public key: %w", common.ErrMissingSigningKey)
		}
		logger.Warn(ctx, "authority public key not configured, every upload will be rejected")
		return auth.NewCodec(keys.Private, nil, 0), pubPEM, nil
	}
	authorityKey, err := cryptox.ParsePublicKeyPEM(authorityPEM)
	if err != nil {
		return nil, "", fmt.Errorf("authority public key: %w", err)
	}
	return auth.NewCodec(keys.Private, authorityKey, 0), pubPEM, nil
}

func newBackend(ctx context.Context, c *config.Config) (storage.Backend, error) {
	switch c.StorageBackend {
	case config.StorageLocal, "":
		return storage.NewLocal(c.PublicDir, c.PicsURL)
	case config.StorageS3:
		return storage.NewS3(ctx, storage.S3Config{
			Endpoint:   c.StorageEndpoint,
			Region:     c.StorageRegion,
			Bucket:     c.StorageBucket,
			AccessKey:  c.StorageAccessKey,
			SecretKey:  c.StorageSecretKey,
			CDNBaseURL: c.CDNBaseURL,
		})
	case config.StorageMinIO:
		return storage.NewMinIO(ctx, storage.MinIOConfig{
			Endpoint:   c.StorageEndpoint,
			Bucket:     c.StorageBucket,
			AccessKey:  c.StorageAccessKey,
			SecretKey:  c.StorageSecretKey,
			UseSSL:     c.StorageUseSSL,
			CDNBaseURL: c.CDNBaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

func newDetector(ctx context.Context, logger logging.Logger, c *config.Config) anonymize.Detector {
	if c.DetectorURL == "" {
		logger.Warn(ctx, "no detector configured, photos are stored without anonymization")
		return anonymize.StaticDetector{}
	}
	return anonymize.NewHTTPDetector(c.DetectorURL, c.DetectorTimeout)
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

func (app *App) startAdminServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.admin.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "profile", app.config.Profile, "identity", app.identity)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startAdminServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(ctx, "App stopped")
}
