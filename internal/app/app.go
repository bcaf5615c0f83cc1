// Package app builds the services a run needs from configuration and owns
// their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-etl/internal/clock/system"
	"github.com/JakeFAU/wayback-etl/internal/config"
	"github.com/JakeFAU/wayback-etl/internal/fetcher/httpfetch"
	"github.com/JakeFAU/wayback-etl/internal/hash/sha256"
	"github.com/JakeFAU/wayback-etl/internal/id/uuid"
	"github.com/JakeFAU/wayback-etl/internal/logging"
	"github.com/JakeFAU/wayback-etl/internal/metrics"
	"github.com/JakeFAU/wayback-etl/internal/pipeline"
	gcppublisher "github.com/JakeFAU/wayback-etl/internal/publisher/pubsub"
	"github.com/JakeFAU/wayback-etl/internal/ratelimit"
	gcsstorage "github.com/JakeFAU/wayback-etl/internal/storage/gcs"
	localstorage "github.com/JakeFAU/wayback-etl/internal/storage/local"
	memorystore "github.com/JakeFAU/wayback-etl/internal/store/memory"
	mongostore "github.com/JakeFAU/wayback-etl/internal/store/mongo"
	pgstore "github.com/JakeFAU/wayback-etl/internal/store/postgres"
	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

// App holds the long-lived services of one run.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string

	store        wayback.Store
	blobStore    wayback.BlobStore
	gcsBlobStore *gcsstorage.BlobStore
	publisher    wayback.Publisher
	pubsubClient *pubsub.Client
	gcpPublisher *gcppublisher.Publisher
	runner       *pipeline.Runner
	fetchOpts    []httpfetch.Option
}

// Option customizes App construction.
type Option func(*App)

// WithFetcherOptions passes options through to the HTTP fetcher.
func WithFetcherOptions(opts ...httpfetch.Option) Option {
	return func(a *App) {
		a.fetchOpts = append(a.fetchOpts, opts...)
	}
}

// New wires every service described by cfg. Services opened before a failure
// are closed again before the error is returned.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	app := &App{
		cfg:    cfg,
		logger: logging.ForRun(logger, runID),
		runID:  runID,
	}
	for _, opt := range opts {
		opt(app)
	}
	metrics.Init()

	if err := app.setup(ctx); err != nil {
		if closeErr := app.Close(ctx); closeErr != nil {
			app.logger.Warn("cleanup after failed setup", zap.Error(closeErr))
		}
		return nil, err
	}
	app.logger.Info("application services initialized")
	return app, nil
}

func (a *App) setup(ctx context.Context) error {
	var err error
	if a.store, err = setupStore(ctx, a); err != nil {
		return err
	}
	if a.blobStore, err = setupRawArchive(ctx, a); err != nil {
		return err
	}
	if a.publisher, err = setupPublisher(ctx, a); err != nil {
		return err
	}

	fetchOpts := a.fetchOpts
	if a.cfg.HTTP.RequestsPerSecond > 0 {
		a.logger.Info("pacing archive requests", zap.Float64("rps", a.cfg.HTTP.RequestsPerSecond))
		limiter := ratelimit.New(ratelimit.Config{RPS: a.cfg.HTTP.RequestsPerSecond, Burst: a.cfg.HTTP.Burst})
		fetchOpts = append([]httpfetch.Option{httpfetch.WithLimiter(limiter)}, fetchOpts...)
	}
	fetcher := httpfetch.New(httpfetch.Config{
		MaxAttempts:    a.cfg.HTTP.MaxAttempts,
		InitialBackoff: a.cfg.InitialBackoff(),
		Timeout:        a.cfg.FetchTimeout(),
		UserAgent:      a.cfg.HTTP.UserAgent,
	}, a.logger.Named("fetcher"), fetchOpts...)

	var hasher wayback.Hasher
	if a.blobStore != nil {
		hasher = sha256.New()
	}
	a.runner = pipeline.New(
		fetcher,
		a.store,
		system.New(),
		a.blobStore,
		hasher,
		a.publisher,
		pipeline.Config{
			RunID:      a.runID,
			Archive:    a.cfg.ArchiveEndpoints(),
			Database:   a.cfg.Mongo.Database,
			Collection: a.cfg.Mongo.Collection,
			BlobPrefix: a.cfg.RawArchive.Prefix,
			Topic:      a.cfg.PubSub.Topic,
		},
		a.logger.Named("pipeline"),
	)
	return nil
}

func setupStore(ctx context.Context, a *App) (wayback.Store, error) {
	switch a.cfg.Store.Provider {
	case config.StorePostgres:
		a.logger.Info("using postgres record store")
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      a.cfg.Postgres.DSN,
			MaxConns: a.cfg.Postgres.MaxConns,
		}, a.logger.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		return store, nil
	case config.StoreMemory:
		a.logger.Warn("using in-memory record store, records will not be persisted")
		return memorystore.New(), nil
	default:
		store, err := mongostore.New(ctx, a.cfg.Mongo.URI, a.logger.Named("mongo"))
		if err != nil {
			return nil, fmt.Errorf("mongo store init failed: %w", err)
		}
		return store, nil
	}
}

func setupRawArchive(ctx context.Context, a *App) (wayback.BlobStore, error) {
	switch a.cfg.RawArchive.Provider {
	case config.RawArchiveGCS:
		a.logger.Info("archiving raw payloads to GCS", zap.String("bucket", a.cfg.RawArchive.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.RawArchive.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcsBlobStore = blobStore
		return blobStore, nil
	case config.RawArchiveLocal:
		a.logger.Info("archiving raw payloads locally", zap.String("dir", a.cfg.RawArchive.Dir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.RawArchive.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		a.logger.Debug("raw payload archive disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, a *App) (wayback.Publisher, error) {
	if !a.cfg.NotificationsEnabled() {
		a.logger.Debug("no Pub/Sub topic configured, record notifications disabled")
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.gcpPublisher = gcppublisher.New(a.pubsubClient.Topic(a.cfg.PubSub.Topic))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return a.gcpPublisher, nil
}

// Run executes the pipeline over urls and pushes metrics when a Pushgateway is
// configured, whether or not the run succeeded.
func (a *App) Run(ctx context.Context, urls []string) (pipeline.Summary, error) {
	a.logger.Info("run starting", zap.Strings("urls", urls))
	summary, err := a.runner.Run(ctx, urls)
	if gateway := a.cfg.Metrics.PushgatewayURL; gateway != "" {
		// The run context may already be canceled; the push still gets a chance.
		if pushErr := metrics.Push(context.WithoutCancel(ctx), gateway, a.cfg.Metrics.Job); pushErr != nil {
			a.logger.Warn("metrics push failed", zap.Error(pushErr))
		}
	}
	return summary, err
}

// RunID identifies this run in logs, blob paths and notifications.
func (a *App) RunID() string {
	return a.runID
}

// Store exposes the record store.
func (a *App) Store() wayback.Store {
	return a.store
}

// Close releases every service. It is safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if a.gcsBlobStore != nil {
		if err := a.gcsBlobStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close record store: %w", err))
		}
	}
	a.logger.Info("application services closed")
	return errors.Join(errs...)
}
