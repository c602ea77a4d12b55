// Package app initializes and holds long-lived application services, acting as a
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-directory/internal/airtable"
	"github.com/JakeFAU/product-directory/internal/api"
	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/clock/system"
	"github.com/JakeFAU/product-directory/internal/config"
	"github.com/JakeFAU/product-directory/internal/directory"
	collyfetcher "github.com/JakeFAU/product-directory/internal/fetcher/colly"
	"github.com/JakeFAU/product-directory/internal/id/uuid"
	"github.com/JakeFAU/product-directory/internal/imagehost"
	"github.com/JakeFAU/product-directory/internal/imagehost/imgbb"
	"github.com/JakeFAU/product-directory/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/product-directory/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/product-directory/internal/publisher/pubsub"
	"github.com/JakeFAU/product-directory/internal/storage"
	gcsstorage "github.com/JakeFAU/product-directory/internal/storage/gcs"
	localstorage "github.com/JakeFAU/product-directory/internal/storage/local"
	memorystorage "github.com/JakeFAU/product-directory/internal/storage/memory"
	pgstore "github.com/JakeFAU/product-directory/internal/storage/postgres"
)

// LogoUpdatedEvent is the event attribute on logo-updated messages.
const LogoUpdatedEvent = "logo.updated"

// App holds the shared, long-lived services for one command invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	records *airtable.Client
	closers []func()
}

// New builds the services every command needs. Command-specific collaborators are
// built lazily by NewRunner and NewServer.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Airtable.RequestsPerSecond})
	records, err := airtable.New(airtable.Config{
		BaseURL:   cfg.Airtable.BaseURL,
		APIKey:    cfg.Airtable.APIKey,
		BaseID:    cfg.Airtable.BaseID,
		Table:     cfg.Airtable.TableName,
		View:      cfg.Airtable.View,
		LogoField: cfg.Backfill.LogoField,
		Timeout:   cfg.AirtableTimeout(),
	}, limiter, logger.Named("airtable"))
	if err != nil {
		return nil, fmt.Errorf("init airtable client: %w", err)
	}
	return &App{cfg: cfg, logger: logger, records: records}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Records returns the Airtable record store.
func (a *App) Records() *airtable.Client {
	return a.records
}

// NewRunner wires a backfill.Runner. In dry-run mode logos are uploaded to the
// in-memory host and records are never written back.
func (a *App) NewRunner(ctx context.Context, dryRun bool) (*backfill.Runner, error) {
	dryRun = dryRun || a.cfg.Backfill.DryRun

	hostCfg := a.cfg
	if dryRun {
		hostCfg.ImageHost.Provider = config.ProviderMemory
	}
	if err := hostCfg.ValidateImageHost(); err != nil {
		return nil, err
	}
	host, err := a.buildImageHost(ctx, hostCfg.ImageHost)
	if err != nil {
		return nil, err
	}

	lookup := collyfetcher.New(collyfetcher.Config{
		BaseURL:   a.cfg.Lookup.BaseURL,
		UserAgent: a.cfg.Lookup.UserAgent,
		Timeout:   a.cfg.LookupTimeout(),
	})

	var opts []backfill.Option
	if a.cfg.DB.DSN != "" {
		store, err := pgstore.NewOutcomeStore(ctx, pgstore.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.Table,
			MaxConns: int32(a.cfg.DB.MaxOpenConns),
		})
		if err != nil {
			return nil, fmt.Errorf("init outcome store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, backfill.WithRecorder(store))
		a.logger.Info("audit trail enabled", zap.String("table", a.cfg.DB.Table))
	}
	if a.cfg.PubSub.TopicName != "" {
		publisher, err := a.buildPublisher(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, backfill.WithPublisher(publisher))
	}

	clock := system.New()
	runner := backfill.New(
		a.records,
		lookup,
		host,
		clock,
		clock,
		uuid.New(),
		backfill.Config{
			Fields: backfill.FieldNames{
				Website: a.cfg.Backfill.WebsiteField,
				Logo:    a.cfg.Backfill.LogoField,
			},
			Pacing:           a.cfg.Pacing(),
			RateLimitBackoff: a.cfg.RateLimitBackoff(),
			DryRun:           dryRun,
			Topic:            a.cfg.PubSub.TopicName,
		},
		a.logger.Named("backfill"),
		opts...,
	)
	return runner, nil
}

func (a *App) buildImageHost(ctx context.Context, cfg config.ImageHostConfig) (backfill.ImageHost, error) {
	if cfg.Provider == config.ProviderImgBB {
		a.logger.Info("using imgbb image host")
		client, err := imgbb.New(imgbb.Config{
			APIKey:   cfg.ImgBB.APIKey,
			Endpoint: cfg.ImgBB.Endpoint,
		}, a.logger.Named("imgbb"))
		if err != nil {
			return nil, fmt.Errorf("init imgbb: %w", err)
		}
		return client, nil
	}

	var (
		store      storage.BlobStore
		publicBase = cfg.PublicBaseURL
	)
	switch cfg.Provider {
	case config.ProviderGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		gcs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		if publicBase == "" {
			publicBase = gcs.PublicURL("")
		}
		store = gcs
	case config.ProviderLocal:
		local, err := localstorage.New(localstorage.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		store = local
	case config.ProviderMemory:
		store = memorystorage.NewBlobStore()
	default:
		return nil, fmt.Errorf("unknown imagehost.provider %q", cfg.Provider)
	}
	a.logger.Info("using blob image host", zap.String("provider", cfg.Provider))
	host, err := imagehost.NewBlobHost(store, imagehost.Config{Prefix: cfg.Prefix, PublicBaseURL: publicBase})
	if err != nil {
		return nil, fmt.Errorf("init blob host: %w", err)
	}
	return host, nil
}

func (a *App) buildPublisher(ctx context.Context) (backfill.Publisher, error) {
	if a.cfg.PubSub.Provider == config.PublisherMemory {
		return memorypublisher.New(a.logger.Named("events")), nil
	}
	client, err := gcpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	publisher := gcppublisher.New(client, LogoUpdatedEvent)
	a.closers = append(a.closers, func() {
		publisher.Close()
		if err := client.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	})
	a.logger.Info("publishing logo events", zap.String("topic", a.cfg.PubSub.TopicName))
	return publisher, nil
}

// NewServer wires the directory API.
func (a *App) NewServer() *api.Server {
	fields := directory.DefaultFields()
	fields.Website = a.cfg.Backfill.WebsiteField
	fields.Logo = a.cfg.Backfill.LogoField
	catalog := directory.NewService(a.records, fields)
	return api.NewServer(catalog, a.cfg, a.logger.Named("api"))
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
