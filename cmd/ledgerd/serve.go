package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/ledgerd/internal/config"
	"github.com/fyrsmithlabs/ledgerd/internal/embeddings"
	"github.com/fyrsmithlabs/ledgerd/internal/extraction"
	ledgerdhttp "github.com/fyrsmithlabs/ledgerd/internal/http"
	"github.com/fyrsmithlabs/ledgerd/internal/logging"
	"github.com/fyrsmithlabs/ledgerd/internal/parsecache"
	"github.com/fyrsmithlabs/ledgerd/internal/service"
	"github.com/fyrsmithlabs/ledgerd/internal/vendor"
	"github.com/fyrsmithlabs/ledgerd/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledgerd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return run(ctx)
	},
}

// run initializes every collaborator, starts the HTTP server and the
// background workers, and blocks until the context is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting ledgerd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore_backend", cfg.VectorStore.Backend))

	var db *gorm.DB
	if cfg.Database.DSN.IsSet() {
		db, err = gorm.Open(postgres.Open(cfg.Database.DSN.Value()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database connected")
	} else {
		logger.Warn("no database configured, using in-memory storage")
	}

	svc, maintainer, closers, err := buildService(cfg, db, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
		}
	}()

	srv, err := ledgerdhttp.NewServer(svc, logger, &ledgerdhttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	worker := service.NewEmbeddingWorker(svc, time.Minute, logger)
	go worker.Run(ctx)
	if maintainer != nil {
		go maintainer.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// buildService wires the extraction pipeline, vendor normalizer, embedding
// chain, and stores into the orchestrating service. The returned closers
// release provider and store resources in order.
func buildService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*service.Service, *vectorstore.IndexMaintainer, []func() error, error) {
	var closers []func() error

	var templates []extraction.Template
	if cfg.Extraction.TemplatesDir != "" {
		loaded, err := extraction.LoadDir(cfg.Extraction.TemplatesDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading templates: %w", err)
		}
		templates = loaded
	}

	generative, err := extraction.NewLLMExtractor(extraction.LLMConfig{
		BaseURL:    cfg.Extraction.Generative.BaseURL,
		Model:      cfg.Extraction.Generative.Model,
		APIKey:     cfg.Extraction.Generative.APIKey.Value(),
		Timeout:    cfg.Extraction.Generative.Timeout.Duration(),
		MaxRetries: cfg.Extraction.Generative.MaxRetries,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating generative extractor: %w", err)
	}
	if !generative.Available() {
		logger.Warn("generative extraction disabled, no API key configured")
	}

	pipeline := extraction.NewPipeline(extraction.Config{
		ConfidenceThreshold: cfg.Extraction.ConfidenceThreshold,
		Templates:           templates,
	}, generative, logger)

	providers, dimension, err := buildProviders(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, p := range providers {
		closers = append(closers, p.Close)
	}

	chain, err := embeddings.NewChain(embeddings.ChainConfig{
		MaxRetries:  cfg.Embeddings.MaxRetries,
		BaseBackoff: cfg.Embeddings.BaseBackoff.Duration(),
	}, embeddings.NewMemoryCache(), logger, providers...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating embedding chain: %w", err)
	}

	vectors, err := vectorstore.NewStore(vectorstore.Config{
		Backend:   cfg.VectorStore.Backend,
		Metric:    vectorstore.Metric(cfg.VectorStore.Metric),
		Dimension: dimension,
		Path:      cfg.VectorStore.Path,
	}, db, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating vector store: %w", err)
	}
	closers = append(closers, vectors.Close)

	var maintainer *vectorstore.IndexMaintainer
	if cfg.VectorStore.Backend == "pgvector" {
		maintainer = vectorstore.NewIndexMaintainer(db,
			vectorstore.Metric(cfg.VectorStore.Metric),
			cfg.VectorStore.MaintenanceInterval.Duration(), logger)
	}

	deps := service.Deps{
		Extractor: pipeline,
		Embedder:  chain,
		Vectors:   vectors,
		Logger:    logger,
	}
	if db != nil {
		invoices, err := service.NewPostgresInvoiceStore(db)
		if err != nil {
			return nil, nil, nil, err
		}
		jobs, err := service.NewPostgresJobStore(db)
		if err != nil {
			return nil, nil, nil, err
		}
		vendors, err := vendor.NewPostgresStore(db)
		if err != nil {
			return nil, nil, nil, err
		}
		cache, err := parsecache.NewPostgresCache(db)
		if err != nil {
			return nil, nil, nil, err
		}
		deps.Invoices = invoices
		deps.Jobs = jobs
		deps.Vendors = vendors
		deps.Cache = cache
	} else {
		deps.Invoices = service.NewMemoryInvoiceStore()
		deps.Jobs = service.NewMemoryJobStore()
		deps.Vendors = vendor.NewMemoryStore()
		deps.Cache = parsecache.NewMemoryCache()
	}
	deps.Normalizer = vendor.NewNormalizer(deps.Vendors, cfg.Vendor.FuzzyThreshold, logger)

	svc, err := service.New(deps)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating service: %w", err)
	}
	return svc, maintainer, closers, nil
}

// buildProviders creates the primary embedding provider and the optional
// fallback, and reports the vector dimension the store must use. Primary
// and fallback must agree on dimension or their vectors could never share
// an index.
func buildProviders(cfg *config.Config) ([]embeddings.Provider, int, error) {
	primary, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("creating embedding provider: %w", err)
	}

	providers := []embeddings.Provider{primary}
	if cfg.Embeddings.Fallback != "" {
		fallback, err := embeddings.NewProvider(embeddings.ProviderConfig{
			Provider: cfg.Embeddings.Fallback,
			Model:    cfg.Embeddings.Model,
			BaseURL:  cfg.Embeddings.BaseURL,
			CacheDir: cfg.Embeddings.CacheDir,
		})
		if err != nil {
			_ = primary.Close()
			return nil, 0, fmt.Errorf("creating fallback provider: %w", err)
		}
		if fallback.Dimension() != primary.Dimension() {
			_ = primary.Close()
			_ = fallback.Close()
			return nil, 0, fmt.Errorf("provider dimension mismatch: %d vs %d",
				primary.Dimension(), fallback.Dimension())
		}
		providers = append(providers, fallback)
	}
	return providers, primary.Dimension(), nil
}
