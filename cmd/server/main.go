package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
	"github.com/invoiceflow/backend/internal/infrastructure/accounting"
	"github.com/invoiceflow/backend/internal/infrastructure/auth"
	"github.com/invoiceflow/backend/internal/infrastructure/cache"
	"github.com/invoiceflow/backend/internal/infrastructure/config"
	"github.com/invoiceflow/backend/internal/infrastructure/event"
	"github.com/invoiceflow/backend/internal/infrastructure/export"
	"github.com/invoiceflow/backend/internal/infrastructure/logger"
	"github.com/invoiceflow/backend/internal/infrastructure/migration"
	"github.com/invoiceflow/backend/internal/infrastructure/ocr"
	"github.com/invoiceflow/backend/internal/infrastructure/persistence"
	"github.com/invoiceflow/backend/internal/infrastructure/scheduler"
	"github.com/invoiceflow/backend/internal/infrastructure/seed"
	"github.com/invoiceflow/backend/internal/infrastructure/storage"
	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
	"github.com/invoiceflow/backend/internal/interfaces/http/handler"
	"github.com/invoiceflow/backend/internal/interfaces/http/middleware"
	"github.com/invoiceflow/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting invoice service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log.Named("telemetry"))
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log.Named("telemetry"))
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log.Named("telemetry"))
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		if err := loggerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	log = loggerProvider.Bridge(log)
	zap.ReplaceGlobals(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log.Named("profiler"))
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	invoiceMetrics, err := telemetry.NewInvoiceMetrics(meterProvider.Meter(telemetry.TracerName), log.Named("metrics"))
	if err != nil {
		log.Fatal("Failed to register invoice metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if stats, err := db.Stats(); err == nil {
			log.Info("Database pool at shutdown",
				zap.Int("open_connections", stats.OpenConnections),
				zap.Int64("wait_count", stats.WaitCount),
				zap.Duration("wait_duration", stats.WaitDuration),
			)
		}
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", db.Driver))

	dbSystem := "postgresql"
	if db.Driver == "sqlite" {
		dbSystem = "sqlite"
	}
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, log.Named("db_tracing"))
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	if err := migrateSchema(db, cfg.Database.MigrationsPath, log); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	mappingRepo := persistence.NewGormVendorMappingRepository(db.DB)

	// Vendor mapping cache. Production replicas share Redis and must not drift onto local copies.
	mappingCache, closeCache, err := cache.NewVendorMappingCacheFactory(cfg.Cache, cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.IsProduction()),
	).Create(ctx)
	if err != nil {
		log.Fatal("Failed to create vendor mapping cache", zap.Error(err))
	}
	defer func() {
		if err := closeCache(); err != nil {
			log.Error("Error closing vendor mapping cache", zap.Error(err))
		}
	}()

	// Document archive
	var (
		documents   invoiceapp.DocumentStorage
		storagePing func(context.Context) error
	)
	if cfg.Storage.Enabled {
		storageCtx, cancelStorage := context.WithTimeout(ctx, 30*time.Second)
		s3Storage, err := storage.OpenS3DocumentStorage(storageCtx, &cfg.Storage,
			storage.WithLogger(log.Named("storage")),
			storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
		)
		cancelStorage()
		if err != nil {
			log.Fatal("Failed to initialize document storage", zap.Error(err))
		}
		documents = s3Storage
		storagePing = s3Storage.Ping
		log.Info("Using S3 document storage", zap.String("bucket", cfg.Storage.Bucket))
	} else {
		log.Warn("Document storage disabled, uploads are not archived")
	}

	// Parsers
	clientOpts := []ocr.ClientOption{
		ocr.WithLogger(log.Named("ocr")),
		ocr.WithPollInterval(cfg.Processing.PollInterval),
		ocr.WithPollTimeout(cfg.Processing.PollTimeout),
		ocr.WithRequestTimeout(cfg.Processing.RequestTimeout),
		ocr.WithTracing(cfg.Telemetry.Enabled),
	}
	schema, err := ocr.NewExtractionSchema()
	if err != nil {
		log.Fatal("Failed to compile extraction schema", zap.Error(err))
	}
	parserChain := invoiceapp.NewParserChain([]invoiceapp.DocumentParser{
		ocr.NewLlamaCloudClient(cfg.LlamaCloud, clientOpts...),
		ocr.NewGroundXClient(cfg.GroundX, clientOpts...),
	}, log.Named("parser"),
		invoiceapp.WithExtractionValidator(schema),
		invoiceapp.WithParseObserver(invoiceMetrics),
	)

	accountingClient, err := accounting.NewClient(cfg.Zoho, log.Named("accounting"),
		accounting.WithTimeout(cfg.Processing.RequestTimeout),
		accounting.WithTracing(cfg.Telemetry.Enabled),
	)
	if err != nil {
		log.Fatal("Failed to initialize accounting client", zap.Error(err))
	}

	// Domain events
	eventBus := event.NewInMemoryEventBus(log.Named("events"))
	eventBus.Subscribe(invoiceapp.NewOutcomeHandler(invoiceMetrics, log.Named("outcome")))

	// Application services
	mappingService := invoiceapp.NewVendorMappingService(mappingRepo, invoiceRepo,
		invoiceapp.WithMappingCache(mappingCache),
		invoiceapp.WithMappingLogger(log.Named("vendor_mapping")),
	)
	invoiceService := invoiceapp.NewInvoiceService(invoiceRepo, mappingRepo, parserChain, mappingService,
		invoiceapp.WithDocumentStorage(documents),
		invoiceapp.WithAccountingClient(accountingClient),
		invoiceapp.WithExporter(export.NewXLSXExporter(log.Named("export"))),
		invoiceapp.WithEventPublisher(eventBus),
		invoiceapp.WithUploadRecorder(invoiceMetrics),
		invoiceapp.WithLogger(log.Named("invoice")),
		invoiceapp.WithStuckTimeout(cfg.Processing.StuckTimeout),
		invoiceapp.WithDocumentURLTTL(cfg.Storage.PresignExpiration),
	)

	if cfg.Processing.SeedFile != "" {
		res, err := seed.NewSeeder(mappingService, log.Named("seed")).ApplyFile(ctx, cfg.Processing.SeedFile)
		if err != nil {
			log.Fatal("Failed to seed vendor mappings", zap.Error(err), zap.String("file", cfg.Processing.SeedFile))
		}
		log.Info("Vendor mapping seed applied",
			zap.String("file", cfg.Processing.SeedFile),
			zap.Int("created", res.Created),
			zap.Int("updated", res.Updated),
		)
	}

	// Stuck invoice sweeper
	sweeper := scheduler.NewStuckInvoiceSweeper(invoiceService, log.Named("sweeper"), scheduler.StuckInvoiceSweeperConfig{
		Enabled:  true,
		Interval: cfg.Processing.SweepInterval,
	})
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start stuck invoice sweeper", zap.Error(err))
	}
	// invoices left processing by a previous process are failed right away
	if err := sweeper.TriggerImmediateSweep(); err != nil {
		log.Warn("Initial stuck invoice sweep not started", zap.Error(err))
	}
	defer func() {
		if err := sweeper.Stop(context.Background()); err != nil {
			log.Error("Error stopping stuck invoice sweeper", zap.Error(err))
		}
	}()

	// HTTP engine
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	tracingConfig := middleware.DefaultTracingConfig()
	tracingConfig.ServiceName = cfg.Telemetry.ServiceName
	tracingConfig.Enabled = cfg.Telemetry.Enabled

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.SecureWithConfig(middleware.DefaultSecurityConfig()))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(tracingConfig))
		engine.Use(middleware.SpanAttributes())
	}
	engine.Use(middleware.HTTPMetrics(meterProvider, log))

	healthHandler := handler.NewHealthHandler(telemetry.ServiceVersion, healthChecks(db, storagePing, mappingCache, sweeper)...)
	engine.GET("/health", healthHandler.Check)

	var routerOpts []router.RouterOption
	routerOpts = append(routerOpts, router.WithAPIVersion("v1"))
	if cfg.Auth.Enabled {
		jwtService, err := auth.NewJWTService(cfg.Auth)
		if err != nil {
			log.Fatal("Failed to initialize JWT service", zap.Error(err))
		}
		jwtConfig := middleware.DefaultJWTConfig(jwtService)
		jwtConfig.Logger = log
		routerOpts = append(routerOpts, router.WithAPIMiddleware(middleware.JWTAuthMiddlewareWithConfig(jwtConfig)))
		log.Info("Bearer token authentication enabled", zap.String("issuer", cfg.Auth.Issuer))
	}

	r := router.NewRouter(engine, routerOpts...)
	r.Register(router.InvoiceRoutes(handler.NewInvoiceHandler(invoiceService,
		handler.WithMaxUploadSize(cfg.Processing.MaxUploadSize),
	)))
	r.Register(router.VendorMappingRoutes(handler.NewVendorMappingHandler(mappingService)))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}

// migrateSchema applies SQL migrations on Postgres. SQLite databases are
// created from the persistence models instead.
func migrateSchema(db *persistence.Database, migrationsPath string, log *zap.Logger) error {
	if db.Driver == "sqlite" {
		return persistence.AutoMigrate(db.DB)
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, migrationsPath, log)
	if err != nil {
		return err
	}
	// Closing the migrator would close the shared connection pool
	return m.Up()
}

// healthChecks builds the dependency checks reported by GET /health
func healthChecks(db *persistence.Database, storagePing func(context.Context) error, mappingCache invoiceapp.VendorMappingCache, sweeper *scheduler.StuckInvoiceSweeper) []handler.HealthCheck {
	checks := []handler.HealthCheck{
		{Name: "database", Critical: true, Check: db.Ping},
		{Name: "storage", Check: storagePing},
		{Name: "sweeper", Check: func(context.Context) error {
			if !sweeper.IsRunning() {
				return errors.New("stuck invoice sweeper is not running")
			}
			return nil
		}},
	}
	cacheCheck := handler.HealthCheck{Name: "cache"}
	if pinger, ok := mappingCache.(interface{ Ping(context.Context) error }); ok {
		cacheCheck.Check = pinger.Ping
	} else if mappingCache != nil {
		cacheCheck.Check = func(context.Context) error { return nil }
	}
	return append(checks, cacheCheck)
}
