package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pesio-ai/be-visitor-gatepass/internal/auth"
	"github.com/pesio-ai/be-visitor-gatepass/internal/handler"
	"github.com/pesio-ai/be-visitor-gatepass/internal/notify"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/config"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/database"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/metrics"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository"
	"github.com/pesio-ai/be-visitor-gatepass/internal/repository/memory"
	"github.com/pesio-ai/be-visitor-gatepass/internal/service"
	"github.com/pesio-ai/be-visitor-gatepass/migrations"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("timezone", cfg.Service.Timezone).
		Bool("enforce_step_order", cfg.Workflow.EnforceStepOrder).
		Msg("Starting Visitor Gate Pass Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer closeStore()

	// Initialize metrics
	rec, err := metrics.New(metrics.Config{
		Enabled:      cfg.Metrics.Enabled,
		Address:      cfg.Metrics.StatsdAddr,
		SamplingRate: cfg.Metrics.SamplingRate,
		Service:      cfg.Service.Name,
		Environment:  cfg.Service.Environment,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}
	defer rec.Close()

	// Initialize notifications
	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.NATS.URL != "" {
		conn, err := notify.Connect(cfg.NATS.URL, cfg.Service.Name, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer conn.Drain()
		notifier = notify.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix, cfg.NATS.PublishTimeout, log)
		log.Info().Str("url", cfg.NATS.URL).Msg("Publishing notifications to NATS")
	}

	// Initialize services
	svcCfg := service.Config{
		EnforceStepOrder:  cfg.Workflow.EnforceStepOrder,
		ArrivalGrace:      cfg.Workflow.ArrivalGrace,
		TrackingCodeTries: cfg.Workflow.TrackingCodeTries,
		NotifyTimeout:     cfg.Workflow.NotifyTimeout,
		Location:          cfg.Location(),
	}
	requestService := service.NewVisitorRequestService(store, rec, svcCfg, log)
	approvalService := service.NewApprovalService(store, notifier, rec, svcCfg, log)
	templateService := service.NewWorkflowTemplateService(store, notifier, rec, svcCfg, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(requestService, approvalService, templateService, log)
	router := handler.NewRouter(httpHandler, handler.RouterConfig{
		Verifier:       auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics:        rec,
		Log:            log,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcServer := handler.NewGRPCServer(log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()
	grpcServer.SetServing(true)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	grpcServer.SetServing(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.Shutdown()

	log.Info().Msg("Server stopped")
}

// openStore builds the configured persistence backend and returns its
// cleanup function.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, func(), error) {
	if cfg.Store.Driver == "memory" {
		store := memory.New()
		if cfg.Store.SeedFile != "" {
			if err := store.LoadSeedFile(ctx, cfg.Store.SeedFile); err != nil {
				return nil, nil, fmt.Errorf("load seed file: %w", err)
			}
			log.Info().Str("file", cfg.Store.SeedFile).Msg("Directory seed loaded")
		}
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		return store, func() {}, nil
	}

	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info().Msg("Database migrations applied")
	}
	return repository.NewPostgresStore(db), db.Close, nil
}
