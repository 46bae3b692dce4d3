package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/bill-extractor/internal/admin"
	"github.com/joseph-ayodele/bill-extractor/internal/async"
	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/drive"
	"github.com/joseph-ayodele/bill-extractor/internal/export"
	"github.com/joseph-ayodele/bill-extractor/internal/ingest"
	"github.com/joseph-ayodele/bill-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/bill-extractor/internal/ocr"
	"github.com/joseph-ayodele/bill-extractor/internal/pipeline"
	repo "github.com/joseph-ayodele/bill-extractor/internal/repository"
	"github.com/joseph-ayodele/bill-extractor/internal/secrets"
	"github.com/joseph-ayodele/bill-extractor/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if path := common.LoadDotEnv(); path != "" {
		logger.Info("loaded env file", "path", path)
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", cfg.Database.Driver)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	jobsRepo := repo.NewExtractJobRepository(db, logger)
	filesRepo := repo.NewUploadFileRepository(db, logger)
	secretsRepo := repo.NewSecretRepository(db, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var extractor ocr.Extractor
	switch cfg.OCR.Backend {
	case "local":
		extractor = ocr.NewLocalExtractor(ocr.LocalConfig{TessdataDir: cfg.OCR.TessdataDir}, logger)
	default:
		extractor = ocr.NewGeminiExtractor(ocr.GeminiConfig{
			Model:       cfg.OCR.Model,
			Temperature: cfg.OCR.Temperature,
			Timeout:     cfg.OCR.Timeout,
		}, logger)
	}
	analyzer := openai.NewClient(openai.Config{Model: cfg.LLM.Model, Timeout: cfg.LLM.Timeout}, logger)
	exporter := export.NewService(jobsRepo, logger)
	uploader := drive.NewUploader(drive.Config{}, logger)

	processor := pipeline.NewProcessor(pipeline.Config{OutputBase: cfg.App.OutputFilename, GroupByFile: cfg.Pipeline.GroupByFile}, pipeline.Deps{
		OCR:      extractor,
		Analyzer: analyzer,
		Exporter: exporter,
		Uploader: uploader,
		Jobs:     jobsRepo,
		Files:    filesRepo,
		Metrics:  pipeline.NewMetrics(registry),
	}, logger)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.Timeout),
		async.WithRegisterer(registry),
	)

	sm := secrets.NewManager(cfg.Secrets, cfg.App.DriveFolderID, secretsRepo, logger)
	auth := admin.New(sm, cfg.Session.SecretKey, cfg.Session.MaxAge, logger,
		admin.WithSecureCookie(!cfg.Secrets.UseLocalEnv),
	)

	e := server.New(&server.Dependencies{
		Ingest:  ingest.NewService(jobsRepo, filesRepo, logger),
		Queue:   queue,
		Secrets: sm,
		Auth:    auth,
		Export:  exporter,
		Limits: server.Limits{
			MaxFileCount:   cfg.App.MaxFileCount,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			ExtractRate:    cfg.Server.ExtractRate,
			ExtractBurst:   cfg.Server.ExtractBurst,
		},
		WasmDir:  cfg.Server.WasmDir,
		Registry: registry,
		Logger:   logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC carries only the health service for orchestrator probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		go func() {
			logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC serve error", "error", err)
				stop()
			}
		}()
	}

	go func() {
		logger.Info("bill-extractor listening", "addr", cfg.Server.HTTPAddr, "ocr_backend", cfg.OCR.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.Timeout+10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	logger.Info("stopped")
}
