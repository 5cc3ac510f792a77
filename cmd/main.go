package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/esports-betting/config"
	"github.com/Dosada05/esports-betting/db"
	"github.com/Dosada05/esports-betting/handlers"
	"github.com/Dosada05/esports-betting/odds"
	"github.com/Dosada05/esports-betting/repositories"
	api "github.com/Dosada05/esports-betting/routes"
	"github.com/Dosada05/esports-betting/services"
	"github.com/Dosada05/esports-betting/storage"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// суммы и коэффициенты уходят клиенту числами, а не строками
	decimal.MarshalJSONWithoutQuotes = true

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
	err = db.EnsureSchema(schemaCtx, dbConn)
	cancelSchema()
	if err != nil {
		logger.Error("failed to apply database schema", slog.Any("error", err))
		os.Exit(1)
	}

	// Загрузчик отчётов (Cloudflare R2) опционален
	var reportUploader storage.FileUploader
	if cfg.ReportsEnabled() {
		reportUploader, err = storage.NewCloudflareR2Uploader(context.Background(), storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized", slog.String("bucket", cfg.R2BucketName))
	} else {
		logger.Warn("R2 settings incomplete, report export disabled")
	}

	// Инициализация WebSocket Hub
	oddsHub := odds.NewHub()
	go oddsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	betRepo := repositories.NewPostgresBetRepository(dbConn)
	catalogRepo := repositories.NewPostgresCatalogRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	authService := services.NewAuthService(userRepo)
	betService := services.NewBetService(betRepo, oddsHub, logger)
	readService := services.NewReadService(catalogRepo)
	reportService := services.NewReportService(catalogRepo, betRepo, reportUploader, logger)
	logger.Info("Services initialized")

	// Инициализация обработчиков HTTP
	h := api.Handlers{
		Auth:      handlers.NewAuthHandler(authService, cfg.JWTSecretKey, cfg.JWTTTL),
		Bets:      handlers.NewBetHandler(betService),
		Catalog:   handlers.NewCatalogHandler(readService),
		Reports:   handlers.NewReportHandler(reportService),
		WebSocket: handlers.NewWebSocketHandler(oddsHub, readService, cfg.CORSAllowedOrigins),
	}
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, h, api.Options{
		JWTSecret:      cfg.JWTSecretKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// WriteTimeout не задан: он оборвал бы websocket-соединения
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
