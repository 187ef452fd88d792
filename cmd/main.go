package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"quotefiles/internal/config"
	"quotefiles/internal/handler"
	"quotefiles/internal/preview"
	"quotefiles/internal/repository"
	"quotefiles/internal/service"
	"quotefiles/internal/service/s3"
)

// InitLogger создаёт production или development логгер
func InitLogger(isDev bool) (*zap.Logger, error) {
	var cfg zap.Config
	if isDev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// newPreviewStore выбирает хранилище ссылок предпросмотра.
// Для memory дополнительно возвращается обработчик /v1/blobs/{id}.
func newPreviewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (preview.Store, *preview.Handler, error) {
	if cfg.Preview.Backend == config.PreviewBackendS3 {
		client, err := s3.NewClient(ctx, &cfg.S3, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return s3.NewPreviewStore(client, cfg.S3.Prefix, cfg.S3.PresignTTL), nil, nil
	}

	store := preview.NewMemoryStore(strings.TrimRight(cfg.Server.BaseURL, "/") + "/v1/blobs")
	return store, preview.NewHandler(store), nil
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Загружаем конфигурацию
	appConfig, err := config.NewConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := InitLogger(appConfig.Log.Dev)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Клиент File Service и репозитории
	client := repository.NewClient(appConfig.FileAPI.BaseURL, appConfig.FileAPI.Timeout, logger)
	fileRepo := repository.NewFileRepository(client)
	shareRepo := repository.NewShareRepository(client)

	previewStore, blobHandler, err := newPreviewStore(ctx, appConfig, logger)
	if err != nil {
		logger.Fatal("Failed to init preview store", zap.Error(err))
	}

	// Инициализация сервисов
	feed := service.NewNotificationFeed(service.FeedConfig{
		Capacity: appConfig.Notice.Capacity,
		TTL:      appConfig.Notice.TTL,
	}, logger)

	previews := preview.NewManager(fileRepo, previewStore, preview.Config{
		ExternalGrace:    appConfig.Preview.ExternalGrace,
		ThumbnailMaxSize: appConfig.Preview.ThumbnailMaxSize,
	}, logger)

	fileService := service.NewFileService(fileRepo, feed, previews, service.CatalogConfig{
		Size: appConfig.Catalog.Size,
		TTL:  appConfig.Catalog.TTL,
	}, logger)

	uploadService := service.NewUploadService(fileRepo, feed, service.UploadConfig{
		MaxSize:      appConfig.Upload.MaxSize,
		MaxCount:     appConfig.Upload.MaxCount,
		DismissAfter: appConfig.Upload.DismissAfter,
	}, logger)
	uploadService.OnComplete(fileService.OnUploadComplete)

	versionService := service.NewVersionService(fileRepo, feed, logger)
	versionService.OnChange(fileService.RefreshFile)

	shareService := service.NewShareService(shareRepo, feed, service.ShareConfig{
		BaseURL: appConfig.Share.BaseURL,
	}, logger)

	// Инициализация хендлеров
	router := handler.NewRouter(handler.Handlers{
		Files:         handler.NewFileHandler(fileService, versionService, logger),
		Uploads:       handler.NewUploadHandler(uploadService, logger),
		Shares:        handler.NewShareHandler(shareService, logger),
		Views:         handler.NewViewHandler(previews, fileService, logger),
		Notifications: handler.NewNotificationHandler(feed, logger),
		Blobs:         blobHandler,
	}, handler.RouterOptions{
		AllowedOrigins: appConfig.Server.AllowedOrigins,
		RequireAuth:    appConfig.Server.RequireAuth,
	}, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: router,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("port", appConfig.Server.Port),
			zap.String("file_api", appConfig.FileAPI.BaseURL),
			zap.String("preview_backend", appConfig.Preview.Backend),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := uploadService.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Uploads interrupted by shutdown", zap.Error(err))
	}
	previews.Shutdown()

	logger.Info("Server exited properly")
}
