package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/adapters/camera"
	"github.com/tufuturo/totem/adapters/imagen"
	"github.com/tufuturo/totem/adapters/mongo"
	"github.com/tufuturo/totem/adapters/storage"
	"github.com/tufuturo/totem/domain/repositories"
	"github.com/tufuturo/totem/internal/api"
	"github.com/tufuturo/totem/internal/auth"
	"github.com/tufuturo/totem/internal/capture"
	"github.com/tufuturo/totem/internal/config"
	"github.com/tufuturo/totem/internal/dedupe"
	"github.com/tufuturo/totem/internal/gateway"
	"github.com/tufuturo/totem/internal/kiosk"
	"github.com/tufuturo/totem/internal/websocket"
	"github.com/tufuturo/totem/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	auth.SetSecret(cfg.JWTSecret)

	ctx := context.Background()
	clk := clock.New()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Transformation backend
	transformer := buildTransformer(cfg, logger)

	// Durable storage is optional; without it results are delivered inline.
	var objectStorage repositories.ObjectStorage
	if cfg.StorageConfigured() {
		s3Storage, err := storage.NewS3Storage(ctx, storage.S3Config{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}, logger)
		if err != nil {
			logger.Warn("Object storage unavailable, continuing without persistence", zap.Error(err))
		} else {
			objectStorage = s3Storage
		}
	}

	// Session archive is optional as well.
	var archive repositories.SessionArchive
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Warn("Session archive unavailable", zap.Error(err))
		} else {
			archive = mongo.NewSessionArchive(mongoClient.Database)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				mongoClient.Close(shutdownCtx)
			}()
		}
	}

	// Dedup cache with its background sweeper.
	cache := dedupe.NewCache(clk, logger)
	cache.Start()
	defer cache.Stop()

	processing := usecase.NewProcessingService(transformer, objectStorage, cache, clk, logger)

	// Kiosk state machine and the display fan-out.
	machine := kiosk.NewMachine(clk, logger)
	hub := websocket.NewHub(machine, logger)
	go hub.Run()
	machine.Subscribe(func(change kiosk.StateChange) {
		msg := websocket.StateMessage{
			Type:    "state_change",
			From:    string(change.From),
			To:      string(change.To),
			Message: change.Message,
		}
		if change.Session != nil {
			msg.RequestID = change.Session.RequestID
			msg.ImageURL = change.Session.ImageURL
			msg.FileName = change.Session.FileName
		}
		hub.Broadcast(msg)
	})

	if cfg.KioskEnabled {
		cameraDevice := buildCamera(cfg, logger)
		cameraManager := capture.NewManager(cameraDevice, logger)
		gatewayClient := gateway.NewClient("http://127.0.0.1:"+cfg.Port, logger)
		runner := kiosk.NewRunner(machine, cameraManager, gatewayClient, archive, clk, logger)
		defer runner.Stop()
		logger.Info("Kiosk loop enabled")
	} else {
		logger.Info("Kiosk loop disabled, serving the processing API only")
	}

	// Initialize API routes
	api.InitRoutes(e, hub, processing, objectStorage, cfg.AllowedDownloadDomains, cfg.DisplaySecret, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// buildTransformer picks the configured backend, falling back to the mock
// when no usable credentials are present.
func buildTransformer(cfg *config.Config, logger *zap.Logger) repositories.ImageTransformer {
	switch cfg.ImagenBackend {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY not set, using the mock transformer")
			return imagen.NewMockTransformer()
		}
		openaiConfig := imagen.NewOpenAIConfigFromEnv()
		transformer, err := imagen.NewOpenAITransformer(openaiConfig, logger)
		if err != nil {
			logger.Warn("OpenAI backend unavailable, using the mock transformer", zap.Error(err))
			return imagen.NewMockTransformer()
		}
		return transformer
	case "gemini":
		transformer, err := imagen.NewGeminiTransformer(cfg.GeminiAPIKey, cfg.Prompt, logger)
		if err != nil {
			logger.Warn("Gemini backend unavailable, using the mock transformer", zap.Error(err))
			return imagen.NewMockTransformer()
		}
		return transformer
	case "mock":
		return imagen.NewMockTransformer()
	default:
		logger.Warn("Unknown transformation backend, using the mock transformer",
			zap.String("backend", cfg.ImagenBackend))
		return imagen.NewMockTransformer()
	}
}

// buildCamera selects the frame source: a still image on disk when
// configured, a synthetic test pattern otherwise.
func buildCamera(cfg *config.Config, logger *zap.Logger) repositories.Camera {
	if cfg.CameraSource != "" {
		logger.Info("Using file camera", zap.String("source", cfg.CameraSource))
		return camera.NewFileCamera(cfg.CameraSource)
	}
	logger.Info("Using synthetic camera")
	return camera.NewSyntheticCamera()
}
