package api

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/domain/repositories"
	"github.com/tufuturo/totem/internal/auth"
	"github.com/tufuturo/totem/internal/websocket"
	"github.com/tufuturo/totem/usecase"
)

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *websocket.Hub,
	processing *usecase.ProcessingService,
	storage repositories.ObjectStorage,
	allowedDomains []string,
	displaySecret string,
	logger *zap.Logger,
) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "totem-server",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/process", func(c echo.Context) error {
		return processImage(c, processing, logger)
	})

	dl := newDownloader(storage, allowedDomains, logger)
	v1.GET("/download", dl.handle)

	v1.POST("/display/auth", func(c echo.Context) error {
		return displayAuth(c, displaySecret, logger)
	})

	// WebSocket endpoint with JWT validation
	if hub != nil {
		e.GET("/ws", func(c echo.Context) error {
			return websocketWithAuth(hub, c, logger)
		})
	}
}

// processImage accepts a multipart capture submission and answers with the
// transformed image plus its retrieval handles.
func processImage(c echo.Context, processing *usecase.ProcessingService, logger *zap.Logger) error {
	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_image",
			Message: "No image was provided",
		})
	}
	if file.Size > usecase.MaxInputSize {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "too_large",
			Message: "The image exceeds the upload size limit",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unreadable_image",
			Message: "The image could not be read",
		})
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, usecase.MaxInputSize+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unreadable_image",
			Message: "The image could not be read",
		})
	}
	if len(data) > usecase.MaxInputSize {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "too_large",
			Message: "The image exceeds the upload size limit",
		})
	}

	requestID := c.FormValue("requestId")
	logger.Info("Processing submission received",
		zap.String("requestId", requestID),
		zap.Int64("bytes", file.Size))

	entry, cached, err := processing.Process(c.Request().Context(), data, requestID)
	if err != nil {
		return processError(c, err, logger)
	}

	return c.JSON(http.StatusOK, ProcessResponse{
		Success:    true,
		ImageURL:   entry.ProcessedImageURL,
		StorageURL: entry.StorageURL,
		StorageKey: entry.StorageKey,
		FileName:   entry.FileName,
		Timestamp:  entry.Timestamp,
		Cached:     cached,
	})
}

// processError maps pipeline failure kinds onto HTTP statuses.
func processError(c echo.Context, err error, logger *zap.Logger) error {
	pe := entities.AsPipelineError(err)
	logger.Error("Processing failed",
		zap.String("kind", string(pe.Kind)),
		zap.Error(err))

	switch pe.Kind {
	case entities.KindValidationError:
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_image",
			Message: pe.Message,
		})
	case entities.KindTimeout:
		return c.JSON(http.StatusGatewayTimeout, ErrorResponse{
			Error:   "timeout",
			Message: pe.Message,
		})
	case entities.KindBackendError:
		status := pe.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return c.JSON(status, ErrorResponse{
			Error:   "backend_error",
			Message: pe.Message,
		})
	case entities.KindProtocolError:
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "protocol_error",
			Message: pe.Message,
		})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:         "internal_error",
			Message:       "Something went wrong while processing the image",
			CorrelationID: pe.CorrelationID,
		})
	}
}

// displayAuth hands a JWT to a kiosk display that knows the shared secret.
func displayAuth(c echo.Context, displaySecret string, logger *zap.Logger) error {
	var req DisplayAuthRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind display auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.DisplayID == "" || req.SecretKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Display id and secret key are required",
		})
	}
	if req.SecretKey != displaySecret {
		logger.Warn("Display authentication failed",
			zap.String("display_id", req.DisplayID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid display credentials",
		})
	}

	token, err := auth.GenerateDisplayToken(req.DisplayID)
	if err != nil {
		logger.Error("Failed to generate display token",
			zap.String("display_id", req.DisplayID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Display authenticated successfully",
		zap.String("display_id", req.DisplayID))

	return c.JSON(http.StatusOK, DisplayAuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		DisplayID: req.DisplayID,
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, c echo.Context, logger *zap.Logger) error {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		// Browsers cannot set headers on websocket dials.
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != "display" || claims.DisplayID == "" {
		logger.Warn("WebSocket connection rejected: invalid claims",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only display tokens are allowed for WebSocket connections",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("display_id", claims.DisplayID))

	return websocket.HandleWebSocket(hub, c, claims.DisplayID, logger)
}
