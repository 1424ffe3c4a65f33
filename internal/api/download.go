package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/repositories"
)

const (
	// maxDownloadSize caps what the proxy will relay.
	maxDownloadSize = 10 * 1024 * 1024

	downloadFetchTimeout = 30 * time.Second
	signedURLExpiry      = 15 * time.Minute
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// downloader serves the retrieval endpoint: it either redirects to a
// presigned storage URL by key, or proxies a remote image from an allow-listed
// host so the browser receives it as an attachment.
type downloader struct {
	storage        repositories.ObjectStorage // nil when persistence is off
	allowedDomains []string
	fetch          *http.Client
	logger         *zap.Logger
}

func newDownloader(storage repositories.ObjectStorage, allowedDomains []string, logger *zap.Logger) *downloader {
	return &downloader{
		storage:        storage,
		allowedDomains: allowedDomains,
		fetch:          &http.Client{Timeout: downloadFetchTimeout},
		logger:         logger,
	}
}

func (d *downloader) handle(c echo.Context) error {
	fileName := SanitizeFileName(c.QueryParam("fileName"))

	if key := c.QueryParam("key"); key != "" {
		return d.redirectSigned(c, key, fileName)
	}

	rawURL := c.QueryParam("url")
	if rawURL == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_parameter",
			Message: "Either url or key is required",
		})
	}
	if strings.HasPrefix(rawURL, "data:") {
		return d.inline(c, rawURL, fileName)
	}
	return d.proxy(c, rawURL, fileName)
}

// inline turns a data URL back into an attachment so the browser offers a
// proper save dialog for results that were never persisted.
func (d *downloader) inline(c echo.Context, dataURL, fileName string) error {
	idx := strings.Index(dataURL, ",")
	if idx < 0 || !strings.HasPrefix(dataURL, "data:image/") {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Malformed inline image",
		})
	}
	meta := dataURL[len("data:"):idx]
	contentType := strings.Split(meta, ";")[0]
	if !allowedImageTypes[strings.ToLower(contentType)] {
		return c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{
			Error:   "unsupported_type",
			Message: "The inline payload is not an image",
		})
	}

	data, err := base64.StdEncoding.DecodeString(dataURL[idx+1:])
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "The inline payload is not valid base64",
		})
	}
	if len(data) > maxDownloadSize {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "too_large",
			Message: "The image exceeds the download size limit",
		})
	}

	header := c.Response().Header()
	header.Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Cache-Control", "private, no-store")
	return c.Blob(http.StatusOK, contentType, data)
}

func (d *downloader) redirectSigned(c echo.Context, key, fileName string) error {
	if d.storage == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "storage_disabled",
			Message: "Durable storage is not configured",
		})
	}
	signed, err := d.storage.SignDownload(c.Request().Context(), key, fileName, signedURLExpiry)
	if err != nil {
		d.logger.Error("Failed to presign download",
			zap.String("key", key),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "sign_failed",
			Message: "Could not prepare the download",
		})
	}
	return c.Redirect(http.StatusFound, signed)
}

func (d *downloader) proxy(c echo.Context, rawURL, fileName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || !schemeAllowed(parsed) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Only https image locations are accepted",
		})
	}
	if !d.hostAllowed(parsed.Hostname()) {
		d.logger.Warn("Download from disallowed host rejected",
			zap.String("host", parsed.Hostname()))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "host_not_allowed",
			Message: "The image location is not on the allowed list",
		})
	}

	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "The image location could not be requested",
		})
	}
	resp, err := d.fetch.Do(req)
	if err != nil {
		d.logger.Error("Download fetch failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "fetch_failed",
			Message: "The image could not be retrieved",
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "fetch_failed",
			Message: "The image location did not answer",
		})
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))
	if !allowedImageTypes[contentType] {
		return c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{
			Error:   "unsupported_type",
			Message: "The location did not serve an image",
		})
	}
	if resp.ContentLength > maxDownloadSize {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "too_large",
			Message: "The image exceeds the download size limit",
		})
	}

	// The declared length can lie; read one byte past the cap to detect it.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "fetch_failed",
			Message: "The image could not be read",
		})
	}
	if len(data) > maxDownloadSize {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "too_large",
			Message: "The image exceeds the download size limit",
		})
	}

	header := c.Response().Header()
	header.Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Cache-Control", "private, no-store")
	return c.Blob(http.StatusOK, contentType, data)
}

// schemeAllowed requires https everywhere except on the local machine, where
// the kiosk talks to its own plain-http listener.
func schemeAllowed(u *url.URL) bool {
	if u.Scheme == "https" {
		return true
	}
	host := u.Hostname()
	return u.Scheme == "http" && (host == "127.0.0.1" || host == "localhost")
}

// hostAllowed accepts exact matches and subdomains of the allow-list.
func (d *downloader) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, domain := range d.allowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
