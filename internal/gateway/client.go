// Package gateway is the kiosk-side client of the processing endpoint. It
// performs a single submission attempt under a hard client-side timeout and
// normalizes the response into image bytes, whether the backend inlined them
// or handed back a fetchable URL.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/entities"
)

const (
	// SubmitTimeout is the client-side ceiling. It intentionally exceeds the
	// backend's own 240s timeout so the backend gets to fail gracefully
	// first.
	SubmitTimeout = 250 * time.Second

	fetchTimeout = 30 * time.Second
)

// Result is a completed submission. ImageData always holds the processed
// bytes; the storage fields are empty when persistence fell back to inline
// delivery.
type Result struct {
	ImageData  []byte
	ImageURL   string
	StorageURL string
	StorageKey string
	FileName   string
}

type processResponse struct {
	Success    bool   `json:"success"`
	ImageURL   string `json:"imageUrl"`
	StorageURL string `json:"storageUrl"`
	StorageKey string `json:"storageKey"`
	FileName   string `json:"fileName"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// Client submits captured stills for processing.
type Client struct {
	baseURL string
	http    *http.Client
	fetch   *http.Client
	logger  *zap.Logger
}

// NewClient creates a gateway client against the given API base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: SubmitTimeout},
		fetch:   &http.Client{Timeout: fetchTimeout},
		logger:  logger,
	}
}

// Submit sends the still and its request id for processing. One attempt, no
// retries; retried sessions must reuse the same request id so the server-side
// dedup cache answers without re-invoking the backend.
func (c *Client) Submit(ctx context.Context, image []byte, requestID string) (*Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "captured-image.jpg")
	if err != nil {
		return nil, entities.NewUnknown(err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, entities.NewUnknown(err)
	}
	if requestID != "" {
		if err := writer.WriteField("requestId", requestID); err != nil {
			return nil, entities.NewUnknown(err)
		}
	}
	if err := writer.WriteField("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		return nil, entities.NewUnknown(err)
	}
	if err := writer.Close(); err != nil {
		return nil, entities.NewUnknown(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/process", body)
	if err != nil {
		return nil, entities.NewUnknown(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Cache-Control", "no-cache, no-store")

	c.logger.Info("Submitting capture for processing",
		zap.String("requestId", requestID),
		zap.Int("bytes", len(image)))

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, entities.NewTimeout("processing took too long, it is safe to try again")
		}
		return nil, entities.NewUnknown(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp processResponse
		message := "image processing failed"
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil {
			if errResp.Message != "" {
				message = errResp.Message
			} else if errResp.Error != "" {
				message = errResp.Error
			}
		}
		if resp.StatusCode == http.StatusGatewayTimeout {
			return nil, entities.NewTimeout(message)
		}
		return nil, entities.NewBackendError(resp.StatusCode, message)
	}

	var data processResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, entities.NewProtocolError("processing response is not valid JSON")
	}
	if !data.Success || data.ImageURL == "" {
		return nil, entities.NewProtocolError("processing response carries no image")
	}

	imageData, err := c.resolveImage(ctx, data.ImageURL)
	if err != nil {
		return nil, err
	}

	return &Result{
		ImageData:  imageData,
		ImageURL:   data.ImageURL,
		StorageURL: data.StorageURL,
		StorageKey: data.StorageKey,
		FileName:   data.FileName,
	}, nil
}

// resolveImage turns the response's imageUrl into raw bytes: inline data URLs
// are decoded directly, anything fetchable is retrieved with a secondary
// request. Either path yields an equivalent buffer.
func (c *Client) resolveImage(ctx context.Context, imageURL string) ([]byte, error) {
	if strings.HasPrefix(imageURL, "data:") {
		idx := strings.Index(imageURL, ",")
		if idx < 0 {
			return nil, entities.NewProtocolError("malformed inline image payload")
		}
		data, err := base64.StdEncoding.DecodeString(imageURL[idx+1:])
		if err != nil {
			return nil, entities.NewProtocolError("inline image payload is not valid base64")
		}
		return data, nil
	}

	parsed, err := url.Parse(imageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, entities.NewProtocolError(fmt.Sprintf("unrecognized image location %q", imageURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, entities.NewUnknown(err)
	}
	resp, err := c.fetch.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, entities.NewTimeout("fetching the processed image took too long")
		}
		return nil, entities.NewUnknown(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, entities.NewProtocolError("processed image location did not answer")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, entities.NewUnknown(err)
	}
	return data, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
