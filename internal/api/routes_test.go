package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/adapters/imagen"
	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/internal/dedupe"
	"github.com/tufuturo/totem/usecase"
)

var errTest = errors.New("boom")

func newProcessEcho(t *testing.T, transformer *imagen.MockTransformer) *echo.Echo {
	t.Helper()
	logger := zap.NewNop()
	cache := dedupe.NewCache(clock.NewMock(), logger)
	service := usecase.NewProcessingService(transformer, nil, cache, clock.NewMock(), logger)

	e := echo.New()
	InitRoutes(e, nil, service, nil, []string{"amazonaws.com"}, "test-display-secret", logger)
	return e
}

func multipartImage(t *testing.T, image []byte, requestID string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "captured-image.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("writing image part: %v", err)
	}
	if requestID != "" {
		if err := writer.WriteField("requestId", requestID); err != nil {
			t.Fatalf("writing requestId field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func postProcess(e *echo.Echo, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", bytes.NewReader(body.Bytes()))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestProcessReturnsInlineImage(t *testing.T) {
	transformer := imagen.NewMockTransformer()
	e := newProcessEcho(t, transformer)

	body, contentType := multipartImage(t, []byte("portrait"), "req-1")
	rec := postProcess(e, body, contentType)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp ProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if !resp.Success {
		t.Error("Success = false, want true")
	}
	if !strings.HasPrefix(resp.ImageURL, "data:image/jpeg;base64,") {
		t.Errorf("ImageURL = %q, want inline data url", resp.ImageURL)
	}
	if !strings.HasPrefix(resp.FileName, "tu_futuro_") || !strings.HasSuffix(resp.FileName, ".jpg") {
		t.Errorf("FileName = %q, want tu_futuro_<stamp>.jpg", resp.FileName)
	}
	if resp.Cached {
		t.Error("Cached = true on first submission, want false")
	}
}

func TestProcessDeduplicatesByRequestID(t *testing.T) {
	transformer := imagen.NewMockTransformer()
	e := newProcessEcho(t, transformer)

	body, contentType := multipartImage(t, []byte("portrait"), "req-dup")
	first := postProcess(e, body, contentType)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d: %s", first.Code, first.Body.String())
	}

	body, contentType = multipartImage(t, []byte("portrait"), "req-dup")
	second := postProcess(e, body, contentType)
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d: %s", second.Code, second.Body.String())
	}

	var resp ProcessResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if !resp.Cached {
		t.Error("Cached = false on duplicate submission, want true")
	}
	if got := transformer.Calls(); got != 1 {
		t.Errorf("backend calls = %d, want 1", got)
	}
}

func TestProcessMissingImage(t *testing.T) {
	e := newProcessEcho(t, imagen.NewMockTransformer())

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("requestId", "req-2")
	writer.Close()

	rec := postProcess(e, body, writer.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestProcessOversizedImage(t *testing.T) {
	e := newProcessEcho(t, imagen.NewMockTransformer())

	big := bytes.Repeat([]byte("x"), usecase.MaxInputSize+1)
	body, contentType := multipartImage(t, big, "req-3")
	rec := postProcess(e, body, contentType)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestProcessBackendErrorStatusPassthrough(t *testing.T) {
	transformer := imagen.NewMockTransformer()
	transformer.Err = entities.NewBackendError(http.StatusUnauthorized, "invalid API key")
	e := newProcessEcho(t, transformer)

	body, contentType := multipartImage(t, []byte("portrait"), "req-4")
	rec := postProcess(e, body, contentType)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp.Message != "invalid API key" {
		t.Errorf("Message = %q, want backend message", resp.Message)
	}
}

func TestProcessTimeoutMapsToGatewayTimeout(t *testing.T) {
	transformer := imagen.NewMockTransformer()
	transformer.Err = entities.NewTimeout("processing took too long, it is safe to try again")
	e := newProcessEcho(t, transformer)

	body, contentType := multipartImage(t, []byte("portrait"), "req-5")
	rec := postProcess(e, body, contentType)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

func TestProcessUnknownErrorCarriesCorrelationID(t *testing.T) {
	transformer := imagen.NewMockTransformer()
	transformer.Err = entities.NewUnknown(errTest)
	e := newProcessEcho(t, transformer)

	body, contentType := multipartImage(t, []byte("portrait"), "req-6")
	rec := postProcess(e, body, contentType)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if len(resp.CorrelationID) != 8 {
		t.Errorf("CorrelationID = %q, want 8 characters", resp.CorrelationID)
	}
}

func TestDisplayAuthIssuesValidToken(t *testing.T) {
	e := newProcessEcho(t, imagen.NewMockTransformer())

	payload, _ := json.Marshal(DisplayAuthRequest{DisplayID: "totem-1", SecretKey: "test-display-secret"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/display/auth", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp DisplayAuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
}

func TestDisplayAuthRejectsWrongSecret(t *testing.T) {
	e := newProcessEcho(t, imagen.NewMockTransformer())

	payload, _ := json.Marshal(DisplayAuthRequest{DisplayID: "totem-1", SecretKey: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/display/auth", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHealthEndpoint(t *testing.T) {
	e := newProcessEcho(t, imagen.NewMockTransformer())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
