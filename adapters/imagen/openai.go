// Package imagen holds the image-transformation backends. All of them satisfy
// repositories.ImageTransformer; selection happens at wiring time.
package imagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/domain/repositories"
)

const (
	defaultAPIBaseURL = "https://api.openai.com/v1"
	defaultModel      = "gpt-image-1"
	defaultSize       = "1024x1536" // 2:3, matches the captured still
	defaultQuality    = "medium"

	// BackendTimeout bounds one transformation attempt. The kiosk-side
	// submit timeout is longer so this one elapses first.
	BackendTimeout = 240 * time.Second
)

// defaultPrompt is the themed composite the kiosk produces. Override with the
// Prompt config field for other campaigns.
const defaultPrompt = "Transform the scene into a dramatic jungle dinosaur chase: " +
	"dress the subject in weathered outdoor adventure clothing with realistic dirt and rain stains. " +
	"Set a dense humid jungle at night during a tropical storm, lit by flickering floodlights and lightning. " +
	"Behind and slightly to the side of the subject, a massive photorealistic Tyrannosaurus rex in mid-stride, " +
	"mouth open, motion blurred, with rain splashes, mist, wet foliage and muddy ground. " +
	"Keep the subject's face perfectly recognisable and sharp, lighting consistent with the storm. " +
	"No zoom, no recentering, no outpainting, no new limbs, no text or watermarks. " +
	"Negatives: no fantasy creatures, no cartoon style, no gore, no unrealistic anatomy, no gender change."

// OpenAIConfig holds configuration for the OpenAI transformer.
// Required fields:
// - APIKey: your OpenAI API key
// Optional fields with defaults:
// - APIBaseURL (default "https://api.openai.com/v1")
// - Model (default "gpt-image-1")
// - Size (default "1024x1536")
// - Quality (default "medium")
// - Prompt (default: the built-in themed prompt)
type OpenAIConfig struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Size       string
	Quality    string
	Prompt     string
}

// NewOpenAIConfigFromEnv creates an OpenAIConfig from environment variables.
func NewOpenAIConfigFromEnv() OpenAIConfig {
	return OpenAIConfig{
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		APIBaseURL: os.Getenv("OPENAI_API_BASE_URL"),
		Prompt:     os.Getenv("TOTEM_PROMPT"),
	}
}

// OpenAITransformer implements ImageTransformer against the OpenAI image
// edits API.
type OpenAITransformer struct {
	apiKey     string
	apiBaseURL string
	model      string
	size       string
	quality    string
	prompt     string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ repositories.ImageTransformer = (*OpenAITransformer)(nil)

// NewOpenAITransformer creates a transformer, applying defaults for optional
// settings.
func NewOpenAITransformer(config OpenAIConfig, logger *zap.Logger) (*OpenAITransformer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	apiBaseURL := config.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	model := config.Model
	if model == "" {
		model = defaultModel
	}
	size := config.Size
	if size == "" {
		size = defaultSize
	}
	quality := config.Quality
	if quality == "" {
		quality = defaultQuality
	}
	prompt := config.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}

	return &OpenAITransformer{
		apiKey:     config.APIKey,
		apiBaseURL: apiBaseURL,
		model:      model,
		size:       size,
		quality:    quality,
		prompt:     prompt,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

type openAIImageData struct {
	B64JSON string `json:"b64_json"`
	URL     string `json:"url"`
}

type openAIResponse struct {
	Data  []openAIImageData `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transform submits the still to the image edits endpoint. One attempt,
// bounded by BackendTimeout on top of whatever deadline ctx already carries.
func (t *OpenAITransformer) Transform(ctx context.Context, image []byte) (*repositories.TransformResult, error) {
	ctx, cancel := context.WithTimeout(ctx, BackendTimeout)
	defer cancel()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "capture.jpg")
	if err != nil {
		return nil, entities.NewUnknown(err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, entities.NewUnknown(err)
	}
	fields := map[string]string{
		"prompt":         t.prompt,
		"model":          t.model,
		"n":              "1",
		"size":           t.size,
		"quality":        t.quality,
		"background":     "auto",
		"moderation":     "auto",
		"input_fidelity": "high",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, entities.NewUnknown(err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, entities.NewUnknown(err)
	}

	endpoint := t.apiBaseURL + "/images/edits"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, entities.NewUnknown(err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	t.logger.Info("Sending image to transformation backend",
		zap.String("model", t.model),
		zap.Int("bytes", len(image)))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if isDeadline(err) {
			return nil, entities.NewTimeout("the transformation backend timed out, please try again")
		}
		return nil, entities.NewUnknown(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr openAIResponse
		message := "the transformation backend rejected the image"
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil &&
			apiErr.Error != nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		if resp.StatusCode == http.StatusUnauthorized {
			message = "transformation backend authentication failed, check the API key"
		}
		t.logger.Error("Transformation backend returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("message", message))
		return nil, entities.NewBackendError(resp.StatusCode, message)
	}

	var data openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, entities.NewProtocolError("transformation response is not valid JSON")
	}
	if len(data.Data) == 0 {
		return nil, entities.NewProtocolError("transformation response carries no image")
	}

	switch {
	case data.Data[0].B64JSON != "":
		decoded, err := base64.StdEncoding.DecodeString(data.Data[0].B64JSON)
		if err != nil {
			return nil, entities.NewProtocolError("inline transformation payload is not valid base64")
		}
		t.logger.Info("Received inline transformed image", zap.Int("bytes", len(decoded)))
		return &repositories.TransformResult{Data: decoded}, nil
	case data.Data[0].URL != "":
		t.logger.Info("Received transformed image location", zap.String("url", data.Data[0].URL))
		return &repositories.TransformResult{URL: data.Data[0].URL}, nil
	default:
		return nil, entities.NewProtocolError("unrecognized transformation response shape")
	}
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
