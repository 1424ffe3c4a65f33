package imagen

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/domain/repositories"
)

const defaultGeminiModel = "gemini-2.5-flash-image-preview"

// GeminiTransformer implements ImageTransformer using Google's Gemini API.
// Alternate backend to the OpenAI transformer, selected with
// IMAGEN_BACKEND=gemini.
type GeminiTransformer struct {
	client *genai.Client
	logger *zap.Logger
	model  string
	prompt string
}

var _ repositories.ImageTransformer = (*GeminiTransformer)(nil)

// NewGeminiTransformer creates a Gemini-backed transformer. The API key comes
// from GEMINI_API_KEY when the argument is empty.
func NewGeminiTransformer(apiKey, prompt string, logger *zap.Logger) (*GeminiTransformer, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if prompt == "" {
		prompt = defaultPrompt
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTransformer{
		client: client,
		logger: logger,
		model:  defaultGeminiModel,
		prompt: prompt,
	}, nil
}

// Transform sends the still and the themed prompt to Gemini and extracts the
// inline image from the answer.
func (g *GeminiTransformer) Transform(ctx context.Context, image []byte) (*repositories.TransformResult, error) {
	ctx, cancel := context.WithTimeout(ctx, BackendTimeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, "image/jpeg"),
			genai.NewPartFromText(g.prompt),
		}, genai.RoleUser),
	}

	g.logger.Info("Sending image to Gemini", zap.String("model", g.model))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		if isDeadline(err) {
			return nil, entities.NewTimeout("the transformation backend timed out, please try again")
		}
		return nil, entities.NewBackendError(0, err.Error())
	}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				g.logger.Info("Received transformed image from Gemini",
					zap.Int("bytes", len(part.InlineData.Data)))
				return &repositories.TransformResult{Data: part.InlineData.Data}, nil
			}
		}
	}

	return nil, entities.NewProtocolError("transformation response carries no image")
}
