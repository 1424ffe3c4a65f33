// Package usecase holds the application services above the adapters.
package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/entities"
	"github.com/tufuturo/totem/domain/repositories"
	"github.com/tufuturo/totem/internal/dedupe"
)

const (
	// MaxInputSize bounds the portrait accepted for processing.
	MaxInputSize = 5 * 1024 * 1024

	fileNamePrefix  = "tu_futuro_"
	fileNameStamp   = "02012006150405"
	fetchTimeout    = 30 * time.Second
	contentTypeJPEG = "image/jpeg"
)

// ProcessingService is the server half of the pipeline: it deduplicates by
// request id, invokes the transformation backend at most once per id,
// normalizes the result to bytes, persists best-effort and answers with the
// retrieval handles.
type ProcessingService struct {
	transformer repositories.ImageTransformer
	storage     repositories.ObjectStorage // nil when unconfigured
	cache       *dedupe.Cache
	clock       clock.Clock
	logger      *zap.Logger
	fetch       *http.Client
}

// NewProcessingService wires the service. storage may be nil; results are
// then delivered inline only.
func NewProcessingService(
	transformer repositories.ImageTransformer,
	storage repositories.ObjectStorage,
	cache *dedupe.Cache,
	clk clock.Clock,
	logger *zap.Logger,
) *ProcessingService {
	return &ProcessingService{
		transformer: transformer,
		storage:     storage,
		cache:       cache,
		clock:       clk,
		logger:      logger,
		fetch:       &http.Client{Timeout: fetchTimeout},
	}
}

// Process runs one submission. The second return value reports whether the
// answer came from the dedup cache. Submissions without a request id are
// processed without deduplication, matching the reference behavior.
func (s *ProcessingService) Process(ctx context.Context, image []byte, requestID string) (dedupe.Entry, bool, error) {
	if len(image) == 0 {
		return dedupe.Entry{}, false, entities.NewValidationError("no image was provided")
	}
	if len(image) > MaxInputSize {
		return dedupe.Entry{}, false, entities.NewValidationError(
			fmt.Sprintf("image exceeds the %dMB limit", MaxInputSize/(1024*1024)))
	}

	if requestID == "" {
		entry, err := s.run(ctx, image)
		return entry, false, err
	}
	return s.cache.Do(requestID, func() (dedupe.Entry, error) {
		return s.run(ctx, image)
	})
}

func (s *ProcessingService) run(ctx context.Context, image []byte) (dedupe.Entry, error) {
	result, err := s.transformer.Transform(ctx, image)
	if err != nil {
		return dedupe.Entry{}, err
	}

	processed := result.Data
	if len(processed) == 0 {
		if result.URL == "" {
			return dedupe.Entry{}, entities.NewProtocolError("transformation produced neither data nor a location")
		}
		processed, err = s.fetchProcessed(ctx, result.URL)
		if err != nil {
			return dedupe.Entry{}, err
		}
	}

	now := s.clock.Now()
	fileName := fileNamePrefix + now.Format(fileNameStamp) + ".jpg"
	entry := dedupe.Entry{
		ProcessedImageURL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(processed),
		FileName:          fileName,
		Timestamp:         now,
	}

	// Persistence is best-effort: a storage failure must never fail the run.
	if s.storage != nil {
		stored, err := s.storage.Upload(ctx, processed, fileName, contentTypeJPEG)
		if err != nil {
			storageErr := entities.NewStorageUnavailable(err)
			s.logger.Warn("Storage upload failed, delivering inline only",
				zap.String("fileName", fileName),
				zap.Error(storageErr))
		} else {
			entry.StorageURL = stored.URL
			entry.StorageKey = stored.Key
		}
	}

	s.logger.Info("Processing run completed",
		zap.String("fileName", fileName),
		zap.Int("bytes", len(processed)),
		zap.Bool("persisted", entry.StorageKey != ""))
	return entry, nil
}

// fetchProcessed retrieves the transformed image when the backend answered
// with a location instead of inline data.
func (s *ProcessingService) fetchProcessed(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, entities.NewUnknown(err)
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return nil, entities.NewProtocolError("could not fetch the transformed image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, entities.NewProtocolError("transformed image location did not answer")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, entities.NewUnknown(err)
	}
	return data, nil
}
