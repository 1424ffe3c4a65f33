package repositories

import "context"

// TransformResult is the raw answer of a transformation backend. Exactly one
// of Data or URL is set: some backends inline the encoded image, others hand
// back a fetchable location.
type TransformResult struct {
	Data []byte
	URL  string
}

// ImageTransformer turns a captured portrait into the themed composite. A call
// is a single attempt; deduplication of retries happens above this interface.
type ImageTransformer interface {
	Transform(ctx context.Context, image []byte) (*TransformResult, error)
}
