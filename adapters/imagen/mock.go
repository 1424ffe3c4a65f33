package imagen

import (
	"context"
	"sync/atomic"

	"github.com/tufuturo/totem/domain/repositories"
)

// MockTransformer returns the input unchanged. Used in development when no
// backend is configured and in tests that count backend invocations.
type MockTransformer struct {
	calls atomic.Int64

	// Err, when set, is returned instead of a result.
	Err error
	// Result, when set, replaces the default echo behavior.
	Result *repositories.TransformResult
}

var _ repositories.ImageTransformer = (*MockTransformer)(nil)

// NewMockTransformer creates a mock transformer.
func NewMockTransformer() *MockTransformer {
	return &MockTransformer{}
}

// Transform echoes the input image.
func (m *MockTransformer) Transform(ctx context.Context, image []byte) (*repositories.TransformResult, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	out := make([]byte, len(image))
	copy(out, image)
	return &repositories.TransformResult{Data: out}, nil
}

// Calls reports how many times Transform ran.
func (m *MockTransformer) Calls() int {
	return int(m.calls.Load())
}
