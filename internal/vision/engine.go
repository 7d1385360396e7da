// engine.go — Default engine placeholder.
// The OCR runtime and its binary assets are wired by the embedding build;
// until a real engine is registered the vision strategy fails gracefully
// and every other strategy keeps working.
package vision

import (
	"context"
	"errors"
)

// ErrEngineUnavailable is returned when no OCR runtime has been wired in.
var ErrEngineUnavailable = errors.New("ocr runtime not configured")

type unconfiguredEngine struct{}

func (unconfiguredEngine) Init(ctx context.Context, language string) error {
	return ErrEngineUnavailable
}

func (unconfiguredEngine) Recognize(ctx context.Context, image []byte) ([]Line, error) {
	return nil, ErrEngineUnavailable
}

func (unconfiguredEngine) Close() error { return nil }

// Unconfigured returns the placeholder engine used when the build carries
// no OCR runtime.
func Unconfigured() Engine { return unconfiguredEngine{} }
