package detection

import (
	"context"

	"github.com/examsentry/backend/internal/model/frame"
)

// Detector is a pluggable capability that inspects one frame and reports
// findings. Implementations must be safe for concurrent use across frames
// and should honour context cancellation as best effort; the pipeline
// enforces a hard per-invocation timeout regardless.
type Detector interface {
	Name() string
	Detect(ctx context.Context, f frame.Frame) ([]frame.Finding, error)
}
