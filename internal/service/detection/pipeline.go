package detection

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/examsentry/backend/internal/model/frame"
)

// Pipeline fans one frame out to every registered detector and fans the
// findings back in. Detectors run concurrently; a failing or slow detector
// contributes nothing for that frame but never blocks the others, so the
// total wait is bounded by the single detector timeout.
type Pipeline struct {
	detectors []Detector
	timeout   time.Duration
}

// NewPipeline builds a pipeline over the given detector set.
func NewPipeline(timeout time.Duration, detectors ...Detector) *Pipeline {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Pipeline{detectors: detectors, timeout: timeout}
}

// Run executes every detector against the frame and returns the flattened
// findings. Detector errors and timeouts are logged, never propagated.
func (p *Pipeline) Run(ctx context.Context, f frame.Frame) []frame.Finding {
	var (
		mu       sync.Mutex
		findings []frame.Finding
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, d := range p.detectors {
		d := d
		g.Go(func() error {
			result, err := p.invoke(ctx, d, f)
			if err != nil {
				log.Printf("[pipeline] detector %s failed session=%s: %v", d.Name(), f.SessionID, err)
				return nil
			}
			mu.Lock()
			findings = append(findings, result...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return findings
}

type detectResult struct {
	findings []frame.Finding
	err      error
}

// invoke runs a single detector under its timeout. The detector call is
// wrapped in its own goroutine so even an implementation that ignores the
// context cannot hold up the frame past the deadline.
func (p *Pipeline) invoke(ctx context.Context, d Detector, f frame.Frame) ([]frame.Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch := make(chan detectResult, 1)
	go func() {
		result, err := d.Detect(ctx, f)
		ch <- detectResult{findings: result, err: err}
	}()

	select {
	case res := <-ch:
		return res.findings, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
