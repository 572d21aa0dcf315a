package detection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/examsentry/backend/internal/model/frame"
)

var (
	ErrInvalidSession = errors.New("invalid or inactive session")
	ErrBackpressure   = errors.New("frame dropped: previous frame still processing")
)

// SessionChecker answers whether a session may currently receive frames.
type SessionChecker interface {
	Active(sessionID string) bool
}

// Dispatcher admits inbound frames into the pipeline with at most one frame
// in flight per session. A frame arriving while its session is busy is
// dropped in favour of recency; frames for different sessions are processed
// fully concurrently.
type Dispatcher struct {
	checker    SessionChecker
	pipeline   *Pipeline
	aggregator *Aggregator

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewDispatcher wires the dispatcher to its admission check and pipeline.
func NewDispatcher(checker SessionChecker, pipeline *Pipeline, aggregator *Aggregator) *Dispatcher {
	return &Dispatcher{
		checker:    checker,
		pipeline:   pipeline,
		aggregator: aggregator,
		inflight:   make(map[string]struct{}),
	}
}

// Submit admits one frame for processing. It returns immediately:
// ErrInvalidSession for unknown or completed sessions, ErrBackpressure when
// the session already has a frame in flight, nil once processing has been
// scheduled.
func (d *Dispatcher) Submit(_ context.Context, sessionID string, payload, audio []byte) error {
	if !d.checker.Active(sessionID) {
		return ErrInvalidSession
	}

	d.mu.Lock()
	if _, busy := d.inflight[sessionID]; busy {
		d.mu.Unlock()
		return ErrBackpressure
	}
	d.inflight[sessionID] = struct{}{}
	d.mu.Unlock()

	f := frame.Frame{
		SessionID: sessionID,
		Payload:   payload,
		Audio:     audio,
		Timestamp: time.Now().UTC(),
	}

	d.wg.Add(1)
	go d.process(f)
	return nil
}

// process runs the full pipeline for one admitted frame. Processing is
// detached from the submitting request; the per-detector timeout bounds it.
func (d *Dispatcher) process(f frame.Frame) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, f.SessionID)
		d.mu.Unlock()
	}()

	findings := d.pipeline.Run(context.Background(), f)
	d.aggregator.Commit(context.Background(), f, findings)
}

// InFlight reports whether a frame is currently being processed for the
// session.
func (d *Dispatcher) InFlight(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, busy := d.inflight[sessionID]
	return busy
}

// Drain blocks until all in-flight frames have finished or the context
// expires. Used on shutdown so accepted work is never half applied.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
