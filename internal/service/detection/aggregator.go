package detection

import (
	"context"
	"errors"
	"log"

	"github.com/examsentry/backend/internal/model/frame"
	"github.com/examsentry/backend/internal/model/session"
	"github.com/examsentry/backend/internal/service/hub"
	sessionService "github.com/examsentry/backend/internal/service/session"
)

// AlertSink is the slice of the session registry the aggregator commits to.
type AlertSink interface {
	AppendAlerts(ctx context.Context, sessionID string, alerts []session.Alert) error
}

// Publisher delivers committed alert batches to live subscribers.
type Publisher interface {
	Publish(sessionID string, event hub.Event)
}

// Aggregator turns a frame's findings into session alerts, commits them to
// the registry and publishes one event per frame to the broadcast hub.
type Aggregator struct {
	sink      AlertSink
	publisher Publisher
}

// NewAggregator wires the aggregator to its registry and hub.
func NewAggregator(sink AlertSink, publisher Publisher) *Aggregator {
	return &Aggregator{sink: sink, publisher: publisher}
}

// Commit maps findings to alerts and records them. Empty batches are
// suppressed entirely. Alerts for a session that completed mid-flight are
// discarded and the event is not published; that is expected, not an error.
func (a *Aggregator) Commit(ctx context.Context, f frame.Frame, findings []frame.Finding) {
	alerts := MapFindings(findings, f)
	if len(alerts) == 0 {
		return
	}

	if err := a.sink.AppendAlerts(ctx, f.SessionID, alerts); err != nil {
		if errors.Is(err, sessionService.ErrSessionClosed) {
			log.Printf("[aggregator] dropping %d alerts for completed session %s", len(alerts), f.SessionID)
		} else {
			log.Printf("[aggregator] append alerts failed session=%s: %v", f.SessionID, err)
		}
		return
	}

	a.publisher.Publish(f.SessionID, hub.Event{
		SessionID: f.SessionID,
		Alerts:    alerts,
		Timestamp: f.Timestamp,
	})
}

// MapFindings is the pure finding-to-alert mapping. Each finding yields at
// most one alert of a fixed type, independently of the others.
func MapFindings(findings []frame.Finding, f frame.Frame) []session.Alert {
	var alerts []session.Alert
	for _, finding := range findings {
		switch finding.Kind {
		case frame.FindingFaceCount:
			if finding.FaceCount > 1 {
				alerts = append(alerts, session.Alert{
					Type:      session.AlertMultipleFaces,
					Message:   "Multiple faces detected",
					Timestamp: f.Timestamp,
				})
			}
		case frame.FindingGaze:
			if finding.Gaze != frame.GazeOnScreen {
				alerts = append(alerts, session.Alert{
					Type:      session.AlertGazeOffScreen,
					Message:   "Gaze not on screen",
					Timestamp: f.Timestamp,
				})
			}
		case frame.FindingVoiceActivity:
			if finding.VoiceActive {
				alerts = append(alerts, session.Alert{
					Type:      session.AlertBackgroundVoice,
					Message:   "Background voice detected",
					Timestamp: f.Timestamp,
				})
			}
		}
	}
	return alerts
}
