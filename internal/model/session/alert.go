package session

import "time"

// AlertType enumerates the kinds of integrity alerts a session can record.
type AlertType string

const (
	AlertMultipleFaces   AlertType = "multiple_faces"
	AlertGazeOffScreen   AlertType = "gaze"
	AlertBackgroundVoice AlertType = "voice"
)

// Alert is a committed, session-level record derived from detector findings.
// Alerts are immutable once appended.
type Alert struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
