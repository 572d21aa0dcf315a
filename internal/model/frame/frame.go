package frame

import "time"

// Frame is one decoded capture unit submitted for a session. Payload holds
// the encoded image bytes; Audio is optional and may be empty.
type Frame struct {
	SessionID string
	Payload   []byte
	Audio     []byte
	Timestamp time.Time
}

// FindingKind identifies which detector capability produced a finding.
type FindingKind string

const (
	FindingFaceCount     FindingKind = "face_count"
	FindingGaze          FindingKind = "gaze"
	FindingVoiceActivity FindingKind = "voice_activity"
)

// GazeState describes where the candidate appears to be looking.
type GazeState string

const (
	GazeOnScreen  GazeState = "on_screen"
	GazeOffScreen GazeState = "off_screen"
)

// Finding is the ephemeral, frame-local output of a single detector. Only
// the field matching Kind is meaningful; findings are never persisted.
type Finding struct {
	Kind        FindingKind
	FaceCount   int
	Gaze        GazeState
	VoiceActive bool
}
