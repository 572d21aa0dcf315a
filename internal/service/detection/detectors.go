package detection

import (
	"context"
	"hash/fnv"

	"github.com/examsentry/backend/internal/model/frame"
)

// The built-in detectors are deterministic stand-ins for the real models
// (YOLO face counting, gaze tracking, voice activity). Each derives its
// outcome from a hash of the frame bytes so behaviour is reproducible for a
// given input, with configurable trigger rates. Swapping in real
// implementations only requires satisfying the Detector interface.

// FaceCountDetector reports how many faces appear in a frame.
type FaceCountDetector struct {
	SecondFaceRate float64
}

func (d *FaceCountDetector) Name() string { return "face_count" }

func (d *FaceCountDetector) Detect(_ context.Context, f frame.Frame) ([]frame.Finding, error) {
	count := 1
	if triggered(f.Payload, "face", d.SecondFaceRate) {
		count = 2
	}
	return []frame.Finding{{Kind: frame.FindingFaceCount, FaceCount: count}}, nil
}

// GazeDetector reports whether the candidate's gaze is on the screen.
type GazeDetector struct {
	OffScreenRate float64
}

func (d *GazeDetector) Name() string { return "gaze" }

func (d *GazeDetector) Detect(_ context.Context, f frame.Frame) ([]frame.Finding, error) {
	state := frame.GazeOnScreen
	if triggered(f.Payload, "gaze", d.OffScreenRate) {
		state = frame.GazeOffScreen
	}
	return []frame.Finding{{Kind: frame.FindingGaze, Gaze: state}}, nil
}

// VoiceActivityDetector reports background speech. It prefers the audio
// buffer and falls back to the frame payload when no audio was captured.
type VoiceActivityDetector struct {
	ActivityRate float64
}

func (d *VoiceActivityDetector) Name() string { return "voice_activity" }

func (d *VoiceActivityDetector) Detect(_ context.Context, f frame.Frame) ([]frame.Finding, error) {
	sample := f.Audio
	if len(sample) == 0 {
		sample = f.Payload
	}
	active := triggered(sample, "voice", d.ActivityRate)
	return []frame.Finding{{Kind: frame.FindingVoiceActivity, VoiceActive: active}}, nil
}

// triggered maps input bytes onto [0,1) and compares against rate. The salt
// keeps detectors from all firing on the same frames.
func triggered(data []byte, salt string, rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	h := fnv.New64a()
	h.Write([]byte(salt))
	h.Write(data)
	return float64(h.Sum64()%10000)/10000 < rate
}
