package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/examsentry/backend/internal/model/session"
)

// Level grades how suspicious a completed monitoring session looks.
type Level string

const (
	LevelLow      Level = "low"
	LevelElevated Level = "elevated"
	LevelHigh     Level = "high"
)

// Assessment is the heuristic integrity verdict for one session.
type Assessment struct {
	Level   Level                     `json:"level"`
	Counts  map[session.AlertType]int `json:"counts"`
	Summary string                    `json:"summary"`
}

// Weights reflect how strongly each alert type suggests a violation: a
// second person in frame is far more conclusive than a glance away.
var weights = map[session.AlertType]int{
	session.AlertMultipleFaces:   3,
	session.AlertBackgroundVoice: 2,
	session.AlertGazeOffScreen:   1,
}

// Assess derives a risk level and plain-language summary from a session's
// recorded alerts.
func Assess(sess session.Session) Assessment {
	counts := make(map[session.AlertType]int)
	score := 0
	for _, alert := range sess.Alerts {
		counts[alert.Type]++
		score += weights[alert.Type]
	}

	level := LevelLow
	switch {
	case score >= 8:
		level = LevelHigh
	case score >= 3:
		level = LevelElevated
	}

	return Assessment{
		Level:   level,
		Counts:  counts,
		Summary: summarize(sess, counts, level),
	}
}

func summarize(sess session.Session, counts map[session.AlertType]int, level Level) string {
	if len(counts) == 0 {
		return fmt.Sprintf("No anomalies were recorded for %s during %s of monitoring.",
			sess.CandidateName, durationText(sess))
	}

	var parts []string
	if n := counts[session.AlertMultipleFaces]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d frame(s) with multiple faces", n))
	}
	if n := counts[session.AlertBackgroundVoice]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d background voice event(s)", n))
	}
	if n := counts[session.AlertGazeOffScreen]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d off-screen gaze event(s)", n))
	}

	return fmt.Sprintf("Session for %s recorded %s over %s; overall risk is %s.",
		sess.CandidateName, strings.Join(parts, ", "), durationText(sess), level)
}

func durationText(sess session.Session) string {
	end := time.Now().UTC()
	if sess.EndTime != nil {
		end = *sess.EndTime
	}
	d := end.Sub(sess.StartTime).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}
