package session

import "time"

// Status tracks where a monitored session is in its lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session captures one candidate's monitored examination instance.
type Session struct {
	ID             string     `json:"id"`
	CandidateName  string     `json:"candidateName"`
	CandidateEmail string     `json:"candidateEmail"`
	Status         Status     `json:"status"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Alerts         []Alert    `json:"alerts"`
	AlertCount     int        `json:"alertCount"`
}

// Active reports whether the session still accepts frames and alerts.
func (s Session) Active() bool {
	return s.Status == StatusActive
}
