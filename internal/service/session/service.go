package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/examsentry/backend/internal/model/session"
)

var (
	ErrValidation      = errors.New("name and email are required")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session already completed")
)

// entry wraps one session with its own lock so mutations on different
// sessions never contend with each other.
type entry struct {
	mu      sync.Mutex
	session session.Session
}

// Service is the authoritative registry of monitoring sessions. The outer
// lock only guards the maps; per-session state is guarded by entry locks.
type Service struct {
	mu      sync.RWMutex
	entries map[string]*entry
	byEmail map[string]string
}

// NewService bootstraps the in-memory session registry.
func NewService() *Service {
	return &Service{
		entries: make(map[string]*entry),
		byEmail: make(map[string]string),
	}
}

// Create provisions a new active session for a candidate.
func (s *Service) Create(_ context.Context, name, email string) (session.Session, error) {
	if name == "" || email == "" {
		return session.Session{}, ErrValidation
	}

	sess := session.Session{
		ID:             uuid.NewString(),
		CandidateName:  name,
		CandidateEmail: email,
		Status:         session.StatusActive,
		StartTime:      time.Now().UTC(),
		Alerts:         []session.Alert{},
	}

	s.mu.Lock()
	s.entries[sess.ID] = &entry{session: sess}
	s.byEmail[email] = sess.ID
	s.mu.Unlock()

	return sess, nil
}

// Get retrieves a snapshot of a session by identifier.
func (s *Service) Get(_ context.Context, sessionID string) (session.Session, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(&e.session), nil
}

// GetByEmail resolves the most recent session created for a candidate email.
func (s *Service) GetByEmail(ctx context.Context, email string) (session.Session, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}
	return s.Get(ctx, id)
}

// List returns snapshots of registered sessions, newest first. Completed
// sessions are only included when requested; they are never deleted.
func (s *Service) List(_ context.Context, includeCompleted bool) []session.Session {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	result := make([]session.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if includeCompleted || e.session.Active() {
			result = append(result, snapshot(&e.session))
		}
		e.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	return result
}

// Active reports whether a session exists and still accepts frames.
func (s *Service) Active(sessionID string) bool {
	e, ok := s.lookup(sessionID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Active()
}

// Exists reports whether a session id is known to the registry.
func (s *Service) Exists(sessionID string) bool {
	_, ok := s.lookup(sessionID)
	return ok
}

// End marks a session completed. Ending an already completed session is a
// no-op so the operation stays idempotent.
func (s *Service) End(_ context.Context, sessionID string) (session.Session, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Active() {
		now := time.Now().UTC()
		e.session.Status = session.StatusCompleted
		e.session.EndTime = &now
	}
	return snapshot(&e.session), nil
}

// AppendAlerts atomically appends a batch of alerts to a session. Alerts
// arriving after completion are rejected with ErrSessionClosed and leave the
// session untouched.
func (s *Service) AppendAlerts(_ context.Context, sessionID string, alerts []session.Alert) error {
	e, ok := s.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.session.Active() {
		return ErrSessionClosed
	}

	e.session.Alerts = append(e.session.Alerts, alerts...)
	e.session.AlertCount = len(e.session.Alerts)
	return nil
}

func (s *Service) lookup(sessionID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[sessionID]
	return e, ok
}

// snapshot copies a session so callers never alias registry-owned state.
// Caller must hold the entry lock.
func snapshot(sess *session.Session) session.Session {
	out := *sess
	out.Alerts = append([]session.Alert(nil), sess.Alerts...)
	return out
}
