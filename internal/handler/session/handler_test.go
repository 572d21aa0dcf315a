package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	model "github.com/examsentry/backend/internal/model/session"
	"github.com/examsentry/backend/internal/service/report"
	sessionService "github.com/examsentry/backend/internal/service/session"
)

func setupRouter(t *testing.T) (*chi.Mux, *sessionService.Service) {
	t.Helper()
	registry := sessionService.NewService()
	reports, err := report.NewService(context.Background(), nil, report.Config{})
	if err != nil {
		t.Fatalf("report.NewService err: %v", err)
	}
	handler := New(registry, reports)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, registry
}

func createSession(t *testing.T, r *chi.Mux) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"name": "Jane Doe", "email": "jane@x.com"})
	req := httptest.NewRequest(http.MethodPost, "/session/create", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if body.SessionID == "" {
		t.Fatal("expected a session id in the create response")
	}
	return body.SessionID
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestCreateSession(t *testing.T) {
	r, _ := setupRouter(t)
	createSession(t, r)
}

func TestCreateSessionMissingFields(t *testing.T) {
	r, _ := setupRouter(t)

	payload := []byte(`{"name": "Jane Doe"}`)
	req := httptest.NewRequest(http.MethodPost, "/session/create", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetSession(t *testing.T) {
	r, _ := setupRouter(t)
	id := createSession(t, r)

	req := httptest.NewRequest(http.MethodGet, "/session/"+id, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var sess model.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Status != model.StatusActive || sess.AlertCount != 0 {
		t.Fatalf("unexpected session payload: %+v", sess)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/session/missing", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestEndSession(t *testing.T) {
	r, registry := setupRouter(t)
	id := createSession(t, r)

	req := httptest.NewRequest(http.MethodPost, "/session/"+id+"/end", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	sess, err := registry.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if sess.Status != model.StatusCompleted || sess.EndTime == nil {
		t.Fatalf("session not completed: %+v", sess)
	}

	// Ending again is a no-op, not an error.
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/session/"+id+"/end", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeated end, got %d", resp.Code)
	}
}

func TestListSessions(t *testing.T) {
	r, registry := setupRouter(t)
	id := createSession(t, r)
	createSession(t, r)

	if _, err := registry.End(context.Background(), id); err != nil {
		t.Fatalf("End err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var active []model.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions?all=true", nil))

	var all []model.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions including completed, got %d", len(all))
	}
}

func TestSessionReport(t *testing.T) {
	r, registry := setupRouter(t)
	id := createSession(t, r)

	alerts := []model.Alert{{Type: model.AlertMultipleFaces, Message: "Multiple faces detected"}}
	if err := registry.AppendAlerts(context.Background(), id, alerts); err != nil {
		t.Fatalf("AppendAlerts err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/session/"+id+"/report", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var rep report.Report
	if err := json.Unmarshal(resp.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.SessionID != id || rep.Summary == "" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}
