package monitor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/examsentry/backend/internal/model/frame"
	"github.com/examsentry/backend/internal/service/detection"
	"github.com/examsentry/backend/internal/service/hub"
)

type stubDetector struct {
	findings []frame.Finding
}

func (d *stubDetector) Name() string { return "stub" }

func (d *stubDetector) Detect(_ context.Context, _ frame.Frame) ([]frame.Finding, error) {
	return d.findings, nil
}

type stubDispatcher struct {
	submitted []string
	err       error
}

func (d *stubDispatcher) Submit(_ context.Context, sessionID string, _, _ []byte) error {
	if d.err != nil {
		return d.err
	}
	d.submitted = append(d.submitted, sessionID)
	return nil
}

type stubChecker struct {
	known map[string]bool
}

func (c *stubChecker) Exists(sessionID string) bool { return c.known[sessionID] }

func newTestHandler(dispatcher FrameDispatcher, findings ...frame.Finding) *Handler {
	h := hub.NewHub(&stubChecker{known: map[string]bool{"s1": true}}, 4)
	pipeline := detection.NewPipeline(time.Second, &stubDetector{findings: findings})
	return New(h, dispatcher, pipeline)
}

func TestDecodeMedia(t *testing.T) {
	raw := []byte("jpeg-bytes")
	plain := base64.StdEncoding.EncodeToString(raw)

	decoded, err := decodeMedia(plain)
	if err != nil {
		t.Fatalf("decode plain base64: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("unexpected decoded bytes: %q", decoded)
	}

	decoded, err = decodeMedia("data:image/jpeg;base64," + plain)
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatalf("unexpected decoded bytes from data url: %q", decoded)
	}

	if _, err := decodeMedia("%%not-base64%%"); err == nil {
		t.Fatal("expected error for invalid encoding")
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	h := newTestHandler(&stubDispatcher{},
		frame.Finding{Kind: frame.FindingFaceCount, FaceCount: 2},
		frame.Finding{Kind: frame.FindingGaze, Gaze: frame.GazeOnScreen},
	)

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	image := base64.StdEncoding.EncodeToString([]byte("frame"))
	payload, _ := json.Marshal(map[string]string{"image": image})
	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["faceCount"] != float64(2) {
		t.Fatalf("expected faceCount 2, got %v", body["faceCount"])
	}
	if body["gaze"] != string(frame.GazeOnScreen) {
		t.Fatalf("expected on-screen gaze, got %v", body["gaze"])
	}
}

func TestAnalyzeEndpointRejectsMissingFrame(t *testing.T) {
	h := newTestHandler(&stubDispatcher{})

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestHandleJoinUnknownSession(t *testing.T) {
	h := newTestHandler(&stubDispatcher{})
	sub := h.hub.NewSubscriber()
	out := make(chan outgoingMessage, 4)

	h.handleJoin(sub, out, "ghost")

	msg := <-out
	if msg.Type != "error" {
		t.Fatalf("expected error message, got %s", msg.Type)
	}
}

func TestHandleJoinKnownSession(t *testing.T) {
	h := newTestHandler(&stubDispatcher{})
	sub := h.hub.NewSubscriber()
	out := make(chan outgoingMessage, 4)

	h.handleJoin(sub, out, "s1")

	msg := <-out
	if msg.Type != "session_joined" || msg.SessionID != "s1" {
		t.Fatalf("unexpected join reply: %+v", msg)
	}
	if h.hub.RoomSize("s1") != 1 {
		t.Fatal("subscriber not added to room")
	}
}

func TestHandleFrameSubmits(t *testing.T) {
	dispatcher := &stubDispatcher{}
	h := newTestHandler(dispatcher)
	out := make(chan outgoingMessage, 4)

	image := base64.StdEncoding.EncodeToString([]byte("frame"))
	data, _ := json.Marshal(FramePayload{Image: image})
	h.handleFrame(context.Background(), out, &inboundMessage{Type: "frame", SessionID: "s1", Data: data})

	if len(dispatcher.submitted) != 1 || dispatcher.submitted[0] != "s1" {
		t.Fatalf("frame not dispatched: %+v", dispatcher.submitted)
	}
	select {
	case msg := <-out:
		t.Fatalf("accepted frame must not produce a reply, got %s", msg.Type)
	default:
	}
}

func TestHandleFrameBackpressure(t *testing.T) {
	h := newTestHandler(&stubDispatcher{err: detection.ErrBackpressure})
	out := make(chan outgoingMessage, 4)

	image := base64.StdEncoding.EncodeToString([]byte("frame"))
	data, _ := json.Marshal(FramePayload{Image: image})
	h.handleFrame(context.Background(), out, &inboundMessage{Type: "frame", SessionID: "s1", Data: data})

	msg := <-out
	if msg.Type != "frame_dropped" {
		t.Fatalf("expected frame_dropped, got %s", msg.Type)
	}
}

func TestHandleFrameInvalidSession(t *testing.T) {
	h := newTestHandler(&stubDispatcher{err: detection.ErrInvalidSession})
	out := make(chan outgoingMessage, 4)

	image := base64.StdEncoding.EncodeToString([]byte("frame"))
	data, _ := json.Marshal(FramePayload{Image: image})
	h.handleFrame(context.Background(), out, &inboundMessage{Type: "frame", SessionID: "ghost", Data: data})

	msg := <-out
	if msg.Type != "error" {
		t.Fatalf("expected error message, got %s", msg.Type)
	}
}

func TestHandleFrameInvalidPayload(t *testing.T) {
	dispatcher := &stubDispatcher{}
	h := newTestHandler(dispatcher)
	out := make(chan outgoingMessage, 4)

	h.handleFrame(context.Background(), out, &inboundMessage{Type: "frame", SessionID: "s1", Data: []byte(`{"image":""}`)})

	msg := <-out
	if msg.Type != "error" {
		t.Fatalf("expected error message, got %s", msg.Type)
	}
	if len(dispatcher.submitted) != 0 {
		t.Fatal("invalid payload must not reach the dispatcher")
	}
}

func TestStreamUnknownSession(t *testing.T) {
	h := newTestHandler(&stubDispatcher{})

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/stream/ghost", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
