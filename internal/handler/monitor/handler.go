package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/examsentry/backend/internal/model/frame"
	"github.com/examsentry/backend/internal/service/detection"
	"github.com/examsentry/backend/internal/service/hub"
	"github.com/examsentry/backend/pkg/utils"
)

// FrameDispatcher is the slice of the dispatcher the transport layer needs.
type FrameDispatcher interface {
	Submit(ctx context.Context, sessionID string, payload, audio []byte) error
}

// Handler exposes the live monitoring surface: the WebSocket feed, an SSE
// alert stream and a synchronous one-shot analysis endpoint.
type Handler struct {
	hub        *hub.Hub
	dispatcher FrameDispatcher
	pipeline   *detection.Pipeline
	upgrader   websocket.Upgrader
}

// New creates the monitoring handler.
func New(h *hub.Hub, dispatcher FrameDispatcher, pipeline *detection.Pipeline) *Handler {
	return &Handler{
		hub:        h,
		dispatcher: dispatcher,
		pipeline:   pipeline,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes registers the monitoring routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
	r.Post("/analyze", h.handleAnalyze)
	r.Get("/stream/{sessionID}", h.handleStream)
}

// handleAnalyze runs the full detector set over one uploaded frame and
// returns the raw findings without touching any session. Useful for client
// setup checks before an exam starts.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var payload FramePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Image == "" {
		utils.RespondError(w, http.StatusBadRequest, "no frame uploaded")
		return
	}

	image, err := decodeMedia(payload.Image)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid frame encoding")
		return
	}

	var audio []byte
	if payload.Audio != "" {
		if audio, err = decodeMedia(payload.Audio); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid audio encoding")
			return
		}
	}

	findings := h.pipeline.Run(r.Context(), frame.Frame{
		SessionID: "adhoc",
		Payload:   image,
		Audio:     audio,
		Timestamp: time.Now().UTC(),
	})

	utils.RespondJSON(w, http.StatusOK, findingsResponse(findings))
}

// findingsResponse flattens findings into the shape the frontend consumes.
func findingsResponse(findings []frame.Finding) map[string]interface{} {
	resp := make(map[string]interface{})
	for _, f := range findings {
		switch f.Kind {
		case frame.FindingFaceCount:
			resp["faceCount"] = f.FaceCount
		case frame.FindingGaze:
			resp["gaze"] = f.Gaze
		case frame.FindingVoiceActivity:
			resp["voiceActive"] = f.VoiceActive
		}
	}
	return resp
}

// handleStream serves a session's live alert feed over Server-Sent Events,
// for observers that cannot hold a WebSocket open.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.hub.NewSubscriber()
	if err := h.hub.Join(sub, sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	defer h.hub.Leave(sub)

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, map[string]interface{}{
		"event":     "status",
		"sessionId": sessionID,
		"message":   "stream established",
	})

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			utils.SendSSEEvent(w, flusher, "detection_alert", event)
		}
	}
}
