package monitor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/examsentry/backend/internal/service/detection"
	"github.com/examsentry/backend/internal/service/hub"
)

const (
	readDeadline  = 60 * time.Second
	pingInterval  = 54 * time.Second
	outboundDepth = 32
)

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// FramePayload carries one captured frame from the candidate client. Image
// is base64, optionally as a data URL; Audio is optional base64 PCM.
type FramePayload struct {
	Image string `json:"image"`
	Audio string `json:"audio,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket runs one monitoring connection. A connection may join one
// session room to receive detection alerts, and may submit frames for any
// active session. All writes to the socket go through a single writer
// goroutine; the read loop and the alert pump only enqueue.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] client connected: %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.hub.NewSubscriber()
	defer h.hub.Leave(sub)

	out := make(chan outgoingMessage, outboundDepth)
	go h.writePump(ctx, conn, out)
	go h.alertPump(ctx, sub, out)

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			log.Printf("[websocket] client disconnected: %s", r.RemoteAddr)
			return
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.handleMessage(ctx, sub, out, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, sub *hub.Subscriber, out chan<- outgoingMessage, msg *inboundMessage) {
	switch msg.Type {
	case "join_session":
		h.handleJoin(sub, out, msg.SessionID)
	case "frame":
		h.handleFrame(ctx, out, msg)
	default:
		send(out, errorMessage("unsupported message type: "+msg.Type))
	}
}

func (h *Handler) handleJoin(sub *hub.Subscriber, out chan<- outgoingMessage, sessionID string) {
	if sessionID == "" {
		send(out, errorMessage("sessionId is required"))
		return
	}

	if err := h.hub.Join(sub, sessionID); err != nil {
		send(out, errorMessage("invalid session ID"))
		return
	}

	log.Printf("[websocket] subscriber joined session %s", sessionID)
	send(out, outgoingMessage{
		Type:      "session_joined",
		SessionID: sessionID,
		Timestamp: time.Now().Unix(),
	})
}

func (h *Handler) handleFrame(ctx context.Context, out chan<- outgoingMessage, msg *inboundMessage) {
	if msg.SessionID == "" {
		send(out, errorMessage("sessionId is required"))
		return
	}

	var payload FramePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Image == "" {
		send(out, errorMessage("invalid frame payload"))
		return
	}

	image, err := decodeMedia(payload.Image)
	if err != nil {
		send(out, errorMessage("invalid frame encoding"))
		return
	}

	var audio []byte
	if payload.Audio != "" {
		if audio, err = decodeMedia(payload.Audio); err != nil {
			send(out, errorMessage("invalid audio encoding"))
			return
		}
	}

	switch err := h.dispatcher.Submit(ctx, msg.SessionID, image, audio); {
	case errors.Is(err, detection.ErrInvalidSession):
		send(out, errorMessage("invalid session ID"))
	case errors.Is(err, detection.ErrBackpressure):
		// Expected under load; the client keeps sending and the newest
		// frame wins once the session is free again.
		send(out, outgoingMessage{
			Type:      "frame_dropped",
			SessionID: msg.SessionID,
			Timestamp: time.Now().Unix(),
		})
	case err != nil:
		send(out, errorMessage("frame rejected"))
	}
}

// writePump is the only goroutine allowed to write to the connection.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, out <-chan outgoingMessage) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[websocket] write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// alertPump forwards hub events for the joined session into the writer.
func (h *Handler) alertPump(ctx context.Context, sub *hub.Subscriber, out chan<- outgoingMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			send(out, outgoingMessage{
				Type:      "detection_alert",
				SessionID: event.SessionID,
				Data: map[string]interface{}{
					"alerts":    event.Alerts,
					"timestamp": event.Timestamp,
				},
				Timestamp: time.Now().Unix(),
			})
		}
	}
}

// send enqueues without blocking; a connection that cannot drain its
// outbound queue loses messages rather than stalling frame handling.
func send(out chan<- outgoingMessage, msg outgoingMessage) {
	select {
	case out <- msg:
	default:
		log.Printf("[websocket] outbound queue full, dropping %s message", msg.Type)
	}
}

func errorMessage(text string) outgoingMessage {
	return outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": text},
		Timestamp: time.Now().Unix(),
	}
}

// decodeMedia accepts raw base64 or a data URL ("data:image/jpeg;base64,…").
func decodeMedia(encoded string) ([]byte, error) {
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	return base64.StdEncoding.DecodeString(encoded)
}
