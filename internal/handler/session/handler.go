package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/examsentry/backend/internal/service/report"
	sessionService "github.com/examsentry/backend/internal/service/session"
	"github.com/examsentry/backend/pkg/utils"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	registry *sessionService.Service
	reports  *report.Service
}

// New creates the session handler.
func New(registry *sessionService.Service, reports *report.Service) *Handler {
	return &Handler{registry: registry, reports: reports}
}

// RegisterRoutes registers the session REST surface.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Post("/session/create", h.handleCreate)
	r.Get("/session/{sessionID}", h.handleGet)
	r.Get("/session/{sessionID}/report", h.handleReport)
	r.Post("/session/{sessionID}/end", h.handleEnd)
	r.Get("/sessions", h.handleList)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.registry.Create(r.Context(), payload.Name, payload.Email)
	if err != nil {
		if errors.Is(err, sessionService.ErrValidation) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{
		"sessionId": sess.ID,
		"status":    "created",
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.registry.Get(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.registry.Get(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.reports.Generate(r.Context(), sess))
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.registry.End(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  sess.Status,
		"endTime": sess.EndTime,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	includeCompleted := r.URL.Query().Get("all") == "true"
	utils.RespondJSON(w, http.StatusOK, h.registry.List(r.Context(), includeCompleted))
}
