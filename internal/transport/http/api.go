package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"singbirds-quiz-service/internal/app"
	"singbirds-quiz-service/internal/domain"
)

// HotspotLister supplies the start view's hotspot selector.
type HotspotLister interface {
	ListHotspots(ctx context.Context) ([]domain.Hotspot, error)
}

// API serves the quiz over JSON.
type API struct {
	service  *app.QuizService
	hotspots HotspotLister
	logger   *slog.Logger
}

func NewAPI(service *app.QuizService, hotspots HotspotLister, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{service: service, hotspots: hotspots, logger: logger.With("component", "http")}
}

// Register mounts the JSON routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/hotspots", a.HandleHotspots)
	mux.HandleFunc("POST /api/sessions", a.HandleStart)
	mux.HandleFunc("GET /api/sessions/{id}", a.HandleSnapshot)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.HandleAbandon)
	mux.HandleFunc("POST /api/sessions/{id}/load", a.HandleLoad)
	mux.HandleFunc("POST /api/sessions/{id}/answer", a.HandleAnswer)
	mux.HandleFunc("POST /api/sessions/{id}/next", a.HandleNext)
	mux.HandleFunc("GET /api/sessions/{id}/result", a.HandleResult)
	mux.HandleFunc("GET /api/species/description", a.HandleDescription)
}

type startRequest struct {
	HotspotID     string `json:"hotspotId"`
	QuestionCount int    `json:"questionCount"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) HandleHotspots(w http.ResponseWriter, r *http.Request) {
	if a.hotspots == nil {
		writeJSON(w, http.StatusOK, []domain.Hotspot{})
		return
	}
	hotspots, err := a.hotspots.ListHotspots(r.Context())
	if err != nil {
		a.logger.Warn("hotspot listing failed", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hotspots)
}

func (a *API) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	snap, err := a.service.Start(r.Context(), strings.TrimSpace(req.HotspotID), req.QuestionCount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) HandleLoad(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.LoadQuestion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	snap, err := a.service.SubmitAnswer(r.Context(), r.PathValue("id"), req.Answer)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) HandleNext(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.Next(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) HandleResult(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Abandon(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) HandleDescription(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}
	writeJSON(w, http.StatusOK, a.service.Describe(r.Context(), name))
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, domain.ErrHotspotRequired):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "hotspotId is required"})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrQuestionNotReady):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrMalformedPayload):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "catalog unavailable"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "request canceled"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "request failed"})
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
