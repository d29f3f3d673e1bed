package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mateonavarro/clara/internal/dialog"
	"github.com/mateonavarro/clara/internal/history"
	"github.com/mateonavarro/clara/internal/prefs"
	"github.com/mateonavarro/clara/internal/voice"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.cfg.VoiceProvider,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"session_id": s.controller.SessionID(),
	})
}

type historyResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []history.Message `json:"messages"`
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, historyResponse{
		SessionID: s.controller.SessionID(),
		Messages:  s.controller.Messages(),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.ClearHistory(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, historyResponse{
		SessionID: s.controller.SessionID(),
		Messages:  s.controller.Messages(),
	})
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	Message history.Message        `json:"message"`
	State   voice.InteractionState `json:"state"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", "text is required")
		return
	}

	msg, err := s.controller.Send(r.Context(), req.Text)
	switch {
	case errors.Is(err, voice.ErrExchangeInFlight):
		respondError(w, http.StatusConflict, "exchange_in_flight", err.Error())
		return
	case errors.Is(err, voice.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "empty_message", err.Error())
		return
	case err != nil && !dialog.IsNetworkError(err):
		// A persistence failure means nothing was appended; there is no
		// message to render.
		respondError(w, http.StatusInternalServerError, "send_failed", err.Error())
		return
	}
	// A dialog failure still produced the apology message; report it as a
	// normal reply so the widget renders the same thing either way.
	respondJSON(w, http.StatusOK, sendResponse{Message: msg, State: s.controller.State()})
}

type capabilityResponse struct {
	CaptureSupported bool   `json:"capture_supported"`
	OutputSupported  bool   `json:"output_supported"`
	MicPermission    string `json:"mic_permission"`
}

func (s *Server) handleCapability(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, capabilityResponse{
		CaptureSupported: s.controller.CaptureSupported(),
		OutputSupported:  s.controller.OutputSupported(),
		MicPermission:    string(s.permissions.State()),
	})
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.controller.Voices(r.Context())
	if err != nil {
		if errors.Is(err, voice.ErrNoClientAttached) || errors.Is(err, voice.ErrOutputUnsupported) {
			respondJSON(w, http.StatusOK, map[string]any{"voices": []voice.VoiceInfo{}})
			return
		}
		respondError(w, http.StatusInternalServerError, "voices_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.prefs.Snapshot())
}

func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	var req prefs.Preferences
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.VoicePreference) == "" {
		req.VoicePreference = "default"
	}
	if err := s.prefs.Update(req); err != nil {
		respondError(w, http.StatusInternalServerError, "prefs_write_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.prefs.Snapshot())
}
