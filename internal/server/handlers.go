package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/voice-autopilot/internal/pipeline"
	"github.com/jonathan/voice-autopilot/internal/store"
	"github.com/jonathan/voice-autopilot/internal/types"
)

// RunRequest represents the request body for /run
type RunRequest struct {
	Mode        string `json:"mode" validate:"required,oneof=audio text"`
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// ConfirmRequest represents the request body for /confirm
type ConfirmRequest struct {
	RunID   string         `json:"run_id" validate:"required"`
	Actions []types.Action `json:"actions" validate:"required"`
}

// ConfirmResponse represents the response for /confirm
type ConfirmResponse struct {
	RunID   string               `json:"run_id"`
	Results []types.ActionResult `json:"results"`
}

// AdjustTimeRequest represents the request body for /adjust-time
type AdjustTimeRequest struct {
	Mode        string       `json:"mode" validate:"required,oneof=audio text"`
	Text        string       `json:"text,omitempty"`
	AudioBase64 string       `json:"audio_base64,omitempty"`
	Locale      string       `json:"locale,omitempty"`
	Action      types.Action `json:"action"`
}

// AdjustTimeResponse represents the response for /adjust-time
type AdjustTimeResponse struct {
	Action   types.Action `json:"action"`
	UserText string       `json:"user_text"`
}

// IngestRequest represents the request body for /ingest
type IngestRequest struct {
	Dir string `json:"dir,omitempty"`
}

// handleRun processes one conversation end to end through previewed actions.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	mode := types.Mode(req.Mode)
	if mode == types.ModeAudio && req.AudioBase64 == "" {
		s.errorResponse(w, http.StatusBadRequest, "audio_base64 is required for audio mode")
		return
	}
	if mode == types.ModeText && req.Text == "" {
		s.errorResponse(w, http.StatusBadRequest, "text is required for text mode")
		return
	}

	out, err := s.pipeline.Run(r.Context(), pipeline.RunInput{
		Mode:        mode,
		Text:        req.Text,
		AudioBase64: req.AudioBase64,
		Locale:      req.Locale,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, out)
}

// handleConfirm executes the reviewed action batch behind the confirmation
// gate and records the results on the run.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	run, err := s.store.Get(r.Context(), req.RunID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	lang := "en"
	summary := ""
	if run.Extracted != nil {
		lang = run.Extracted.Language()
		summary = run.Extracted.Summary
	}

	results, err := s.gate.Confirm(r.Context(), req.RunID, req.Actions, run.Transcript, summary, lang)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := types.StatusExecuted
	if _, err := s.store.Patch(r.Context(), req.RunID, store.RunPatch{
		Results: results,
		Status:  &status,
	}); err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, ConfirmResponse{RunID: req.RunID, Results: results})
}

// handleAdjustTime re-resolves a meeting's slots from fresh user input.
func (s *Server) handleAdjustTime(w http.ResponseWriter, r *http.Request) {
	var req AdjustTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.Action.ActionType != types.ActionCreateMeeting {
		s.errorResponse(w, http.StatusBadRequest, "Only create_meeting actions can be adjusted")
		return
	}

	action, userText, err := s.pipeline.AdjustTime(r.Context(), pipeline.AdjustInput{
		Mode:        types.Mode(req.Mode),
		Text:        req.Text,
		AudioBase64: req.AudioBase64,
		Locale:      req.Locale,
		Action:      req.Action,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, AdjustTimeResponse{Action: action, UserText: userText})
}

// handleIngest rebuilds the knowledge index from a document directory and
// drops the retrieval cache so new content is visible immediately.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	dir := req.Dir
	if dir == "" {
		dir = s.knowledgeDir
	}
	if dir == "" {
		s.errorResponse(w, http.StatusBadRequest, "No knowledge directory configured")
		return
	}

	stats, err := s.ingester.Ingest(r.Context(), dir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.retriever.ClearCache()

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "ok",
		"docs":   stats.Docs,
		"chunks": stats.Chunks,
	})
}

// handleGetRun returns the stored run record.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.errorResponse(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	run, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, run)
}
