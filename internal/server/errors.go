// Package server provides the HTTP REST API for the voice autopilot.
package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/voice-autopilot/internal/extraction"
	"github.com/jonathan/voice-autopilot/internal/gate"
	"github.com/jonathan/voice-autopilot/internal/pipeline"
	"github.com/jonathan/voice-autopilot/internal/store"
	"github.com/jonathan/voice-autopilot/internal/types"
)

const internalErrorDetailMax = 200

// writeError maps a pipeline or gate error to an HTTP status and writes the
// error response. Internal details are bounded before they reach the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var notFound *store.RunNotFoundError
	var extractionErr *extraction.Error

	switch {
	case errors.Is(err, pipeline.ErrEmptyTranscript):
		s.errorResponse(w, http.StatusBadRequest, "No usable input: transcript is empty")
	case errors.As(err, &notFound):
		s.errorResponse(w, http.StatusNotFound, notFound.Error())
	case errors.Is(err, gate.ErrConfirmInFlight):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.As(err, &extractionErr):
		s.errorResponse(w, http.StatusUnprocessableEntity, extractionErr.Error())
	default:
		s.errorResponse(w, http.StatusInternalServerError, "Internal error: "+types.Truncate(err.Error(), internalErrorDetailMax))
	}
}
