package api

import (
	"errors"
	"net/http"

	"lessonflow/internal/database"
	"lessonflow/internal/domain"
	"lessonflow/internal/export"
	"lessonflow/internal/models"
)

type validationResponse struct {
	Error  string          `json:"error"`
	Step   models.StepName `json:"step"`
	Fields []string        `json:"fields"`
}

type conflictResponse struct {
	Error        string   `json:"error"`
	Date         string   `json:"date"`
	Time         string   `json:"time"`
	Alternatives []string `json:"alternatives"`
}

type partialResponse struct {
	Error     string `json:"error"`
	BookingID int64  `json:"booking_id"`
	Stage     string `json:"stage"`
}

var badRequestErrors = []error{
	domain.ErrUnknownFlowType,
	domain.ErrUnknownStep,
	domain.ErrInvalidSlot,
	domain.ErrFocusAreaLimit,
	domain.ErrIncompleteDraft,
	export.ErrInvalidRange,
}

// writeServiceError maps service errors onto HTTP responses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *domain.ValidationError
		conflict *domain.SlotConflictError
		lost     *domain.SlotLostError
		partial  *domain.PartialCommitError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: verr.Error(), Step: verr.Step, Fields: verr.Fields})
		return
	case errors.As(err, &conflict):
		alternatives := conflict.Alternatives
		if alternatives == nil {
			alternatives = []string{}
		}
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:        conflict.Error(),
			Date:         conflict.Date,
			Time:         conflict.Time,
			Alternatives: alternatives,
		})
		return
	case errors.As(err, &lost):
		writeJSON(w, http.StatusConflict, conflictResponse{Error: lost.Error(), Date: lost.Date, Time: lost.Time, Alternatives: []string{}})
		return
	case errors.As(err, &partial):
		writeJSON(w, http.StatusAccepted, partialResponse{Error: partial.Error(), BookingID: partial.BookingID, Stage: partial.Stage})
		return
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrAdminOnly):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, domain.ErrNotTerminal), errors.Is(err, domain.ErrAlreadyCommitted), errors.Is(err, domain.ErrCommitIncomplete):
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}
