package api

import (
	"net/http"
	"strings"
	"time"

	"lessonflow/internal/flow"
	"lessonflow/internal/models"

	"github.com/go-chi/chi/v5"
)

type startRequest struct {
	FlowType models.FlowType `json:"flow_type"`
	Identity models.Identity `json:"identity"`
	Prefill  models.Draft    `json:"prefill"`
}

type jumpRequest struct {
	Step models.StepName `json:"step"`
}

type waiverRequest struct {
	Signed   bool       `json:"signed"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

func (s *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.FlowType == "" {
		writeError(w, http.StatusBadRequest, "flow_type is required")
		return
	}
	if body.Identity.IsAdmin && !s.auth.allowAdmin(r.Context()) {
		writeError(w, http.StatusForbidden, errPermissionDenied.Error())
		return
	}

	view, err := s.svc.Flows.Start(r.Context(), body.FlowType, body.Identity, body.Prefill)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r, func(id string) (flow.View, error) {
		return s.svc.Flows.Get(r.Context(), id)
	})
}

func (s *HTTPServer) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var patch models.DraftPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondView(w, r, func(id string) (flow.View, error) {
		return s.svc.Flows.UpdateDraft(r.Context(), id, patch)
	})
}

func (s *HTTPServer) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r, func(id string) (flow.View, error) {
		return s.svc.Flows.Advance(r.Context(), id)
	})
}

func (s *HTTPServer) handleRetreat(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r, func(id string) (flow.View, error) {
		return s.svc.Flows.Retreat(r.Context(), id)
	})
}

func (s *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r, func(id string) (flow.View, error) {
		return s.svc.Flows.Reset(r.Context(), id)
	})
}

func (s *HTTPServer) handleJump(w http.ResponseWriter, r *http.Request) {
	var body jumpRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Step == "" {
		writeError(w, http.StatusBadRequest, "step is required")
		return
	}
	s.respondView(w, r, func(id string) (flow.View, error) {
		return s.svc.Flows.Jump(r.Context(), id, body.Step)
	})
}

// handleWaiver receives the signal of the external waiver collaborator.
func (s *HTTPServer) handleWaiver(w http.ResponseWriter, r *http.Request) {
	var body waiverRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondView(w, r, func(id string) (flow.View, error) {
		return s.svc.Flows.SetWaiver(r.Context(), id, body.Signed, body.SignedAt)
	})
}

func (s *HTTPServer) handleCommit(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	result, err := s.svc.Flows.Commit(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) respondView(w http.ResponseWriter, r *http.Request, fn func(id string) (flow.View, error)) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	view, err := fn(id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
