package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lessonflow/internal/export"
	"lessonflow/internal/models"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleReserved(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	active, err := s.svc.Reservations.ListActive(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "reserved": active})
}

func (s *HTTPServer) handleAvailable(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	av, err := s.svc.Availability.ForDate(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, av)
}

// handleParentAthletes lists the athletes on file for the parent portal.
func (s *HTTPServer) handleParentAthletes(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid parent id")
		return
	}

	parent, err := s.svc.Parents.GetParent(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	athletes, err := s.svc.Parents.GetAthletesByParent(r.Context(), parent.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if athletes == nil {
		athletes = []*models.Athlete{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"parent": parent, "athletes": athletes})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	var buf bytes.Buffer
	n, err := s.svc.Exporter.Write(r.Context(), &buf, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info().Str("from", from).Str("to", to).Int("bookings", n).Msg("bookings exported")
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := strings.TrimSpace(chi.URLParam(r, "date"))
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return "", false
	}
	return date, true
}
