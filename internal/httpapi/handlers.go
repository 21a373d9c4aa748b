package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crosspub/internal/publish"
	"crosspub/internal/scheduler"
	"crosspub/internal/store"
	logx "crosspub/pkg/logx"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain errors to status codes. Unknown errors are 500 with
// a generic body; details stay in the log.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrScheduledNotFound),
		errors.Is(err, store.ErrPostNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, publish.ErrNoPlatforms),
		errors.Is(err, publish.ErrDuplicatePlatform),
		errors.Is(err, scheduler.ErrScheduleInPast):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publish.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	sub, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		// Validation errors surface as 400; everything else is logged below.
		if errors.Is(err, publish.ErrNoPlatforms) ||
			errors.Is(err, publish.ErrDuplicatePlatform) ||
			errors.Is(err, scheduler.ErrScheduleInPast) {
			writeErr(w, err)
			return
		}
		s.log.Error("publish failed", logx.Err(err))
		writeErr(w, err)
		return
	}

	status := http.StatusOK
	if sub.Mode == "scheduled" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, sub)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.JobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Resubmit(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleScheduledStatus(w http.ResponseWriter, r *http.Request) {
	sp, err := s.svc.ScheduledStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) handleCancelScheduled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.svc.CancelScheduled(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		// Already claimed, finished or cancelled; cancellation is a no-op.
		writeJSON(w, http.StatusConflict, map[string]any{"cancelled": false, "id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "id": id})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.PostAnalytics(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Platforms())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.events.snapshot())
}
