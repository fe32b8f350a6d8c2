package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/uthreads/pkg/model"
)

// parseListOptions reads limit, offset, kind and tid from the query string.
func parseListOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	opts := model.DefaultListOptions()
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, model.NewValidationError("limit must be an integer")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, model.NewValidationError("offset must be an integer")
		}
		opts.Offset = n
	}
	if v := q.Get("kind"); v != "" {
		opts.Kind = model.EventKind(v)
	}
	if v := q.Get("tid"); v != "" {
		tid, err := strconv.Atoi(v)
		if err != nil {
			return opts, model.NewValidationError("tid must be an integer")
		}
		opts.TID = &tid
	}
	opts.Clamp()
	return opts, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondUnavailable(w, reqID, "the journal")
		return
	}
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondList(w, reqID, runs, pagination(total, opts))
}

// lookupRun writes the error response and returns nil when the run cannot be
// served.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request, reqID string) *model.Run {
	if s.store == nil {
		respondUnavailable(w, reqID, "the journal")
		return nil
	}
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("get run", "id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return nil
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil
	}
	return run
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if run := s.lookupRun(w, r, reqID); run != nil {
		respondOK(w, reqID, run)
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.lookupRun(w, r, reqID)
	if run == nil {
		return
	}
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	events, total, err := s.store.ListEvents(r.Context(), run.ID, opts)
	if err != nil {
		s.logger.Error("list events", "run_id", run.ID, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	respondList(w, reqID, events, pagination(total, opts))
}

func (s *Server) handleQuanta(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run := s.lookupRun(w, r, reqID)
	if run == nil {
		return
	}
	rows, err := s.store.QuantaByThread(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("quanta by thread", "run_id", run.ID, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if rows == nil {
		rows = []model.ThreadQuanta{}
	}
	respondOK(w, reqID, rows)
}
