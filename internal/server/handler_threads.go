package server

import "net/http"

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.live == nil {
		respondUnavailable(w, reqID, "a live scheduler")
		return
	}
	respondOK(w, reqID, s.live.Threads())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.live == nil {
		respondUnavailable(w, reqID, "a live scheduler")
		return
	}
	respondOK(w, reqID, s.live.Stats())
}
