package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Scheduler string `json:"scheduler"`
	Journal   string `json:"journal"`
	RunID     string `json:"run_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: "none",
		Journal:   "disabled",
		RunID:     s.runID,
	}
	if s.live != nil {
		resp.Scheduler = "running"
		if s.live.Stats().Running < 0 {
			resp.Scheduler = "stopped"
		}
	}
	if s.store != nil {
		resp.Journal = "sqlite"
	}
	respondOK(w, reqID, resp)
}
