package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "uthreads status API",
		Version:     "v1",
		Description: "Live green-thread scheduler state and the scheduling journal",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/api/v1/threads", []string{"GET"}, "Live threads with derived states and quanta"},
			{"/api/v1/stats", []string{"GET"}, "Live scheduler counters and queues"},
			{"/api/v1/runs", []string{"GET"}, "Journaled runs, newest first"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Scheduling events of a run (?kind=, ?tid=, ?limit=, ?offset=)"},
			{"/api/v1/runs/{id}/quanta", []string{"GET"}, "Quanta per tid of a run"},
		},
	})
}
