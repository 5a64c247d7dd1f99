package uploadhttp

import (
	"net/http"
	"time"
)

type healthResponse struct {
	OK     bool   `json:"ok"`
	Uptime string `json:"uptime"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: true, Uptime: time.Since(s.started).Round(time.Second).String()}

	if s.health != nil {
		if err := s.health.Health(r.Context()); err != nil {
			resp.OK = false
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
