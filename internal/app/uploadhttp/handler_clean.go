package uploadhttp

import (
	"net/http"
	"strconv"
)

type cleanResponse struct {
	Success     bool `json:"success"`
	DryRun      bool `json:"dry_run"`
	Count       int  `json:"count"`
	StuckFailed int  `json:"stuck_failed"`
}

func (s *Server) postClean(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if value := r.URL.Query().Get("dry_run"); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			s.writeError(w, validation("dry_run", "The dry run field must be true or false."))
			return
		}
		dryRun = parsed
	}

	result, err := s.manager.Sweep(r.Context(), dryRun)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info("Sweep requested over HTTP: %d session(s) %s, %d stuck", result.Cleaned, cleanVerb(dryRun), result.StuckFailed)
	writeJSON(w, http.StatusOK, cleanResponse{
		Success:     true,
		DryRun:      result.DryRun,
		Count:       result.Cleaned,
		StuckFailed: result.StuckFailed,
	})
}

func cleanVerb(dryRun bool) string {
	if dryRun {
		return "reclaimable"
	}
	return "cleaned"
}
