package api

import (
	"encoding/json"
	"net/http"
)

// handleSchedulerRunNow triggers an out-of-band vacuum pass instead of
// waiting for the weekly interval, for manual/administrative use.
func (s *ControlServer) handleSchedulerRunNow(w http.ResponseWriter, r *http.Request) {
	report, err := s.sched.RunOnce(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(report)
}
