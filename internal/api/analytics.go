package api

import (
	"encoding/json"
	"net/http"

	"github.com/Pradhumn115/ruma-core/internal/network"
)

func (s *ControlServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.downloads.GetStats().GetAnalytics())
}

func (s *ControlServer) handleSpeedTest(w http.ResponseWriter, r *http.Request) {
	result, err := s.downloads.GetStats().RunSpeedTest(nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if limit := network.RecommendedBandwidthLimit(result); limit > 0 {
		s.downloads.SetGlobalLimit(limit)
	}
	json.NewEncoder(w).Encode(result)
}

func (s *ControlServer) handleSpeedTestHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.downloads.GetStats().SpeedTestHistory(20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(history)
}
