package api

import (
	"net/http"
	"time"
)

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDQuery(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	limit, err := limitParam(r, 10, 20)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	predictions, err := s.analyzer.PredictNext(r.Context(), userID, limit, time.Time{})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, emptyIfNil(predictions))
}

func (s *Server) handleSmartTips(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDQuery(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	limit, err := limitParam(r, 10, 20)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	tips, err := s.analyzer.SmartTips(r.Context(), userID, limit, time.Now().UTC())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, emptyIfNil(tips))
}

func (s *Server) handleBetterDeals(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDQuery(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	limit, err := limitParam(r, 10, 20)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	deals, err := s.analyzer.SuggestDeals(r.Context(), userID, limit, time.Now().UTC())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, emptyIfNil(deals))
}
