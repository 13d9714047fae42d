package api

import (
	"net/http"
)

func (s *Server) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	week, err := weekParam(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	// Zero week means the most recent stored report.
	report, err := s.store.GetReport(r.Context(), userID, week)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleWeeklyHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	limit, err := limitParam(r, 4, 20)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	reports, err := s.store.ListReportHistory(r.Context(), userID, limit)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, emptyIfNil(reports))
}
