package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"spendlens/internal/fault"
	"spendlens/internal/warehouse"
)

// handleWeeklyStream runs the suggestion pipeline live and relays its events
// as SSE frames: one "data:" line of compact JSON per event, blank line
// after, no "event:" field (the kind travels inside the payload).
func (s *Server) handleWeeklyStream(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	week, err := weekParam(r)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if week.IsZero() {
		week = warehouse.MostRecentCompletedWeek(time.Now().UTC())
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fault.Internal, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StreamTimeout())
	defer cancel()

	log.Printf("[API] Stream starting: user=%s week=%s", userID, week)
	start := time.Now()

	events := 0
	for ev := range s.pipeline.Stream(ctx, userID, week, false) {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[API] Stream marshal error: %v", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		events++
	}

	log.Printf("[API] Stream complete: user=%s week=%s, %d events in %dms",
		userID, week, events, time.Since(start).Milliseconds())
}
