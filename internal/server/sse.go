package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	sseHeartbeat   = 30 * time.Second
	sseResumeLimit = 100
)

// handleTableStream is the per-table SSE feed. Missed events are replayed
// from lastEventId, then live notifications are pushed as they commit.
func (s *Server) handleTableStream(w http.ResponseWriter, r *http.Request) {
	tableID, err := pathInt64(r, "tableId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var lastEventID int64
	if v := r.URL.Query().Get("lastEventId"); v != "" {
		lastEventID, err = strconv.ParseInt(v, 10, 64)
		if err != nil || lastEventID < 0 {
			writeValidation(w, "lastEventId must be a non-negative number")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeValidation(w, "streaming unsupported by connection")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	lastSent := lastEventID

	// Replay the gap before going live; the subscription is already
	// registered, and the eventId watermark drops duplicates.
	ch, cancel := s.dist.Subscribe(&tableID)
	defer cancel()

	if lastEventID > 0 {
		missed, err := s.log.ByTableSince(ctx, s.pool, tableID, lastEventID, sseResumeLimit)
		if err != nil {
			s.lg.WithError(err).WithField("tableId", tableID).Error("sse resume failed")
			return
		}
		for _, ev := range missed {
			writeFrame(w, ev.ID, ev.PayloadJSON)
			lastSent = ev.ID
		}
		flusher.Flush()
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case n, open := <-ch:
			if !open {
				return
			}
			if n.TableID == nil || *n.TableID != tableID || n.EventID <= lastSent {
				continue
			}
			ev, err := s.log.ByID(ctx, s.pool, n.EventID)
			if err != nil {
				s.lg.WithError(err).WithField("eventId", n.EventID).Warn("sse event load failed")
				continue
			}
			writeFrame(w, ev.ID, ev.PayloadJSON)
			lastSent = ev.ID
			flusher.Flush()
		}
	}
}

// writeFrame emits one SSE frame. A newline inside the payload would break
// framing, so each line gets its own data: field.
func writeFrame(w http.ResponseWriter, id int64, payload string) {
	fmt.Fprintf(w, "id: %d\n", id)
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
