package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/sita/pkg/demo"
)

// handleEvents streams one "snapshot" event per store mutation. Slow
// clients skip intermediate snapshots and always receive the latest. Each
// keep-alive refreshes the session's idle timer.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("write deadline not supported", "error", err)
	}

	updates := make(chan demo.Snapshot, 1)
	unsub := sess.Store.Subscribe(func(snap demo.Snapshot) {
		select {
		case updates <- snap:
			return
		default:
		}
		// Replace the undelivered snapshot.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- snap:
		default:
		}
	})
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSnapshotEvent(w, sess.Store.Snapshot()); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream not flushable", "session", sess.ID, "error", err)
		return
	}

	ticker := s.clk.Ticker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := writeSnapshotEvent(w, snap); err != nil {
				return
			}
		case <-ticker.C:
			// An open stream counts as activity. A deleted session ends it.
			if err := s.sessions.Touch(sess.ID); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSnapshotEvent(w http.ResponseWriter, snap demo.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, data)
	return err
}
