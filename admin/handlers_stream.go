package admin

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/galemark/ratelimitgw/ratelimit"
)

// handleEventStream returns a handler for GET /api/v1/events: a
// server-sent-events feed of decision events. On connect, the subscriber
// first receives the stream's current backlog (snapshot), then every new
// event as it is published, mirroring the snapshot-then-live delivery the
// original analytics socket used.
func handleEventStream(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		id, live, snapshot := p.EventStream().Subscribe()
		defer p.EventStream().Unsubscribe(id)

		for _, ev := range snapshot {
			if !writeEvent(w, ev) {
				return
			}
		}
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-live:
				if !ok {
					return
				}
				if !writeEvent(w, ev) {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev ratelimit.DecisionEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		return true
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err == nil
}
