package events

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const keepAliveInterval = 15 * time.Second

// Handler streams broker events as SSE. Clients may restrict the stream
// with ?types=run.finished,run.started.
func Handler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var only map[string]bool
		if q := r.URL.Query().Get("types"); q != "" {
			only = make(map[string]bool)
			for _, t := range strings.Split(q, ",") {
				if t = strings.TrimSpace(t); t != "" {
					only[t] = true
				}
			}
		}

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)
		slog.Debug("event stream opened", "subscriber", id, "types", r.URL.Query().Get("types"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				slog.Debug("event stream closed", "subscriber", id)
				return
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if only != nil && !only[evt.Type] {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
