package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const streamKeepAlive = 30 * time.Second

// stream writes every value of updates as a server-sent event until the
// client goes away or the channel is closed.
func stream[T any](w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, event string, updates <-chan T) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		SendErrorResponse(w, "Streaming unsupported", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case v, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				log.WithError(err).WithField("event", event).Error("Failed to encode stream event")
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
			flusher.Flush()
		}
	}
}
