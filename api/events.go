package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/storeforge/provision/stream"
)

// heartbeatInterval is how often an SSE comment line is written to keep
// intermediaries from closing an idle connection.
const heartbeatInterval = 15 * time.Second

// handleStoreEvents streams lifecycle events for one provisioning run as
// Server-Sent Events.
func (s *Server) handleStoreEvents(w http.ResponseWriter, r *http.Request) {
	if s.Stream == nil {
		writeErr(w, http.StatusNotFound, errors.New("event streaming is not enabled"))
		return
	}
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.serveEvents(w, r, stream.StoreTopic(j.ID.String()))
}

// handleAllEvents streams every store lifecycle event as Server-Sent
// Events.
func (s *Server) handleAllEvents(w http.ResponseWriter, r *http.Request) {
	if s.Stream == nil {
		writeErr(w, http.StatusNotFound, errors.New("event streaming is not enabled"))
		return
	}
	s.serveEvents(w, r, stream.TopicStores)
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, topic string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	subID := chimw.GetReqID(r.Context())
	if subID == "" {
		subID = fmt.Sprintf("sse-%d", time.Now().UnixNano())
	}
	sub := s.Stream.Subscribe(subID, topic)
	defer s.Stream.RemoveSubscriber(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, open := <-sub.C():
			if !open {
				return
			}
			if err := writeSSE(w, evt); err != nil {
				return
			}
			flusher.Flush()
			sub.AddCredits(1)
		}
	}
}

// writeSSE writes one event in text/event-stream framing.
func writeSSE(w http.ResponseWriter, evt *stream.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
	return err
}
