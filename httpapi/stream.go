package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"pkt.systems/swissblade/internal/logx"
	"pkt.systems/swissblade/schema"
)

const streamBuffer = 16

func (s *Server) handleClickStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates := make(chan schema.ClickTrackerState, streamBuffer)
	unsubscribe := s.service.Clicks.Subscribe(func(state schema.ClickTrackerState) {
		select {
		case updates <- state:
		default:
		}
	})
	defer unsubscribe()

	log.Info("http click stream opened")
	for {
		select {
		case <-r.Context().Done():
			log.Info("http click stream closed")
			return
		case state := <-updates:
			if err := writeSSEvent(w, "clicks", clickPayload(state)); err != nil {
				log.Debug("http click stream write failed", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
