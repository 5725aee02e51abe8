package http

import (
	"encoding/json"
	"net/http"

	"github.com/taskdeck/taskdeck/internal/taskdeck/metrics"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
	"github.com/taskdeck/taskdeck/pkg/httpx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

type ChangesHandler struct {
	Records *records.Store
}

type changeEventPayload struct {
	Type  string         `json:"type"`
	Table string         `json:"table"`
	ID    string         `json:"id"`
	Value records.Record `json:"value,omitempty"`
	Prev  records.Record `json:"prev,omitempty"`
}

// HandleStream godoc
//
//	@Summary		Stream record changes
//	@Description	Server-sent events. Each event is one JSON-encoded record
//	@Description	change: set or delete, with the new value and prior row.
//	@Tags			Changes
//	@Security		BearerAuth
//	@Produce		text/event-stream
//	@Success		200	{string}	string
//	@Router			/v1/changes [get].
func (h *ChangesHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Streaming unsupported")
		return
	}

	events, unsubscribe := h.Records.Events().Subscribe()
	defer unsubscribe()

	metrics.ChangeSubscribers.Inc()
	defer metrics.ChangeSubscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug("change stream opened")
	defer log.Debug("change stream closed")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}

			metrics.ChangeEventsTotal.WithLabelValues(ev.Table, string(ev.Type)).Inc()

			data, err := json.Marshal(changeEventPayload{
				Type:  string(ev.Type),
				Table: ev.Table,
				ID:    ev.ID,
				Value: ev.Value,
				Prev:  ev.Prev,
			})
			if err != nil {
				log.Warn("change event encode failed", "err", err)
				continue
			}

			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
