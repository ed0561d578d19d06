// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/notify"
)

// streamHeartbeat keeps idle SSE connections open through proxies.
var streamHeartbeat = 15 * time.Second

type notificationRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// handleListNotifications returns the history newest first; ?limit=n caps it.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, r, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.eng.Notifier().Recent(limit))
}

func (s *Server) handlePublishNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(w, r, errors.New("message is required"))
		return
	}
	n := s.eng.Notifier().Notify(req.Title, req.Message, notify.SourceAPI)
	writeJSON(w, http.StatusCreated, n)
}

// handleNotificationStream pushes every new notification as a server-sent
// event until the client goes away or the hub closes.
func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondError(w, r, http.StatusInternalServerError, ErrStreaming)
		return
	}

	ctx := r.Context()
	ch := s.eng.Notifier().Subscribe(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger := log.WithComponentFromContext(ctx, "api")
	logger.Debug().Str(log.FieldEvent, "notify.stream_opened").Msg("notification stream opened")
	defer logger.Debug().Str(log.FieldEvent, "notify.stream_closed").Msg("notification stream closed")

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				logger.Error().Err(err).Msg("failed to marshal notification")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
