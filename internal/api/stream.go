package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fidde/log_dashboard/internal/tail"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// realtimeDisabled is returned by the stream endpoints when real-time
// updates are turned off.
var realtimeDisabled = map[string]string{"message": "Real-time disabled"}

// openSession starts a tail session for the request's optional category
// query parameter, writing the error response itself on failure.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (*tail.Session, bool) {
	if !s.opts.Realtime {
		s.respondJSON(w, http.StatusOK, realtimeDisabled)
		return nil, false
	}

	sess, err := tail.NewSession(s.registry, r.URL.Query().Get("category"), s.normalizer, s.opts.Tail, s.logger)
	if err != nil {
		s.respondErr(w, err)
		return nil, false
	}
	return sess, true
}

// stream pushes new records as server-sent events.
// GET /stream?category=name
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := sess.Run(r.Context(), func(_ context.Context, b tail.Batch) error {
		return writeEvent(w, flusher, tail.EventNewLogs, b)
	})
	if err != nil {
		s.logger.Warn("event stream closed", "session_id", sess.ID(), "error", err)
	}
}

// writeEvent writes one SSE frame. The payload is single-line JSON, so it
// always fits in one data field.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamWS pushes new records over a WebSocket as
// {"event":"new_logs","data":{...}} messages.
// GET /ws/stream?category=name
func (s *Server) streamWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(conn, cancel)

	err = sess.Run(ctx, func(_ context.Context, b tail.Batch) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(tail.NewEvent(b))
	})
	if err != nil {
		s.logger.Warn("websocket stream closed", "session_id", sess.ID(), "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream failed"),
			time.Now().Add(writeWait))
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// readPump drains client frames for close detection and cancels the
// session once the connection goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
