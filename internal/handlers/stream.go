package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
	"github.com/AnshRaj112/sparklink-backend/internal/realtime"
)

const (
	HeartbeatInterval = 25 * time.Second

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 90 * time.Second
	wsReadLimit  = 4 * 1024
	sseConnected = ": connected to SSE stream\n\n"
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler serves the per-user live message streams over SSE and WebSocket.
type StreamHandler struct {
	registry  *realtime.Registry
	buffer    int
	heartbeat time.Duration
	log       *zap.SugaredLogger
}

func NewStreamHandler(registry *realtime.Registry, log *zap.SugaredLogger) *StreamHandler {
	return &StreamHandler{
		registry:  registry,
		buffer:    realtime.DefaultBuffer,
		heartbeat: HeartbeatInterval,
		log:       log,
	}
}

// subscribe registers a subscriber for the {userId} in the path. It writes the
// error response itself and returns nil when the stream cannot be opened.
func (h *StreamHandler) subscribe(w http.ResponseWriter, r *http.Request) *realtime.Subscriber {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("User id is required"))
		return nil
	}
	sub := realtime.NewSubscriber(userID, h.buffer)
	if err := h.registry.Register(sub); err != nil {
		if errors.Is(err, realtime.ErrAlreadySubscribed) {
			response.Error(w, apierrors.ErrConflict.WithMessage(err.Error()))
			return nil
		}
		fail(h.log, w, r, err)
		return nil
	}
	return sub
}

func (h *StreamHandler) release(sub *realtime.Subscriber) {
	h.registry.Unregister(sub)
	sub.Close()
}

// SSE streams every event for the user as a "data:" frame until the client
// goes away or the stream is replaced.
func (h *StreamHandler) SSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		fail(h.log, w, r, errors.New("response writer does not support flushing"))
		return
	}
	sub := h.subscribe(w, r)
	if sub == nil {
		return
	}
	defer h.release(sub)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, sseConnected); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case payload := <-sub.Messages():
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				h.log.Warnw("live stream write failed", "user_id", sub.UserID, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// WebSocket carries the same events as SSE, one text frame per event. Client
// frames are read only to keep the connection alive.
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	sub := h.subscribe(w, r)
	if sub == nil {
		return
	}
	defer h.release(sub)

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debugw("websocket upgrade failed", "user_id", sub.UserID, "error", err)
		return
	}
	defer conn.Close()

	go h.writePump(conn, sub)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

func (h *StreamHandler) writePump(conn *websocket.Conn, sub *realtime.Subscriber) {
	ticker := time.NewTicker(h.heartbeat)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-sub.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.log.Warnw("live stream write failed", "user_id", sub.UserID, "error", err)
				sub.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.Close()
				return
			}
		}
	}
}
